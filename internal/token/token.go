// Package token decodes the structural fields of the platform's credential
// token.
//
// Trust boundary: the signature segment is never verified. Authenticity of
// a token is delegated entirely to the issuing backend, which rejects forged
// tokens on every call. This package only decides whether a token is worth
// starting a session for.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

type ExpiryPolicy int

const (
	// SkipWhileUnexpired skips a token when the current time is before its
	// expiry. This is the comparison the platform's setup tooling has always
	// used. It is the inverse of conventional expiry semantics.
	SkipWhileUnexpired ExpiryPolicy = iota
	// SkipWhenExpired skips a token once the current time reaches its expiry.
	SkipWhenExpired
)

// DefaultExpiryPolicy keeps the historical comparison until an operator
// opts into SkipWhenExpired through TOKEN_EXPIRY_POLICY.
const DefaultExpiryPolicy = SkipWhileUnexpired

func (p ExpiryPolicy) String() string {
	switch p {
	case SkipWhileUnexpired:
		return "skip-while-unexpired"
	case SkipWhenExpired:
		return "skip-when-expired"
	default:
		return fmt.Sprintf("ExpiryPolicy(%d)", int(p))
	}
}

// Notice is a warning for operators when p rejects tokens that are still
// live. It is empty for the conventional policy.
func (p ExpiryPolicy) Notice() string {
	if p != SkipWhileUnexpired {
		return ""
	}
	return "TOKEN_EXPIRY_POLICY=skip-while-unexpired skips every token that has not expired yet; set TOKEN_EXPIRY_POLICY=skip-when-expired to run live tokens"
}

func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip-while-unexpired":
		return SkipWhileUnexpired, nil
	case "skip-when-expired":
		return SkipWhenExpired, nil
	}
	return DefaultExpiryPolicy, fmt.Errorf("unknown token expiry policy %q", s)
}

// Skip reports whether a token expiring at expiry must be skipped at now.
func (p ExpiryPolicy) Skip(now, expiry time.Time) bool {
	if p == SkipWhenExpired {
		return !now.Before(expiry)
	}
	return now.Before(expiry)
}

var (
	errMalformed = errors.New("token is not a well-formed JWT")
	errClaims    = errors.New("token payload lacks wallet address or expiry")
	errExpRange  = errors.New("token expiry is outside the representable range")
)

// parser only decodes; signatures are never checked.
var parser = jwt.NewParser(jwt.WithPaddingAllowed(), jwt.WithJSONNumber())

// Decode never fails; a token it cannot read comes back with
// StructurallyValid set to false.
func Decode(raw string) model.DecodedToken {
	decoded, _ := decode(raw)
	return decoded
}

func decode(raw string) (model.DecodedToken, error) {
	tok, _, err := parser.ParseUnverified(strings.TrimSpace(raw), jwt.MapClaims{})
	if err != nil {
		return model.DecodedToken{}, fmt.Errorf("%w: %w", errMalformed, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.DecodedToken{}, errClaims
	}

	wallet := stringClaim(claims, "wallet_address")
	if wallet == "" {
		wallet = stringClaim(claims, "walletAddress")
	}
	if wallet == "" {
		return model.DecodedToken{}, errClaims
	}
	if !expInRange(claims["exp"]) {
		return model.DecodedToken{}, errExpRange
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return model.DecodedToken{}, errClaims
	}

	return model.DecodedToken{
		WalletAddress:     wallet,
		Expiry:            exp.Time,
		StructurallyValid: true,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return strings.TrimSpace(v)
}

// expInRange rejects numeric expiries that do not fit in int64 seconds.
// Non-numeric or missing values are left to GetExpirationTime.
func expInRange(v interface{}) bool {
	var f float64
	switch n := v.(type) {
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return false
		}
	case float64:
		f = n
	default:
		return true
	}
	return !math.IsNaN(f) && f >= math.MinInt64 && f < math.MaxInt64
}

type Validator struct {
	Policy ExpiryPolicy
}

func NewValidator(policy ExpiryPolicy) *Validator {
	return &Validator{Policy: policy}
}

// Validate returns a *model.ValidationError when the account must be
// skipped. The decoded token is returned either way.
func (v *Validator) Validate(account model.Account, now time.Time) (model.DecodedToken, error) {
	decoded, err := decode(account.Token)
	if err != nil {
		return decoded, &model.ValidationError{Wallet: account.WalletAddress, Reason: "token structurally invalid", Err: err}
	}
	if v.Policy.Skip(now, decoded.Expiry) {
		return decoded, &model.ValidationError{
			Wallet: account.WalletAddress,
			Reason: fmt.Sprintf("token expiry %s rejected by policy %s", decoded.Expiry.UTC().Format(time.RFC3339), v.Policy),
		}
	}
	return decoded, nil
}
