package app

import (
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ohmynofan/naoris-device-bot/internal/credential"
	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
	"github.com/ohmynofan/naoris-device-bot/internal/token"
	"github.com/ohmynofan/naoris-device-bot/pkg/utils"
)

type SetupResult struct {
	Saved   int
	Skipped int
	Created int
}

// Setup merges raw tokens into accounts.json. Wallets already present keep
// their position and device hash; new wallets are appended with a generated
// hash.
func Setup(tokensPath string, store *credential.FileStore, validator *token.Validator, now time.Time, log *zap.Logger) (SetupResult, error) {
	var res SetupResult
	if log == nil {
		log = zap.NewNop()
	}

	if notice := validator.Policy.Notice(); notice != "" {
		log.Warn("token expiry policy rejects live tokens", zap.Stringer("policy", validator.Policy), zap.String("hint", notice))
	}

	tokens, err := credential.ReadTokens(tokensPath)
	if err != nil {
		return res, err
	}

	var accounts []model.Account
	if _, statErr := os.Stat(store.Path); statErr == nil {
		if accounts, err = store.ListAccounts(); err != nil {
			return res, err
		}
	}
	position := make(map[string]int, len(accounts))
	for i, acc := range accounts {
		position[utils.ChecksumAddress(acc.WalletAddress)] = i
	}

	for i, raw := range tokens {
		decoded, err := validator.Validate(model.Account{Token: raw}, now)
		if err != nil {
			log.Warn("skipping token", zap.Int("line", i+1), zap.String("wallet", decoded.WalletAddress), zap.Error(err))
			res.Skipped++
			continue
		}
		if !utils.IsHexAddress(decoded.WalletAddress) {
			log.Warn("skipping token with non-hex wallet", zap.Int("line", i+1), zap.String("wallet", decoded.WalletAddress))
			res.Skipped++
			continue
		}
		wallet := utils.ChecksumAddress(decoded.WalletAddress)

		if idx, ok := position[wallet]; ok {
			accounts[idx].Token = raw
			continue
		}
		position[wallet] = len(accounts)
		accounts = append(accounts, model.Account{
			WalletAddress: wallet,
			Token:         raw,
			DeviceHash:    credential.GenerateDeviceHash(),
		})
		res.Created++
	}

	if len(accounts) == 0 {
		return res, &model.ConfigError{Source: tokensPath, Err: errors.New("no usable tokens")}
	}
	if err := store.Save(accounts); err != nil {
		return res, &model.ConfigError{Source: store.Path, Err: err}
	}
	res.Saved = len(accounts)
	log.Info("accounts saved", zap.Int("saved", res.Saved), zap.Int("skipped", res.Skipped), zap.Int("newDevices", res.Created))
	return res, nil
}
