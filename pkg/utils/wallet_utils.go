package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

func ShortenAddress(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// SameAddress compares two wallet addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}

// ChecksumAddress returns the EIP-55 form of a hex address, or the input
// unchanged when it is not one.
func ChecksumAddress(s string) string {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return s
	}
	return common.HexToAddress(s).Hex()
}

func IsHexAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}
