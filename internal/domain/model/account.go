package model

import "time"

type Account struct {
	WalletAddress string `json:"walletAddress"`
	Token         string `json:"token"`
	DeviceHash    string `json:"deviceHash"`
}

// DecodedToken holds the structural fields of a credential token. It is
// derived at startup and never persisted.
type DecodedToken struct {
	WalletAddress     string
	Expiry            time.Time
	StructurallyValid bool
}

type WalletDetails struct {
	Points              *float64
	ActiveRatePerMinute *float64
	Rank                string
}
