package config

type Platform struct {
	Name            string
	SecAPI          string
	TestnetAPI      string
	WhitelistedURLs []string
}

var NaorisTestnet = Platform{
	Name:            "Naoris Protocol Testnet",
	SecAPI:          "https://naorisprotocol.network/sec-api/api",
	TestnetAPI:      "https://naorisprotocol.network/testnet-api/api/testnet",
	WhitelistedURLs: []string{"naorisprotocol.network", "google.com"},
}
