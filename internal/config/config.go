package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ohmynofan/naoris-device-bot/internal/token"
)

type Config struct {
	AccountsPath  string
	TokensPath    string
	ProxyPath     string
	DBPath        string
	LogPath       string
	UseProxy      bool
	Interactive   bool
	CyclePeriod   time.Duration
	StartStagger  time.Duration
	ShutdownGrace time.Duration
	HTTPTimeout   time.Duration
	ExpiryPolicy  token.ExpiryPolicy
	Platform      Platform

	expiryPolicyRaw string
}

func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using default values")
	}

	platform := NaorisTestnet
	platform.SecAPI = stringWithDefault(os.Getenv("SEC_API_URL"), platform.SecAPI)
	platform.TestnetAPI = stringWithDefault(os.Getenv("TESTNET_API_URL"), platform.TestnetAPI)

	policyRaw := stringWithDefault(os.Getenv("TOKEN_EXPIRY_POLICY"), token.DefaultExpiryPolicy.String())
	policy, _ := token.ParseExpiryPolicy(policyRaw)

	return Config{
		AccountsPath:    stringWithDefault(os.Getenv("ACCOUNTS_PATH"), "configs/accounts.json"),
		TokensPath:      stringWithDefault(os.Getenv("TOKENS_PATH"), "configs/tokens.txt"),
		ProxyPath:       stringWithDefault(os.Getenv("PROXY_PATH"), "configs/proxy.txt"),
		DBPath:          stringWithDefault(os.Getenv("DB_PATH"), "data/uptime.db"),
		LogPath:         stringWithDefault(os.Getenv("LOG_PATH"), "logs/app.log"),
		UseProxy:        parseBoolWithDefault(os.Getenv("USE_PROXY"), false),
		Interactive:     parseBoolWithDefault(os.Getenv("INTERACTIVE"), false),
		CyclePeriod:     time.Duration(parseIntWithDefault(os.Getenv("CYCLE_PERIOD_SECONDS"), 60)) * time.Second,
		StartStagger:    time.Duration(parseIntWithDefault(os.Getenv("START_STAGGER_MS"), 1500)) * time.Millisecond,
		ShutdownGrace:   time.Duration(parseIntWithDefault(os.Getenv("SHUTDOWN_GRACE_SECONDS"), 10)) * time.Second,
		HTTPTimeout:     time.Duration(parseIntWithDefault(os.Getenv("HTTP_TIMEOUT_SECONDS"), 30)) * time.Second,
		ExpiryPolicy:    policy,
		Platform:        platform,
		expiryPolicyRaw: policyRaw,
	}
}

func stringWithDefault(value, defaultVal string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	return value
}

func parseIntWithDefault(value string, defaultVal int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(value); err == nil && v >= 0 {
		return v
	}
	return defaultVal
}

func parseBoolWithDefault(value string, defaultVal bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	switch strings.ToLower(value) {
	case "y", "yes", "on":
		return true
	case "n", "no", "off":
		return false
	}
	if v, err := strconv.ParseBool(value); err == nil {
		return v
	}
	return defaultVal
}

func (c Config) Validate() error {
	if c.CyclePeriod <= 0 {
		return errors.New("CYCLE_PERIOD_SECONDS must be greater than zero")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT_SECONDS must be greater than zero")
	}
	if c.StartStagger < 0 || c.ShutdownGrace < 0 {
		return errors.New("START_STAGGER_MS and SHUTDOWN_GRACE_SECONDS cannot be negative")
	}
	if c.expiryPolicyRaw != "" {
		if _, err := token.ParseExpiryPolicy(c.expiryPolicyRaw); err != nil {
			return err
		}
	}
	for name, raw := range map[string]string{"SEC_API_URL": c.Platform.SecAPI, "TESTNET_API_URL": c.Platform.TestnetAPI} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not a valid URL: %q", name, raw)
		}
	}
	if strings.TrimSpace(c.AccountsPath) == "" {
		return errors.New("ACCOUNTS_PATH cannot be empty")
	}
	return nil
}
