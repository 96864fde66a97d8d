package main

import (
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/ohmynofan/naoris-device-bot/internal/app"
	"github.com/ohmynofan/naoris-device-bot/internal/config"
	"github.com/ohmynofan/naoris-device-bot/internal/credential"
	"github.com/ohmynofan/naoris-device-bot/internal/platform/logger"
	"github.com/ohmynofan/naoris-device-bot/internal/token"
)

func main() {
	cfg := config.Load()
	_ = logger.Init(cfg.LogPath)
	defer logger.Close()

	if err := cfg.Validate(); err != nil {
		pterm.Error.Println(err.Error())
		logger.Close()
		os.Exit(1)
	}

	if notice := cfg.ExpiryPolicy.Notice(); notice != "" {
		pterm.Warning.Println(notice)
	}

	res, err := app.Setup(
		cfg.TokensPath,
		credential.NewFileStore(cfg.AccountsPath),
		token.NewValidator(cfg.ExpiryPolicy),
		time.Now(),
		logger.Named("setup"),
	)
	if err != nil {
		pterm.Error.Println(err.Error())
		logger.Close()
		os.Exit(1)
	}

	pterm.Success.Printfln("Saved %d accounts to %s (%d new devices, %d tokens skipped)", res.Saved, cfg.AccountsPath, res.Created, res.Skipped)
}
