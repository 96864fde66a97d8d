package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"github.com/ohmynofan/naoris-device-bot/internal/app"
	"github.com/ohmynofan/naoris-device-bot/internal/config"
	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
	"github.com/ohmynofan/naoris-device-bot/internal/platform/logger"
	"github.com/ohmynofan/naoris-device-bot/internal/platform/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	if err := logger.Init(cfg.LogPath); err != nil {
		pterm.Warning.Printfln("file logging disabled: %v", err)
	}
	defer logger.Close()

	if err := cfg.Validate(); err != nil {
		pterm.Error.Println(err.Error())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Banner(cfg.Platform.Name)
	if notice := cfg.ExpiryPolicy.Notice(); notice != "" {
		pterm.Warning.Println(notice)
	}

	if err := app.New(cfg).Run(ctx); err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			pterm.Error.Printfln("Fatal configuration error: %v", err)
		} else {
			pterm.Error.Println(err.Error())
		}
		logger.L().Error("run failed", zap.Error(err))
		return 1
	}
	return 0
}
