package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ohmynofan/naoris-device-bot/internal/adapters/deviceapi"
	"github.com/ohmynofan/naoris-device-bot/internal/app/worker"
	"github.com/ohmynofan/naoris-device-bot/internal/config"
	"github.com/ohmynofan/naoris-device-bot/internal/credential"
	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
	"github.com/ohmynofan/naoris-device-bot/internal/platform/logger"
	"github.com/ohmynofan/naoris-device-bot/internal/platform/ui"
	"github.com/ohmynofan/naoris-device-bot/internal/proxypool"
	"github.com/ohmynofan/naoris-device-bot/internal/storage/uptimelog"
	"github.com/ohmynofan/naoris-device-bot/internal/token"
)

type App struct {
	cfg   config.Config
	store credential.Store
}

func New(cfg config.Config) *App {
	return &App{cfg: cfg, store: credential.NewFileStore(cfg.AccountsPath)}
}

func (app *App) Run(ctx context.Context) error {
	log := logger.Named("app")

	accounts, err := app.store.ListAccounts()
	if err != nil {
		return err
	}
	log.Info("accounts loaded", zap.Int("count", len(accounts)))

	useProxy := app.cfg.UseProxy
	if app.cfg.Interactive {
		if useProxy, err = ui.ConfirmProxy(useProxy); err != nil {
			return err
		}
	}

	pool := proxypool.New(nil)
	if useProxy {
		if pool, err = proxypool.Load(app.cfg.ProxyPath); err != nil {
			return err
		}
		if pool.Len() == 0 {
			log.Warn("proxy mode enabled but proxy file is empty, running direct", zap.String("path", app.cfg.ProxyPath))
		}
	}

	store, err := uptimelog.NewStore(app.cfg.DBPath)
	if err != nil {
		return &model.ConfigError{Source: app.cfg.DBPath, Err: err}
	}
	defer store.Close()

	platform := app.cfg.Platform
	timeout := app.cfg.HTTPTimeout
	sched, err := worker.NewScheduler(accounts, worker.Deps{
		Validator: token.NewValidator(app.cfg.ExpiryPolicy),
		Proxies:   pool,
		NewAPI: func(acc model.Account, accIdx int, proxyURL string) (worker.RemoteAPI, error) {
			return deviceapi.New(acc, proxyURL, platform, timeout, logger.ForAccount("deviceapi", accIdx, acc.WalletAddress))
		},
		Log:      logger.L(),
		Reporter: ui.Board{},
		Recorder: store,
	}, worker.SchedulerOptions{
		Period:        app.cfg.CyclePeriod,
		StartStagger:  app.cfg.StartStagger,
		ShutdownGrace: app.cfg.ShutdownGrace,
	})
	if err != nil {
		return err
	}

	ui.StartUISystem()
	statuses := sched.Run(ctx)
	ui.StopUISystem()

	ui.PrintSummary(summaryRows(store, statuses, log))
	return nil
}

func summaryRows(store *uptimelog.Store, statuses []model.DeviceStatus, log *zap.Logger) []ui.SummaryRow {
	today := time.Now()
	rows := make([]ui.SummaryRow, 0, len(statuses))
	for _, st := range statuses {
		row := ui.SummaryRow{Status: st}
		daily, err := store.DailyStatus(st.Address, today)
		if err != nil {
			log.Warn("failed to read daily uptime", zap.String("wallet", st.Address), zap.Error(err))
		} else {
			row.TodayCycles = daily.Cycles
			row.TodayFailed = daily.FailedCycles
		}
		rows = append(rows, row)
	}
	return rows
}
