package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
	"github.com/ohmynofan/naoris-device-bot/internal/proxypool"
	"github.com/ohmynofan/naoris-device-bot/internal/token"
	"github.com/ohmynofan/naoris-device-bot/pkg/utils"
)

// APIFactory builds the RemoteAPI for one account. accIdx is the session
// index the proxy was assigned for.
type APIFactory func(account model.Account, accIdx int, proxyURL string) (RemoteAPI, error)

type Deps struct {
	Validator *token.Validator
	Proxies   *proxypool.Pool
	NewAPI    APIFactory
	Log       *zap.Logger
	Reporter  StatusReporter
	Recorder  CycleRecorder
	Now       func() time.Time
}

type SchedulerOptions struct {
	Period        time.Duration
	StartStagger  time.Duration
	ShutdownGrace time.Duration
}

type Scheduler struct {
	sessions []*Session
	opts     SchedulerOptions
	log      *zap.Logger

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// NewScheduler builds one session per account whose token survives
// validation. Rejected accounts are logged and skipped; only an empty result
// is an error.
func NewScheduler(accounts []model.Account, deps Deps, opts SchedulerOptions) (*Scheduler, error) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Validator == nil {
		deps.Validator = token.NewValidator(token.DefaultExpiryPolicy)
	}
	if deps.NewAPI == nil {
		return nil, errors.New("scheduler requires an API factory")
	}

	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultStopTimeout
	}

	sc := &Scheduler{opts: opts, log: deps.Log.Named("scheduler"), shutdown: make(chan struct{})}
	now := deps.Now()
	if notice := deps.Validator.Policy.Notice(); notice != "" {
		sc.log.Warn("token expiry policy rejects live tokens", zap.Stringer("policy", deps.Validator.Policy), zap.String("hint", notice))
	}

	for i, acc := range accounts {
		decoded, err := deps.Validator.Validate(acc, now)
		if err != nil {
			sc.log.Warn("skipping account", zap.Int("index", i), zap.String("wallet", acc.WalletAddress), zap.Error(err))
			continue
		}
		if !utils.SameAddress(decoded.WalletAddress, acc.WalletAddress) {
			sc.log.Warn("token wallet differs from account wallet",
				zap.String("wallet", acc.WalletAddress),
				zap.String("tokenWallet", decoded.WalletAddress))
		}

		idx := len(sc.sessions)
		proxyURL, _ := deps.Proxies.Assign(idx)
		api, err := deps.NewAPI(acc, idx, proxyURL)
		if err != nil {
			sc.log.Warn("skipping account, client setup failed", zap.String("wallet", acc.WalletAddress), zap.Error(err))
			continue
		}

		sc.sessions = append(sc.sessions, NewSession(SessionConfig{
			Account:     acc,
			AccIdx:      idx,
			Proxy:       proxyURL,
			API:         api,
			Period:      opts.Period,
			StopTimeout: stopBudget(opts.ShutdownGrace),
			Log:         deps.Log.Named("session").With(zap.Int("account", idx+1), zap.String("wallet", acc.WalletAddress)),
			Reporter:    deps.Reporter,
			Recorder:    deps.Recorder,
			Now:         deps.Now,
		}))
	}

	if len(sc.sessions) == 0 {
		return nil, &model.ConfigError{Source: "accounts", Err: errors.New("no account passed token validation")}
	}
	sc.log.Info("sessions built", zap.Int("accounts", len(accounts)), zap.Int("sessions", len(sc.sessions)))
	return sc, nil
}

func (sc *Scheduler) Sessions() []*Session { return sc.sessions }

// Shutdown triggers the stop sequence. It is safe to call more than once.
func (sc *Scheduler) Shutdown() {
	sc.shutdownOnce.Do(func() { close(sc.shutdown) })
}

// Run starts every session and blocks until ctx is cancelled or Shutdown is
// called. It then waits up to ShutdownGrace for the sessions' stop sequences
// and returns their final snapshots.
func (sc *Scheduler) Run(ctx context.Context) []model.DeviceStatus {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sc.shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if sc.opts.StartStagger > 0 {
		limiter = rate.NewLimiter(rate.Every(sc.opts.StartStagger), 1)
	}

	var g errgroup.Group
	started := 0
	for _, s := range sc.sessions {
		if err := limiter.Wait(runCtx); err != nil {
			break
		}
		s := s
		g.Go(func() error {
			s.Run(runCtx)
			return nil
		})
		started++
	}
	for _, s := range sc.sessions[started:] {
		s.MarkStopped()
	}
	if started < len(sc.sessions) {
		sc.log.Info("shutdown arrived during staggered start", zap.Int("started", started), zap.Int("total", len(sc.sessions)))
	}

	<-runCtx.Done()
	sc.log.Info("shutdown signal received, stopping sessions", zap.Int("sessions", started))

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	grace := sc.opts.ShutdownGrace
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		sc.log.Info("all sessions stopped")
	case <-timer.C:
		sc.log.Warn("shutdown grace period elapsed with sessions still draining", zap.Duration("grace", grace))
	}

	statuses := make([]model.DeviceStatus, 0, len(sc.sessions))
	for _, s := range sc.sessions {
		statuses = append(statuses, s.Status())
	}
	return statuses
}

// stopBudget is the share of the grace period a session may spend on its
// stop sequence, leaving the scheduler room to collect the snapshots.
func stopBudget(grace time.Duration) time.Duration {
	return grace - grace/10
}
