package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
	"github.com/ohmynofan/naoris-device-bot/internal/proxypool"
	"github.com/ohmynofan/naoris-device-bot/pkg/utils"
)

const (
	defaultCyclePeriod = 60 * time.Second
	defaultStopTimeout = 10 * time.Second
	wakeAlarmEvery     = 5
)

// RemoteAPI is the platform as seen by one account. Implementations are
// bound to the account's token, device hash and proxy.
type RemoteAPI interface {
	Toggle(ctx context.Context, on bool) error
	Heartbeat(ctx context.Context, toggleState bool) error
	WalletDetails(ctx context.Context) (model.WalletDetails, error)
}

type StatusReporter interface {
	Update(status model.DeviceStatus)
}

type CycleRecorder interface {
	RecordCycle(address string, day time.Time, ok bool) error
	UpdateEarning(address string, day time.Time, points float64, rank string) error
}

type SessionConfig struct {
	Account     model.Account
	AccIdx      int
	Proxy       string
	API         RemoteAPI
	Period      time.Duration
	StopTimeout time.Duration
	Log         *zap.Logger
	Reporter    StatusReporter
	Recorder    CycleRecorder
	Now         func() time.Time
}

// Session keeps one account's device online. Its fields are written only by
// the session's own task; mu exists so snapshots can be read from outside.
type Session struct {
	account     model.Account
	accIdx      int
	proxy       string
	api         RemoteAPI
	period      time.Duration
	stopTimeout time.Duration
	log         *zap.Logger
	reporter    StatusReporter
	recorder    CycleRecorder
	now         func() time.Time

	mu           sync.Mutex
	state        model.SessionState
	toggleAck    bool
	uptimeCycles int
	lastError    error
	earnings     float64
	hasEarnings  bool
	rank         string
	message      string
	nextCycle    time.Time

	busy     atomic.Bool
	inflight sync.WaitGroup
	stopOnce sync.Once
}

func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		account:     cfg.Account,
		accIdx:      cfg.AccIdx,
		proxy:       cfg.Proxy,
		api:         cfg.API,
		period:      cfg.Period,
		stopTimeout: cfg.StopTimeout,
		log:         cfg.Log,
		reporter:    cfg.Reporter,
		recorder:    cfg.Recorder,
		now:         cfg.Now,
		state:       model.StateStarting,
		message:     "Waiting to start",
	}
	if s.period <= 0 {
		s.period = defaultCyclePeriod
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = defaultStopTimeout
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Session) Account() model.Account { return s.account }

func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ToggleAcknowledged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggleAck
}

func (s *Session) UptimeCycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uptimeCycles
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Session) Status() model.DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() model.DeviceStatus {
	st := model.DeviceStatus{
		AccIdx:       s.accIdx,
		Address:      s.account.WalletAddress,
		Proxy:        s.proxy,
		State:        s.state,
		ToggleOn:     s.toggleAck,
		UptimeCycles: s.uptimeCycles,
		Earnings:     s.earnings,
		HasEarnings:  s.hasEarnings,
		Rank:         s.rank,
		Message:      s.message,
		NextCycle:    s.nextCycle,
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

// update applies fn under the lock and pushes the resulting snapshot to the
// board.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	snapshot := s.statusLocked()
	s.mu.Unlock()
	if s.reporter != nil {
		s.reporter.Update(snapshot)
	}
}

func (s *Session) note(msg string) {
	s.update(func() { s.message = msg })
}

// Run drives the session until ctx is cancelled, then performs the stop
// sequence. Outbound calls use a context detached from ctx so that calls in
// flight at shutdown can finish within the client timeout.
func (s *Session) Run(ctx context.Context) {
	if ctx.Err() != nil {
		s.MarkStopped()
		return
	}
	callCtx := context.WithoutCancel(ctx)

	s.Start(callCtx)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	s.update(func() { s.nextCycle = s.now().Add(s.period) })

	for {
		select {
		case <-ctx.Done():
			s.shutdown(callCtx)
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			s.update(func() { s.nextCycle = s.now().Add(s.period) })
			s.dispatch(callCtx)
		}
	}
}

// shutdown gives an in-flight cycle half of stopTimeout to finish, then
// issues the OFF toggle within what is left. A cycle still running after
// that is abandoned; it can no longer move the session out of Stopped.
func (s *Session) shutdown(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(ctx, s.stopTimeout)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	wait := time.NewTimer(s.stopTimeout / 2)
	defer wait.Stop()
	select {
	case <-drained:
	case <-wait.C:
		s.log.Warn("cycle still in flight at shutdown, toggling OFF without it", zap.Duration("waited", s.stopTimeout/2))
	}
	s.Stop(stopCtx)
}

// dispatch starts a cycle unless the previous one is still in flight.
func (s *Session) dispatch(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Debug("previous cycle still in flight, skipping tick")
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("cycle aborted", zap.Any("panic", r))
			}
		}()
		_ = s.RunCycle(ctx)
	}()
}

// Start performs the Starting → Online transition. Both calls are best
// effort: the session goes Online once they have been attempted.
func (s *Session) Start(ctx context.Context) {
	s.log.Info("starting device session",
		zap.String("deviceHash", s.account.DeviceHash),
		zap.String("proxy", proxypool.Display(s.proxy)))
	s.note("Toggling device ON")

	var errs []error
	if err := guard("toggle ON", func() error { return s.toggle(ctx, true) }); err != nil {
		errs = append(errs, err)
	}
	s.note("Sending initial heartbeat")
	toggleOn := s.ToggleAcknowledged()
	if err := guard("heartbeat", func() error { return s.api.Heartbeat(ctx, toggleOn) }); err != nil {
		s.log.Warn("initial heartbeat failed", zap.Error(err))
		errs = append(errs, err)
	}

	startErr := errors.Join(errs...)
	s.update(func() {
		s.state = model.StateOnline
		s.lastError = startErr
		if startErr != nil {
			s.message = "Online, startup calls failed: " + startErr.Error()
		} else {
			s.message = "Device online"
		}
	})
	s.log.Info("device session online", zap.Bool("toggleAcknowledged", toggleOn), zap.NamedError("startupError", startErr))
}

// toggle sets the remote device state. Only a successful call changes
// toggleAck, and state is never touched here.
func (s *Session) toggle(ctx context.Context, on bool) error {
	label := "OFF"
	if on {
		label = "ON"
	}
	if err := s.api.Toggle(ctx, on); err != nil {
		s.log.Warn("toggle failed", zap.String("state", label), zap.Error(err))
		return err
	}
	s.update(func() { s.toggleAck = on })
	s.log.Info("device toggled", zap.String("state", label))
	return nil
}

// RunCycle executes one heartbeat cycle. Each outbound call is contained on
// its own; any failure demotes the session to Degraded and none of them is
// returned to the scheduler as anything but a value.
func (s *Session) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
			s.finishCycle(err)
		}
	}()

	var cycle int
	var needsToggle bool
	s.update(func() {
		s.uptimeCycles++
		cycle = s.uptimeCycles
		needsToggle = s.state == model.StateDegraded || !s.toggleAck
		s.message = fmt.Sprintf("Running cycle %d", cycle)
	})
	if cycle%wakeAlarmEvery == 0 {
		s.log.Debug("service worker wake-up alarm triggered", zap.Int("cycle", cycle))
	}

	var errs []error
	if needsToggle {
		if err := guard("toggle ON", func() error { return s.toggle(ctx, true) }); err != nil {
			errs = append(errs, err)
		}
	}

	toggleOn := s.ToggleAcknowledged()
	var (
		heartbeatErr error
		detailsErr   error
		details      model.WalletDetails
		g            errgroup.Group
	)
	g.Go(func() error {
		heartbeatErr = guard("heartbeat", func() error { return s.api.Heartbeat(ctx, toggleOn) })
		return nil
	})
	g.Go(func() error {
		detailsErr = guard("wallet details", func() error {
			var err error
			details, err = s.api.WalletDetails(ctx)
			return err
		})
		return nil
	})
	_ = g.Wait()

	if heartbeatErr != nil {
		s.log.Warn("heartbeat failed", zap.Int("cycle", cycle), zap.Error(heartbeatErr))
		errs = append(errs, heartbeatErr)
	}
	if detailsErr != nil {
		s.log.Warn("wallet details failed", zap.Int("cycle", cycle), zap.Error(detailsErr))
		errs = append(errs, detailsErr)
	} else {
		s.reportEarnings(details, cycle)
	}

	err = errors.Join(errs...)
	s.finishCycle(err)
	return err
}

func (s *Session) finishCycle(err error) {
	var cycle int
	stopped := false
	s.update(func() {
		cycle = s.uptimeCycles
		if s.state == model.StateStopped {
			stopped = true
			return
		}
		s.lastError = err
		if err != nil {
			s.state = model.StateDegraded
			s.message = "Cycle failed: " + err.Error()
		} else {
			s.state = model.StateOnline
			s.message = "Heartbeat cycle complete"
		}
	})

	switch {
	case stopped:
		s.log.Info("cycle finished after stop", zap.Int("cycle", cycle), zap.NamedError("cycleError", err))
		return
	case err != nil:
		s.log.Warn("heartbeat cycle degraded", zap.Int("cycle", cycle), zap.Error(err))
	default:
		s.log.Info("heartbeat cycle complete", zap.Int("cycle", cycle))
	}

	if s.recorder != nil {
		if recErr := s.recorder.RecordCycle(s.account.WalletAddress, s.now(), err == nil); recErr != nil {
			s.log.Warn("failed to record cycle", zap.Error(recErr))
		}
	}
}

func (s *Session) reportEarnings(details model.WalletDetails, cycle int) {
	if s.State() == model.StateStopped {
		return
	}
	uptime := time.Duration(cycle) * s.period
	figure, ok := Earnings(details, uptime)
	if !ok {
		return
	}

	s.update(func() {
		s.earnings = figure
		s.hasEarnings = true
		s.rank = details.Rank
	})
	s.log.Info("wallet details",
		zap.String("wallet", utils.ShortenAddress(s.account.WalletAddress)),
		zap.String("points", utils.FormatPoints(figure)),
		zap.String("rank", details.Rank))

	if s.recorder != nil {
		if err := s.recorder.UpdateEarning(s.account.WalletAddress, s.now(), figure, details.Rank); err != nil {
			s.log.Warn("failed to record earnings", zap.Error(err))
		}
	}
}

// Earnings prefers the points total reported by the platform and falls back
// to the active rate accrued over the session's uptime.
func Earnings(details model.WalletDetails, uptime time.Duration) (float64, bool) {
	if details.Points != nil {
		return *details.Points, true
	}
	if details.ActiveRatePerMinute != nil {
		return *details.ActiveRatePerMinute * uptime.Minutes(), true
	}
	return 0, false
}

// Stop issues the single best-effort OFF toggle and marks the session
// Stopped. Later calls are no-ops.
func (s *Session) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.note("Toggling device OFF")
		if err := guard("toggle OFF", func() error { return s.toggle(ctx, false) }); err != nil {
			s.update(func() { s.lastError = err })
		}
		s.update(func() {
			s.state = model.StateStopped
			s.message = fmt.Sprintf("Stopped after %d cycles", s.uptimeCycles)
		})
		s.log.Info("device session stopped", zap.Int("uptimeCycles", s.UptimeCycles()))
	})
}

// MarkStopped retires a session that never started; no remote call is made.
func (s *Session) MarkStopped() {
	s.stopOnce.Do(func() {
		s.update(func() {
			s.state = model.StateStopped
			s.message = "Stopped before start"
		})
	})
}

// guard turns a panic inside an outbound call into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &model.TransportError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}
