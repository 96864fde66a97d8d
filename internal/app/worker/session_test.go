package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

const testWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newTestSession(api RemoteAPI, rec CycleRecorder, log *zap.Logger) *Session {
	cfg := SessionConfig{
		Account: model.Account{WalletAddress: testWallet, Token: "t", DeviceHash: "1234"},
		API:     api,
		Period:  time.Minute,
		Log:     log,
	}
	if rec != nil {
		cfg.Recorder = rec
	}
	return NewSession(cfg)
}

func TestStartGoesOnlineWhenCallsSucceed(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	require.Equal(t, model.StateStarting, s.State())

	s.Start(context.Background())

	require.Equal(t, model.StateOnline, s.State())
	require.True(t, s.ToggleAcknowledged())
	require.NoError(t, s.LastError())
	require.Equal(t, []bool{true}, api.toggles())
	require.Equal(t, []bool{true}, api.heartbeats)
}

func TestStartGoesOnlineWhenCallsFail(t *testing.T) {
	api := &fakeAPI{toggleErr: errBackend, heartbeatErr: errBackend}
	s := newTestSession(api, nil, nil)

	s.Start(context.Background())

	require.Equal(t, model.StateOnline, s.State())
	require.False(t, s.ToggleAcknowledged())
	require.ErrorIs(t, s.LastError(), errBackend)
	require.Equal(t, []bool{false}, api.heartbeats)
}

func TestCycleSuccessKeepsOnline(t *testing.T) {
	api := &fakeAPI{points: 1234.5}
	rec := &fakeRecorder{}
	s := newTestSession(api, rec, nil)
	s.Start(context.Background())

	require.NoError(t, s.RunCycle(context.Background()))

	require.Equal(t, model.StateOnline, s.State())
	require.Equal(t, 1, s.UptimeCycles())
	require.Len(t, api.toggles(), 1, "no ON retry while online and acknowledged")
	require.Equal(t, 2, api.heartbeatCount())
	require.Equal(t, []recordedCycle{{address: testWallet, ok: true}}, rec.cycles)
	require.Equal(t, []float64{1234.5}, rec.earnings)

	st := s.Status()
	require.True(t, st.HasEarnings)
	require.Equal(t, 1234.5, st.Earnings)
	require.Equal(t, "42", st.Rank)
}

func TestCycleFailureDegradesThenRecovers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	api := &fakeAPI{}
	rec := &fakeRecorder{}
	s := newTestSession(api, rec, zap.New(core))
	s.Start(context.Background())

	api.set(func(f *fakeAPI) { f.heartbeatErr = errBackend })
	err := s.RunCycle(context.Background())
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, model.StateDegraded, s.State())
	require.Equal(t, 1, api.detailsCalls, "wallet details still queried when heartbeat fails")
	require.Len(t, rec.earnings, 1)
	require.Equal(t, 1, logs.FilterMessage("heartbeat cycle degraded").Len())

	api.set(func(f *fakeAPI) { f.heartbeatErr = nil })
	require.NoError(t, s.RunCycle(context.Background()))
	require.Equal(t, model.StateOnline, s.State())
	require.Equal(t, []bool{true, true}, api.toggles(), "degraded cycle re-issues ON first")
	require.Equal(t, 2, s.UptimeCycles())
	require.Equal(t, []recordedCycle{{testWallet, false}, {testWallet, true}}, rec.cycles)
}

func TestCycleRetriesToggleWhenStartToggleFailed(t *testing.T) {
	api := &fakeAPI{toggleErr: errBackend}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())
	require.False(t, s.ToggleAcknowledged())

	api.set(func(f *fakeAPI) { f.toggleErr = nil })
	require.NoError(t, s.RunCycle(context.Background()))
	require.True(t, s.ToggleAcknowledged())
	require.Equal(t, []bool{true, true}, api.toggles())
	require.Equal(t, []bool{false, true}, api.heartbeats, "cycle heartbeat reports the acknowledged toggle")
}

func TestWalletDetailsFailureDegrades(t *testing.T) {
	api := &fakeAPI{detailsErr: errBackend}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())

	require.Error(t, s.RunCycle(context.Background()))
	require.Equal(t, model.StateDegraded, s.State())
	require.Equal(t, 2, api.heartbeatCount())
	require.False(t, s.Status().HasEarnings)
}

func TestToggleOnIsIdempotentWhileOnline(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.toggle(context.Background(), true))
		require.True(t, s.ToggleAcknowledged())
		require.Equal(t, model.StateOnline, s.State())
	}
}

func TestFailedToggleLeavesAcknowledgement(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())

	api.set(func(f *fakeAPI) { f.toggleErr = errBackend })
	require.Error(t, s.toggle(context.Background(), false))
	require.True(t, s.ToggleAcknowledged())
	require.Equal(t, model.StateOnline, s.State())
}

func TestPanicInCallIsContained(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())

	api.set(func(f *fakeAPI) { f.panicOn = "heartbeat" })
	err := s.RunCycle(context.Background())

	var tErr *model.TransportError
	require.True(t, errors.As(err, &tErr))
	require.Equal(t, "heartbeat", tErr.Op)
	require.Equal(t, model.StateDegraded, s.State())
}

func TestStopIssuesExactlyOneOffToggle(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())

	s.Stop(context.Background())
	s.Stop(context.Background())

	require.Equal(t, model.StateStopped, s.State())
	require.Equal(t, 1, api.offToggles())
	require.False(t, s.ToggleAcknowledged())
}

func TestStopOffFailureStillStops(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())
	api.set(func(f *fakeAPI) { f.toggleErr = errBackend })

	s.Stop(context.Background())

	require.Equal(t, model.StateStopped, s.State())
	require.Equal(t, 1, api.offToggles())
	require.True(t, s.ToggleAcknowledged())
	require.ErrorIs(t, s.LastError(), errBackend)
}

func TestMarkStoppedMakesNoCalls(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)

	s.MarkStopped()
	s.Stop(context.Background())

	require.Equal(t, model.StateStopped, s.State())
	require.Empty(t, api.toggles())
}

func TestDispatchSkipsWhileBusy(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	s.Start(context.Background())

	hold := make(chan struct{})
	api.set(func(f *fakeAPI) { f.heartbeatHold = hold })

	for i := 0; i < 5; i++ {
		s.dispatch(context.Background())
	}
	require.Eventually(t, func() bool { return api.heartbeatCount() == 2 }, time.Second, 5*time.Millisecond)

	close(hold)
	s.inflight.Wait()

	require.Equal(t, 1, s.UptimeCycles())
	require.Equal(t, int32(1), api.maxInflight.Load())
	require.Equal(t, 2, api.heartbeatCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	api := &fakeAPI{}
	s := NewSession(SessionConfig{
		Account: model.Account{WalletAddress: testWallet, Token: "t", DeviceHash: "1"},
		API:     api,
		Period:  10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.UptimeCycles() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, model.StateStopped, s.State())
	require.Equal(t, 1, api.offToggles())

	cycles := s.UptimeCycles()
	beats := api.heartbeatCount()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, cycles, s.UptimeCycles())
	require.Equal(t, beats, api.heartbeatCount())
}

func TestRunTogglesOffWhileCycleIsHeld(t *testing.T) {
	api := &fakeAPI{}
	rec := &fakeRecorder{}
	s := NewSession(SessionConfig{
		Account:     model.Account{WalletAddress: testWallet, Token: "t", DeviceHash: "1"},
		API:         api,
		Period:      10 * time.Millisecond,
		StopTimeout: 200 * time.Millisecond,
		Recorder:    rec,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.State() == model.StateOnline }, time.Second, time.Millisecond)

	hold := make(chan struct{})
	api.set(func(f *fakeAPI) { f.heartbeatHold = hold })
	require.Eventually(t, func() bool { return api.inflight.Load() == 1 }, time.Second, time.Millisecond)

	began := time.Now()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run blocked behind the held cycle")
	}
	require.Less(t, time.Since(began), 500*time.Millisecond)
	require.Equal(t, model.StateStopped, s.State())
	require.Equal(t, 1, api.offToggles())

	recorded := len(rec.cycles)
	close(hold)
	s.inflight.Wait()

	require.Equal(t, model.StateStopped, s.State(), "late cycle cannot revive a stopped session")
	require.Equal(t, 1, api.offToggles())
	require.Len(t, rec.cycles, recorded, "late cycle is not recorded")
}

func TestRunWithCancelledContextNeverStarts(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Run(ctx)

	require.Equal(t, model.StateStopped, s.State())
	require.Empty(t, api.toggles())
}

func TestEarnings(t *testing.T) {
	points := 10.0
	rate := 2.0

	got, ok := Earnings(model.WalletDetails{Points: &points, ActiveRatePerMinute: &rate}, time.Hour)
	require.True(t, ok)
	require.Equal(t, 10.0, got)

	got, ok = Earnings(model.WalletDetails{ActiveRatePerMinute: &rate}, 3*time.Minute)
	require.True(t, ok)
	require.Equal(t, 6.0, got)

	_, ok = Earnings(model.WalletDetails{}, time.Minute)
	require.False(t, ok)
}
