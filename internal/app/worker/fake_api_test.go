package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

var errBackend = errors.New("backend unavailable")

type fakeAPI struct {
	mu            sync.Mutex
	toggleCalls   []bool
	heartbeats    []bool
	detailsCalls  int
	toggleErr     error
	heartbeatErr  error
	detailsErr    error
	heartbeatHold chan struct{}
	panicOn       string
	points        float64

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeAPI) enter() func() {
	n := f.inflight.Add(1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	return func() { f.inflight.Add(-1) }
}

func (f *fakeAPI) Toggle(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleCalls = append(f.toggleCalls, on)
	if f.panicOn == "toggle" {
		panic("toggle exploded")
	}
	return f.toggleErr
}

func (f *fakeAPI) Heartbeat(_ context.Context, toggleState bool) error {
	defer f.enter()()
	f.mu.Lock()
	hold := f.heartbeatHold
	f.heartbeats = append(f.heartbeats, toggleState)
	err := f.heartbeatErr
	p := f.panicOn
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if p == "heartbeat" {
		panic("heartbeat exploded")
	}
	return err
}

func (f *fakeAPI) WalletDetails(_ context.Context) (model.WalletDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailsCalls++
	if f.detailsErr != nil {
		return model.WalletDetails{}, f.detailsErr
	}
	pts := f.points
	return model.WalletDetails{Points: &pts, Rank: "42"}, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) offToggles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, on := range f.toggleCalls {
		if !on {
			n++
		}
	}
	return n
}

func (f *fakeAPI) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heartbeats)
}

func (f *fakeAPI) toggles() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.toggleCalls...)
}

type recordedCycle struct {
	address string
	ok      bool
}

type fakeRecorder struct {
	mu       sync.Mutex
	cycles   []recordedCycle
	earnings []float64
}

func (r *fakeRecorder) RecordCycle(address string, _ time.Time, ok bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, recordedCycle{address: address, ok: ok})
	return nil
}

func (r *fakeRecorder) UpdateEarning(_ string, _ time.Time, points float64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.earnings = append(r.earnings, points)
	return nil
}
