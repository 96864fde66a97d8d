package model

import "time"

type SessionState int32

const (
	StateStarting SessionState = iota
	StateOnline
	StateDegraded
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateOnline:
		return "ONLINE"
	case StateDegraded:
		return "DEGRADED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// DeviceStatus is a read-only snapshot of one session, handed to the UI
// and to the shutdown summary.
type DeviceStatus struct {
	AccIdx       int
	Address      string
	Proxy        string
	State        SessionState
	ToggleOn     bool
	UptimeCycles int
	Earnings     float64
	HasEarnings  bool
	Rank         string
	LastError    string
	Message      string
	NextCycle    time.Time
}
