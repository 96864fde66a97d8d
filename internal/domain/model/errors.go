package model

import "fmt"

// ConfigError marks an unreadable or malformed startup source. It is the
// only error class allowed to end the process.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError scopes a token problem to a single account.
type ValidationError struct {
	Wallet string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("account %s rejected: %s: %v", e.Wallet, e.Reason, e.Err)
	}
	return fmt.Sprintf("account %s rejected: %s", e.Wallet, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError wraps any failed outbound call. Sessions recover from it on
// the next cycle.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
