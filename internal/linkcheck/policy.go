package linkcheck

import (
	"fmt"
	"time"
)

// Defaults for Policy fields left unset by configuration.
const (
	DefaultMaxConcurrent = 16
	DefaultTimeout       = 10 * time.Second
)

// Policy controls one verification run. It is immutable for the duration of
// the run.
type Policy struct {
	// MaxConcurrent bounds the number of in-flight requests. Must be positive.
	MaxConcurrent int
	// Timeout applies per request. Must be positive.
	Timeout time.Duration
	// TolerateTLSErrors retries certificate failures once with verification
	// disabled instead of aborting the run.
	TolerateTLSErrors bool
	// TolerateHTTPErrors degrades timeouts, connection failures and other
	// request-level errors to warnings instead of aborting the run.
	TolerateHTTPErrors bool
}

// DefaultPolicy returns the intolerant default policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxConcurrent: DefaultMaxConcurrent,
		Timeout:       DefaultTimeout,
	}
}

// Validate rejects malformed policies up front, before any request is made.
func (p Policy) Validate() error {
	if p.MaxConcurrent <= 0 {
		return fmt.Errorf("link check policy: max concurrent must be positive, got %d", p.MaxConcurrent)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("link check policy: timeout must be positive, got %s", p.Timeout)
	}
	return nil
}
