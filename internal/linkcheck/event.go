package linkcheck

import (
	"context"
	"time"
)

// BrokenLinkEvent describes a failing URL discovered during verification.
// Events are handed to the configured EventPublisher for downstream
// processing (for example filing an issue against the tutorial repository).
type BrokenLinkEvent struct {
	URL       string    `json:"url"`
	Status    int       `json:"status"` // 0 for non-HTTP failures
	Kind      string    `json:"kind"`   // failure classification
	Error     string    `json:"error,omitempty"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	// Failure tracking carried over from the result cache, when available.
	FailureCount  int       `json:"failure_count,omitempty"`
	FirstFailedAt time.Time `json:"first_failed_at,omitzero"`
}

// EventPublisher forwards broken link events. Implementations must be safe
// for concurrent use; publish errors are logged, never fatal to a run.
type EventPublisher interface {
	PublishBrokenLink(ctx context.Context, ev *BrokenLinkEvent) error
}
