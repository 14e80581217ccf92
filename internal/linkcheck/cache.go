package linkcheck

import (
	"context"
	"time"
)

// CacheEntry is the persisted verification state for one URL.
type CacheEntry struct {
	URL           string
	Status        int
	Valid         bool   // true when the last check returned 200
	Kind          string // failure classification when not valid
	LastChecked   time.Time
	FailureCount  int
	FirstFailedAt time.Time
}

// ResultCache stores verification results across runs so unchanged healthy
// links can be skipped. Lookup returns (nil, nil) on a miss or an expired
// entry; the cache owns its validity window.
type ResultCache interface {
	Lookup(ctx context.Context, url string) (*CacheEntry, error)
	Store(ctx context.Context, entry *CacheEntry) error
}
