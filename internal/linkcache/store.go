// Package linkcache persists link verification results between harness runs
// so recently confirmed healthy links are not re-fetched on every build.
package linkcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/siteqa/internal/linkcheck"
)

var _ linkcheck.ResultCache = (*Store)(nil)

// Store implements linkcheck.ResultCache on SQLite.
// Use ":memory:" for an ephemeral cache, or a file path for persistence.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	mu  sync.Mutex
}

// Open opens (creating if needed) the cache database. Entries older than ttl
// are treated as misses on Lookup.
func Open(dbPath string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("link cache: ttl must be positive, got %s", ttl)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open link cache database: %w", err)
	}

	store := &Store{db: db, ttl: ttl}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize link cache schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS link_results (
		url TEXT PRIMARY KEY,
		status INTEGER NOT NULL,
		valid INTEGER NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		last_checked INTEGER NOT NULL,
		failure_count INTEGER NOT NULL DEFAULT 0,
		first_failed_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_last_checked ON link_results(last_checked);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Lookup returns the cached entry for url, or nil when there is none or it
// has aged out of the validity window.
func (s *Store) Lookup(ctx context.Context, url string) (*linkcheck.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT status, valid, kind, last_checked, failure_count, first_failed_at
		 FROM link_results WHERE url = ?`, url)

	var (
		entry         = linkcheck.CacheEntry{URL: url}
		valid         int
		lastChecked   int64
		firstFailedAt int64
	)
	err := row.Scan(&entry.Status, &valid, &entry.Kind, &lastChecked, &entry.FailureCount, &firstFailedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link cache lookup %s: %w", url, err)
	}

	entry.Valid = valid != 0
	entry.LastChecked = time.Unix(lastChecked, 0)
	if firstFailedAt != 0 {
		entry.FirstFailedAt = time.Unix(firstFailedAt, 0)
	}

	if time.Since(entry.LastChecked) > s.ttl {
		return nil, nil
	}
	return &entry, nil
}

// Store upserts an entry. Failure tracking is merged here: a failure
// following a recorded failure increments the consecutive count and keeps
// the original first-failure timestamp.
func (s *Store) Store(ctx context.Context, entry *linkcheck.CacheEntry) error {
	if entry == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	failureCount := entry.FailureCount
	firstFailedAt := entry.FirstFailedAt

	if !entry.Valid {
		var prevCount int
		var prevFirst int64
		err := s.db.QueryRowContext(ctx,
			`SELECT failure_count, first_failed_at FROM link_results WHERE url = ? AND valid = 0`,
			entry.URL).Scan(&prevCount, &prevFirst)
		switch {
		case err == nil:
			failureCount = prevCount + 1
			if prevFirst != 0 {
				firstFailedAt = time.Unix(prevFirst, 0)
			}
		case errors.Is(err, sql.ErrNoRows):
			// first observed failure, keep the caller's values
		default:
			return fmt.Errorf("link cache read %s: %w", entry.URL, err)
		}
	}

	valid := 0
	if entry.Valid {
		valid = 1
	}
	var firstFailedUnix int64
	if !firstFailedAt.IsZero() {
		firstFailedUnix = firstFailedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO link_results (url, status, valid, kind, last_checked, failure_count, first_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			status = excluded.status,
			valid = excluded.valid,
			kind = excluded.kind,
			last_checked = excluded.last_checked,
			failure_count = excluded.failure_count,
			first_failed_at = excluded.first_failed_at`,
		entry.URL, entry.Status, valid, entry.Kind, entry.LastChecked.Unix(), failureCount, firstFailedUnix)
	if err != nil {
		return fmt.Errorf("link cache store %s: %w", entry.URL, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
