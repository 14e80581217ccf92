// Package linkcheck implements bounded-concurrency verification of a set of
// URLs. Fragment identifiers are stripped and duplicates collapsed before any
// request is made, a counting gate caps in-flight requests, and each outcome
// is classified against the active Policy. Redirects are never followed; only
// a 200 response counts as success.
package linkcheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/siteqa/internal/metrics"
)

const userAgent = "SiteQA-LinkChecker/1.0"

// doer abstracts *http.Client for tests.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker verifies URL sets under a Policy. Safe for repeated runs; each
// CheckAll call is an independent batch.
type Checker struct {
	policy   Policy
	client   doer
	insecure doer // certificate verification disabled, for the TLS-tolerant retry
	cache    ResultCache
	events   EventPublisher
	recorder metrics.Recorder
	sem      chan struct{}
}

// Option configures optional Checker collaborators.
type Option func(*Checker)

// WithCache attaches a cross-run result cache.
func WithCache(cache ResultCache) Option {
	return func(c *Checker) { c.cache = cache }
}

// WithPublisher attaches a broken link event publisher.
func WithPublisher(pub EventPublisher) Option {
	return func(c *Checker) { c.events = pub }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(c *Checker) { c.recorder = rec }
}

// New validates the policy and builds a Checker. The HTTP clients disable
// redirect following: a redirect response is a result, not a hop to take.
func New(policy Policy, opts ...Option) (*Checker, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	// Respects HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
	transport := http.DefaultTransport.(*http.Transport).Clone()

	insecureTransport := transport.Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	noRedirect := func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c := &Checker{
		policy:   policy,
		client:   &http.Client{Timeout: policy.Timeout, Transport: transport, CheckRedirect: noRedirect},
		insecure: &http.Client{Timeout: policy.Timeout, Transport: insecureTransport, CheckRedirect: noRedirect},
		recorder: metrics.NoopRecorder{},
		sem:      make(chan struct{}, policy.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CheckAll verifies every distinct URL in urls (post fragment-stripping
// dedup) and returns the aggregate Report. A non-nil error means an
// intolerable transport failure aborted the batch; no Report is produced on
// that path. Late completions after an abort are discarded, never merged.
func (c *Checker) CheckAll(ctx context.Context, urls []string) (*Report, error) {
	targets := NormalizeTargets(urls)

	c.recorder.SetLinkConcurrency(c.policy.MaxConcurrent)
	c.recorder.AddLinksChecked(len(targets))

	report := &Report{RunID: uuid.NewString(), Checked: len(targets)}
	if len(targets) == 0 {
		return report, nil
	}

	slog.Info("Starting link verification",
		"run_id", report.RunID,
		"targets", len(targets),
		"max_concurrent", c.policy.MaxConcurrent)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		outcomes []Outcome
		wg       sync.WaitGroup

		fatalOnce sync.Once
		fatalErr  error
	)
	abort := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	for _, target := range targets {
		// Acquire the gate before spawning work for this URL; release on
		// every exit path so a failure cannot leak capacity.
		select {
		case <-runCtx.Done():
			wg.Wait()
			if fatalErr != nil {
				return nil, fatalErr
			}
			return nil, runCtx.Err()
		case c.sem <- struct{}{}:
		}
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			defer func() { <-c.sem }()

			outcome, err := c.checkOne(runCtx, report.RunID, target)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return // another worker already aborted the batch
				}
				abort(err)
				return
			}
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	if fatalErr != nil {
		return nil, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		c.recorder.IncLinkOutcome(o.metricLabel())
		switch o.Kind {
		case KindFailure:
			report.Failures = append(report.Failures, o)
		case KindTransportError:
			report.Warnings = append(report.Warnings, o)
		}
	}
	sortOutcomes(report.Failures)
	sortOutcomes(report.Warnings)

	slog.Info("Link verification completed",
		"run_id", report.RunID,
		"targets", len(targets),
		"failures", len(report.Failures),
		"warnings", len(report.Warnings))

	return report, nil
}

// checkOne verifies a single URL. A returned error is fatal to the batch;
// tolerated problems come back as Outcome values instead.
func (c *Checker) checkOne(ctx context.Context, runID, target string) (Outcome, error) {
	if cached := c.lookupCached(ctx, target); cached != nil {
		if cached.Valid {
			slog.Debug("Skipping cached healthy link", "url", target, "status", cached.Status)
			return Outcome{URL: target, Kind: KindSkipped, Status: cached.Status}, nil
		}
		outcome := Outcome{URL: target, Kind: KindFailure, Status: cached.Status, Detail: cached.Kind}
		c.publishFailure(ctx, runID, outcome, cached)
		return outcome, nil
	}

	status, err := c.fetch(ctx, c.client, target)
	if err != nil && classifyTransportError(err) == ErrKindTLS {
		if !c.policy.TolerateTLSErrors {
			return Outcome{}, fmt.Errorf("TLS verification failed for %s: %w", target, err)
		}
		slog.Warn("TLS error, retrying without certificate verification", "url", target, "error", err)
		status, err = c.fetch(ctx, c.insecure, target)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, context.Canceled
		}
		kind := classifyTransportError(err)
		if !c.policy.TolerateHTTPErrors {
			return Outcome{}, fmt.Errorf("fetch %s (%s): %w", target, kind, err)
		}
		slog.Warn("Tolerated link failure", "url", target, "kind", kind, "error", err)
		return Outcome{URL: target, Kind: KindTransportError, ErrKind: kind, Detail: err.Error()}, nil
	}

	outcome := Outcome{URL: target, Kind: KindSuccess, Status: status}
	if status != http.StatusOK {
		outcome.Kind = KindFailure
	}

	entry := c.storeResult(ctx, outcome)
	if outcome.Kind == KindFailure {
		c.publishFailure(ctx, runID, outcome, entry)
	}
	return outcome, nil
}

// fetch issues one GET with redirects disabled and drains the body so the
// connection can be reused.
func (c *Checker) fetch(ctx context.Context, client doer, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	c.recorder.ObserveLinkCheckDuration(time.Since(start))
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close() // Ignore close errors after drain
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (c *Checker) lookupCached(ctx context.Context, target string) *CacheEntry {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Lookup(ctx, target)
	if err != nil {
		slog.Debug("Link cache lookup failed", "url", target, "error", err)
		return nil
	}
	return entry
}

func (c *Checker) storeResult(ctx context.Context, outcome Outcome) *CacheEntry {
	entry := &CacheEntry{
		URL:         outcome.URL,
		Status:      outcome.Status,
		Valid:       outcome.Kind == KindSuccess,
		LastChecked: time.Now(),
	}
	if !entry.Valid {
		entry.Kind = outcome.metricLabel()
		entry.FailureCount = 1
		entry.FirstFailedAt = entry.LastChecked
	}
	if c.cache == nil {
		return entry
	}
	if err := c.cache.Store(ctx, entry); err != nil {
		slog.Warn("Failed to update link cache", "url", outcome.URL, "error", err)
	}
	return entry
}

func (c *Checker) publishFailure(ctx context.Context, runID string, outcome Outcome, entry *CacheEntry) {
	slog.Warn("Broken link detected", "url", outcome.URL, "status", outcome.Status)
	if c.events == nil {
		return
	}
	ev := &BrokenLinkEvent{
		URL:       outcome.URL,
		Status:    outcome.Status,
		Kind:      outcome.metricLabel(),
		Error:     outcome.Detail,
		RunID:     runID,
		Timestamp: time.Now(),
	}
	if entry != nil {
		ev.FailureCount = entry.FailureCount
		ev.FirstFailedAt = entry.FirstFailedAt
	}
	if err := c.events.PublishBrokenLink(ctx, ev); err != nil {
		slog.Error("Failed to publish broken link event", "url", outcome.URL, "error", err)
	}
}

// classifyTransportError maps request errors onto the policy taxonomy.
func classifyTransportError(err error) ErrorKind {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ErrKindTLS
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return ErrKindTLS
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return ErrKindTLS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrKindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrKindConnection
	}
	return ErrKindHTTP
}

func sortOutcomes(outcomes []Outcome) {
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].URL < outcomes[j].URL })
}
