package linkcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestChecker(t *testing.T, policy Policy, rt http.RoundTripper, opts ...Option) *Checker {
	t.Helper()
	c, err := New(policy, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt != nil {
		c.client = &http.Client{Transport: rt, CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
	}
	return c
}

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Status: "200 OK", Body: http.NoBody}
}

func TestChecker_AllHealthyLinksPass(t *testing.T) {
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(), nil
	}))

	report, err := c.CheckAll(context.Background(), []string{"https://a.example/x", "https://b.example/y"})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if !report.Passed() {
		t.Fatalf("expected passing report, failures: %v", report.Diagnostics())
	}
	if len(report.Diagnostics()) != 0 {
		t.Fatalf("expected empty diagnostics, got %v", report.Diagnostics())
	}
}

func TestChecker_NonOKStatusFailsAggregate(t *testing.T) {
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "b.example" {
			return &http.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found", Body: http.NoBody}, nil
		}
		return okResponse(), nil
	}))

	report, err := c.CheckAll(context.Background(), []string{
		"https://a.example/x",
		"https://b.example/y",
		"https://c.example/z",
	})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if report.Passed() {
		t.Fatalf("expected failing report")
	}
	want := []string{"https://b.example/y: 404"}
	if got := report.Diagnostics(); !reflect.DeepEqual(got, want) {
		t.Fatalf("diagnostics = %v, want %v", got, want)
	}
}

func TestChecker_RedirectIsFailureNotFollowed(t *testing.T) {
	var followed atomic.Int64
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved":
			w.Header().Set("Location", srv.URL+"/target")
			w.WriteHeader(http.StatusMovedPermanently)
		case "/target":
			followed.Add(1)
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestChecker(t, DefaultPolicy(), nil)

	report, err := c.CheckAll(context.Background(), []string{srv.URL + "/moved"})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if report.Passed() {
		t.Fatalf("expected redirect to be recorded as failure")
	}
	want := srv.URL + "/moved: 301"
	if got := report.Diagnostics(); len(got) != 1 || got[0] != want {
		t.Fatalf("diagnostics = %v, want [%s]", got, want)
	}
	if followed.Load() != 0 {
		t.Fatalf("redirect target was fetched %d times, engine must not follow", followed.Load())
	}
}

func TestChecker_FragmentVariantsAreOneNetworkTarget(t *testing.T) {
	var requests atomic.Int64
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		requests.Add(1)
		return okResponse(), nil
	}))

	_, err := c.CheckAll(context.Background(), []string{
		"https://x.example/y#a",
		"https://x.example/y#b",
		"https://x.example/y",
	})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected exactly 1 request post-dedup, got %d", requests.Load())
	}
}

func TestChecker_NetworkOperationsMatchDistinctURLs(t *testing.T) {
	var requests atomic.Int64
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		requests.Add(1)
		return okResponse(), nil
	}))

	urls := []string{
		"https://a.example/",
		"https://a.example/#top",
		"https://b.example/doc",
		"https://b.example/doc#s1",
		"https://b.example/doc#s2",
		"https://c.example/",
	}
	report, err := c.CheckAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if report.Checked != 3 {
		t.Fatalf("Checked = %d, want 3", report.Checked)
	}
	if requests.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", requests.Load())
	}
}

func TestChecker_EmptyURLSetPassesWithoutRequests(t *testing.T) {
	var requests atomic.Int64
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		requests.Add(1)
		return okResponse(), nil
	}))

	report, err := c.CheckAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if !report.Passed() || len(report.Diagnostics()) != 0 {
		t.Fatalf("empty set must pass trivially, got %v", report.Diagnostics())
	}
	if requests.Load() != 0 {
		t.Fatalf("expected no requests, got %d", requests.Load())
	}
}

func TestChecker_ConcurrencyNeverExceedsLimit(t *testing.T) {
	const limit = 5

	var inFlight, maxSeen atomic.Int64
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		n := inFlight.Add(1)
		for {
			seen := maxSeen.Load()
			if n <= seen || maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return okResponse(), nil
	})

	policy := DefaultPolicy()
	policy.MaxConcurrent = limit
	c := newTestChecker(t, policy, rt)

	urls := make([]string, 0, 100)
	for i := range 100 {
		urls = append(urls, "https://host.example/p/"+strconv.Itoa(i))
	}

	if _, err := c.CheckAll(context.Background(), urls); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if maxSeen.Load() > limit {
		t.Fatalf("observed %d concurrent requests, limit is %d", maxSeen.Load(), limit)
	}
}

func TestChecker_RepeatedRunsAreIdempotent(t *testing.T) {
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/broken" {
			return &http.Response{StatusCode: http.StatusGone, Status: "410 Gone", Body: http.NoBody}, nil
		}
		return okResponse(), nil
	})
	urls := []string{"https://a.example/broken", "https://b.example/fine", "https://c.example/broken"}

	c := newTestChecker(t, DefaultPolicy(), rt)

	first, err := c.CheckAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := c.CheckAll(context.Background(), urls)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Passed() != second.Passed() {
		t.Fatalf("verdict changed between runs: %v vs %v", first.Passed(), second.Passed())
	}
	if !reflect.DeepEqual(first.Diagnostics(), second.Diagnostics()) {
		t.Fatalf("diagnostics changed between runs: %v vs %v", first.Diagnostics(), second.Diagnostics())
	}
}

func TestChecker_GateReleasedAfterFailures(t *testing.T) {
	// Every request fails with a status; if any exit path leaked gate
	// capacity the second batch would deadlock.
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found", Body: http.NoBody}, nil
	})
	policy := DefaultPolicy()
	policy.MaxConcurrent = 2
	c := newTestChecker(t, policy, rt)

	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3", "https://a.example/4"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 3 {
			if _, err := c.CheckAll(context.Background(), urls); err != nil {
				t.Errorf("CheckAll: %v", err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("checker deadlocked; gate capacity leaked")
	}
}

func TestChecker_PolicyValidation(t *testing.T) {
	if _, err := New(Policy{MaxConcurrent: 0, Timeout: time.Second}); err == nil {
		t.Fatalf("expected error for non-positive concurrency")
	}
	if _, err := New(Policy{MaxConcurrent: 4, Timeout: 0}); err == nil {
		t.Fatalf("expected error for non-positive timeout")
	}
	if _, err := New(DefaultPolicy()); err != nil {
		t.Fatalf("default policy must validate: %v", err)
	}
}
