package linkcheck

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	stores  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*CacheEntry)}
}

func (f *fakeCache) Lookup(_ context.Context, url string) (*CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[url]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeCache) Store(_ context.Context, entry *CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries[entry.URL] = &cp
	f.stores++
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*BrokenLinkEvent
}

func (f *fakePublisher) PublishBrokenLink(_ context.Context, ev *BrokenLinkEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func TestChecker_CachedHealthyLinkSkipsNetwork(t *testing.T) {
	cache := newFakeCache()
	cache.entries["https://a.example/"] = &CacheEntry{
		URL: "https://a.example/", Status: http.StatusOK, Valid: true, LastChecked: time.Now(),
	}

	var requests atomic.Int64
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		requests.Add(1)
		return okResponse(), nil
	}), WithCache(cache))

	report, err := c.CheckAll(context.Background(), []string{"https://a.example/"})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if !report.Passed() {
		t.Fatalf("cached healthy link must pass")
	}
	if requests.Load() != 0 {
		t.Fatalf("expected cache to suppress the request, got %d", requests.Load())
	}
}

func TestChecker_CachedBrokenLinkStillFails(t *testing.T) {
	cache := newFakeCache()
	cache.entries["https://a.example/gone"] = &CacheEntry{
		URL: "https://a.example/gone", Status: http.StatusNotFound, Valid: false,
		Kind: "failure", LastChecked: time.Now(), FailureCount: 3,
	}

	pub := &fakePublisher{}
	var requests atomic.Int64
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		requests.Add(1)
		return okResponse(), nil
	}), WithCache(cache), WithPublisher(pub))

	report, err := c.CheckAll(context.Background(), []string{"https://a.example/gone"})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if report.Passed() {
		t.Fatalf("cached broken link must keep failing the aggregate")
	}
	if requests.Load() != 0 {
		t.Fatalf("expected no request for cached broken link, got %d", requests.Load())
	}
	if len(pub.events) != 1 || pub.events[0].FailureCount != 3 {
		t.Fatalf("expected republished event with cached failure count, got %+v", pub.events)
	}
}

func TestChecker_FailuresAreCachedAndPublished(t *testing.T) {
	cache := newFakeCache()
	pub := &fakePublisher{}
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found", Body: http.NoBody}, nil
	}), WithCache(cache), WithPublisher(pub))

	report, err := c.CheckAll(context.Background(), []string{"https://a.example/missing"})
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if report.Passed() {
		t.Fatalf("expected failure")
	}

	entry, ok := cache.entries["https://a.example/missing"]
	if !ok || entry.Valid || entry.Status != http.StatusNotFound {
		t.Fatalf("expected invalid cache entry with status 404, got %+v", entry)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 broken link event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.URL != "https://a.example/missing" || ev.Status != http.StatusNotFound || ev.RunID != report.RunID {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestChecker_SuccessesAreCachedValid(t *testing.T) {
	cache := newFakeCache()
	c := newTestChecker(t, DefaultPolicy(), roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(), nil
	}), WithCache(cache))

	if _, err := c.CheckAll(context.Background(), []string{"https://a.example/"}); err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	entry, ok := cache.entries["https://a.example/"]
	if !ok || !entry.Valid || entry.Status != http.StatusOK {
		t.Fatalf("expected valid cached entry, got %+v", entry)
	}
}
