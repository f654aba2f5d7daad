package policy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/pagesnap/internal/fetch"
)

type fakeFetcher struct {
	calls  atomic.Int32
	status int
	body   string
	err    error
	delay  time.Duration
}

func (f *fakeFetcher) Get(ctx context.Context, _ string) (*fetch.Response, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Response{StatusCode: f.status, Body: []byte(f.body)}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]Entry)}
}

func (s *memoryStore) LoadPolicy(_ context.Context, origin string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[origin]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memoryStore) SavePolicy(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Origin] = e
	s.saves++
	return nil
}

func (s *memoryStore) DeletePolicy(_ context.Context, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, origin)
	return nil
}

const origin = "https://example.com"

func TestCacheGet(t *testing.T) {
	t.Parallel()

	t.Run("disallowed path is refused for our agent", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{status: http.StatusOK, body: "User-agent: *\nDisallow: /private\n"}
		c := NewCache(f)

		doc, err := c.Get(t.Context(), origin)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.Allowed("/private/report", "PagesnapBot") {
			t.Error("expected /private/report to be disallowed")
		}
		if !doc.Allowed("/news", "PagesnapBot") {
			t.Error("expected /news to be allowed")
		}
	})

	t.Run("agent specific group wins", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{status: http.StatusOK, body: "User-agent: PagesnapBot\nDisallow: /\n\nUser-agent: *\nAllow: /\n"}
		doc, err := NewCache(f).Get(t.Context(), origin)
		if err != nil {
			t.Fatal(err)
		}
		if doc.Allowed("/", "PagesnapBot") {
			t.Error("expected our agent to be disallowed")
		}
		if !doc.Allowed("/", "OtherBot") {
			t.Error("expected other agents to be allowed")
		}
	})

	t.Run("missing robots.txt allows all and is cached", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{status: http.StatusNotFound}
		c := NewCache(f)

		for range 3 {
			doc, err := c.Get(t.Context(), origin)
			if err != nil {
				t.Fatal(err)
			}
			if !doc.AllowAll() || !doc.Allowed("/admin", "PagesnapBot") {
				t.Error("expected allow-all document")
			}
		}
		if got := f.calls.Load(); got != 1 {
			t.Errorf("fetches = %d, want 1", got)
		}
	})

	t.Run("server error allows all", func(t *testing.T) {
		t.Parallel()

		doc, err := NewCache(&fakeFetcher{status: http.StatusServiceUnavailable}).Get(t.Context(), origin)
		if err != nil {
			t.Fatal(err)
		}
		if !doc.AllowAll() {
			t.Error("expected allow-all document")
		}
	})

	t.Run("transport error is returned and not cached", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{err: errors.New("connection refused")}
		c := NewCache(f)

		for range 2 {
			if _, err := c.Get(t.Context(), origin); !errors.Is(err, ErrFetchFailed) {
				t.Fatalf("error = %v, want ErrFetchFailed", err)
			}
		}
		if got := f.calls.Load(); got != 2 {
			t.Errorf("fetches = %d, want 2", got)
		}
		if _, ok := c.Peek(origin); ok {
			t.Error("failed fetch must not be cached")
		}
	})
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{status: http.StatusOK, body: "User-agent: *\nAllow: /\n"}
	c := NewCache(f, WithClock(clock.Now))

	get := func() {
		t.Helper()
		if _, err := c.Get(t.Context(), origin); err != nil {
			t.Fatal(err)
		}
	}

	get()
	clock.Advance(DefaultTTL - time.Minute)
	get()
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetches within TTL = %d, want 1", got)
	}

	clock.Advance(2 * time.Minute)
	get()
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetches after TTL = %d, want 2", got)
	}
}

func TestCacheSingleFlight(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{status: http.StatusOK, body: "User-agent: *\nAllow: /\n", delay: 50 * time.Millisecond}
	c := NewCache(f)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), origin); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *gatedFetcher) Get(ctx context.Context, _ string) (*fetch.Response, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &fetch.Response{StatusCode: http.StatusOK, Body: []byte("User-agent: *\nAllow: /\n")}, nil
}

func TestCacheSharedFetchSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	f := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(f)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Get(ctxA, origin)
		errA <- err
	}()

	<-f.started
	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller error = %v, want context.Canceled", err)
	}

	errB := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), origin)
		errB <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(f.release)

	select {
	case err := <-errB:
		if err != nil {
			t.Fatalf("second caller error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
	if _, ok := c.Peek(origin); !ok {
		t.Error("expected the shared fetch to populate the cache")
	}
}

func TestCacheStore(t *testing.T) {
	t.Parallel()

	t.Run("fetched policy is persisted", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore()
		c := NewCache(&fakeFetcher{status: http.StatusOK, body: "User-agent: *\nDisallow: /x\n"}, WithStore(store))
		if _, err := c.Get(t.Context(), origin); err != nil {
			t.Fatal(err)
		}
		if store.saves != 1 {
			t.Errorf("saves = %d, want 1", store.saves)
		}
	})

	t.Run("fresh stored policy avoids a fetch", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		store := newMemoryStore()
		_ = store.SavePolicy(t.Context(), Entry{
			Origin:     origin,
			StatusCode: http.StatusOK,
			Body:       []byte("User-agent: *\nDisallow: /stored\n"),
			FetchedAt:  clock.Now().Add(-time.Hour),
		})
		f := &fakeFetcher{status: http.StatusOK}
		c := NewCache(f, WithStore(store), WithClock(clock.Now))

		doc, err := c.Get(t.Context(), origin)
		if err != nil {
			t.Fatal(err)
		}
		if doc.Allowed("/stored", "PagesnapBot") {
			t.Error("expected stored rules to apply")
		}
		if f.calls.Load() != 0 {
			t.Error("expected no fetch")
		}
	})

	t.Run("expired stored policy is refetched", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		store := newMemoryStore()
		_ = store.SavePolicy(t.Context(), Entry{
			Origin:     origin,
			StatusCode: http.StatusOK,
			Body:       []byte("User-agent: *\nDisallow: /\n"),
			FetchedAt:  clock.Now().Add(-48 * time.Hour),
		})
		f := &fakeFetcher{status: http.StatusNotFound}
		c := NewCache(f, WithStore(store), WithClock(clock.Now))

		doc, err := c.Get(t.Context(), origin)
		if err != nil {
			t.Fatal(err)
		}
		if !doc.AllowAll() {
			t.Error("expected refetched allow-all document")
		}
		if f.calls.Load() != 1 {
			t.Errorf("fetches = %d, want 1", f.calls.Load())
		}
	})

	t.Run("purge clears both tiers", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore()
		f := &fakeFetcher{status: http.StatusNotFound}
		c := NewCache(f, WithStore(store))
		if _, err := c.Get(t.Context(), origin); err != nil {
			t.Fatal(err)
		}
		if err := c.Purge(t.Context(), origin); err != nil {
			t.Fatal(err)
		}
		if _, ok := c.Peek(origin); ok {
			t.Error("expected memory tier to be empty")
		}
		if e, _ := store.LoadPolicy(t.Context(), origin); e != nil {
			t.Error("expected store to be empty")
		}
	})
}

func TestDocument(t *testing.T) {
	t.Parallel()

	doc, err := Parse(Entry{
		Origin:     origin,
		StatusCode: http.StatusOK,
		Body:       []byte("User-agent: PagesnapBot\nCrawl-delay: 3\nDisallow: /search\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.CrawlDelay("PagesnapBot") != 3*time.Second {
		t.Errorf("crawl delay = %v", doc.CrawlDelay("PagesnapBot"))
	}
	if doc.Allowed("/search?q=go", "PagesnapBot") {
		t.Error("expected /search?q=go to be disallowed")
	}
	if !doc.Allowed("", "PagesnapBot") {
		t.Error("expected root to be allowed")
	}
}

func TestOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"https://Example.com/path?q=1", "https://example.com"},
		{"http://example.com:8080/", "http://example.com:8080"},
		{"HTTPS://WWW.EXAMPLE.COM", "https://www.example.com"},
		{"https://example.com:443/a", "https://example.com"},
		{"http://Example.com:80", "http://example.com"},
		{"http://example.com:443/", "http://example.com:443"},
		{"http://[::1]:80/", "http://[::1]"},
		{"http://[::1]:8080/", "http://[::1]:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if got := Origin(u); got != tt.want {
				t.Errorf("Origin(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if got := RobotsURL(Origin(u)); got != tt.want+"/robots.txt" {
				t.Errorf("RobotsURL = %q", got)
			}
		})
	}
}
