package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Strategy selects the limiter algorithm.
type Strategy string

// Supported strategies.
const (
	FixedWindow Strategy = "fixed-window"
	TokenBucket Strategy = "token-bucket"
)

// Defaults match a quota of 10 requests per minute per domain.
const (
	DefaultMaxRequests = 10
	DefaultWindow      = 60 * time.Second
)

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case FixedWindow, TokenBucket:
		return s, nil
	case "":
		return FixedWindow, nil
	default:
		return "", fmt.Errorf("unknown rate limit strategy %q", name)
	}
}

// Registry holds one limiter per domain, created on first use and kept for
// the life of the process. Requests for the same domain are serialized by
// that domain's limiter; other domains are never blocked.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]limiter
	strategy Strategy
	max      int
	window   time.Duration
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithQuota sets the requests admitted per window.
func WithQuota(maxRequests int, window time.Duration) Option {
	return func(r *Registry) {
		if maxRequests > 0 {
			r.max = maxRequests
		}
		if window > 0 {
			r.window = window
		}
	}
}

// WithStrategy selects the limiter algorithm.
func WithStrategy(s Strategy) Option {
	return func(r *Registry) {
		if s != "" {
			r.strategy = s
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a registry with a fixed window of 10 requests per 60s
// unless configured otherwise.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		limiters: make(map[string]limiter),
		strategy: FixedWindow,
		max:      DefaultMaxRequests,
		window:   DefaultWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire consumes one request for domain and reports whether it was admitted.
func (r *Registry) Acquire(domain string) bool {
	return r.get(normalize(domain)).allow(r.now())
}

// Snapshot returns the state of the domain's limiter, if one exists.
func (r *Registry) Snapshot(domain string) (State, bool) {
	r.mu.Lock()
	l, ok := r.limiters[normalize(domain)]
	r.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return l.state(r.now()), true
}

// Domains returns the number of domains with a limiter.
func (r *Registry) Domains() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func (r *Registry) get(domain string) limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[domain]; ok {
		return l
	}
	var l limiter
	switch r.strategy {
	case TokenBucket:
		l = newTokenBucket(domain, r.max, r.window, r.now())
	default:
		l = newFixedWindow(domain, r.max, r.window, r.now())
	}
	r.limiters[domain] = l
	return l
}

func normalize(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
