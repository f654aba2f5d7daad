package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// State describes a domain limiter at a point in time.
type State struct {
	Domain      string        `json:"domain"`
	WindowStart time.Time     `json:"windowStart"`
	Count       int           `json:"count"`
	WindowSize  time.Duration `json:"windowSize"`
	MaxRequests int           `json:"maxRequests"`
}

// Remaining returns how many requests are still admitted in the current window.
func (s State) Remaining() int {
	if s.Count >= s.MaxRequests {
		return 0
	}
	return s.MaxRequests - s.Count
}

// limiter admits or refuses one request for a single domain.
// Implementations are safe for concurrent use.
type limiter interface {
	allow(now time.Time) bool
	state(now time.Time) State
}

// fixedWindow admits exactly max requests per window. The window restarts
// at the first request made after windowStart+size.
type fixedWindow struct {
	mu          sync.Mutex
	domain      string
	windowStart time.Time
	count       int
	size        time.Duration
	max         int
}

func newFixedWindow(domain string, limit int, size time.Duration, now time.Time) *fixedWindow {
	return &fixedWindow{
		domain:      domain,
		windowStart: now,
		size:        size,
		max:         limit,
	}
}

func (w *fixedWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if now.After(w.windowStart.Add(w.size)) {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= w.max {
		return false
	}
	w.count++
	return true
}

func (w *fixedWindow) state(_ time.Time) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Domain:      w.domain,
		WindowStart: w.windowStart,
		Count:       w.count,
		WindowSize:  w.size,
		MaxRequests: w.max,
	}
}

// tokenBucket spreads the same quota evenly: a burst of max requests, then
// one new token every size/max.
type tokenBucket struct {
	domain  string
	created time.Time
	size    time.Duration
	max     int
	bucket  *rate.Limiter
}

func newTokenBucket(domain string, limit int, size time.Duration, now time.Time) *tokenBucket {
	interval := size / time.Duration(limit)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &tokenBucket{
		domain:  domain,
		created: now,
		size:    size,
		max:     limit,
		bucket:  rate.NewLimiter(rate.Every(interval), limit),
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	return b.bucket.AllowN(now, 1)
}

func (b *tokenBucket) state(now time.Time) State {
	tokens := int(math.Floor(b.bucket.TokensAt(now)))
	used := b.max - tokens
	if used < 0 {
		used = 0
	}
	return State{
		Domain:      b.domain,
		WindowStart: b.created,
		Count:       used,
		WindowSize:  b.size,
		MaxRequests: b.max,
	}
}
