package browser

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// quietPeriod is how long the network must stay silent to count as idle.
const quietPeriod = 500 * time.Millisecond

// inflight tracks outstanding requests of a page.
type inflight struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	lastSeen time.Time
	now      func() time.Time
}

func newInflight(now func() time.Time) *inflight {
	return &inflight{
		pending:  make(map[string]struct{}),
		lastSeen: now(),
		now:      now,
	}
}

func (f *inflight) started(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[id] = struct{}{}
	f.lastSeen = f.now()
}

func (f *inflight) finished(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, id)
	f.lastSeen = f.now()
}

// idle reports whether nothing is pending and the quiet period has passed.
func (f *inflight) idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) == 0 && f.now().Sub(f.lastSeen) >= quietPeriod
}

// wait polls until idle, the timeout elapses or ctx ends.
func (f *inflight) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if f.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			f.mu.Lock()
			n := len(f.pending)
			f.mu.Unlock()
			return fmt.Errorf("%w: %d requests pending after %s", ErrIdleTimeout, n, timeout)
		case <-ticker.C:
		}
	}
}
