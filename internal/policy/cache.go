package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/pagesnap/internal/fetch"
)

// DefaultTTL is how long a fetched robots policy is reused.
const DefaultTTL = 24 * time.Hour

// ErrFetchFailed wraps transport and parse failures while retrieving a policy.
var ErrFetchFailed = errors.New("robots policy unavailable")

// Store is a persistent second tier for robots policies.
// LoadPolicy returns (nil, nil) when nothing is stored for the origin.
type Store interface {
	LoadPolicy(ctx context.Context, origin string) (*Entry, error)
	SavePolicy(ctx context.Context, entry Entry) error
	DeletePolicy(ctx context.Context, origin string) error
}

// Cache serves robots policies per origin. A miss or an expired entry
// triggers one synchronous fetch; concurrent misses for the same origin
// share that fetch, and different origins never wait on each other.
type Cache struct {
	fetcher fetch.Fetcher
	ttl     time.Duration
	memory  *gocache.Cache
	store   Store
	group   singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the policy lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithStore adds a persistent tier.
func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a policy cache that fetches through f.
func NewCache(f fetch.Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: f,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.memory = gocache.New(c.ttl, c.ttl)
	return c
}

// TTL returns the configured policy lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the policy of origin, fetching it when absent or expired.
// A non-2xx robots response yields an allow-all document that is cached
// like any other. Transport and parse failures return an error wrapping
// ErrFetchFailed and leave the cache untouched.
func (c *Cache) Get(ctx context.Context, origin string) (*Document, error) {
	if doc, ok := c.fresh(origin); ok {
		return doc, nil
	}

	// The fetch is shared by every waiter, so one caller giving up must not
	// fail the others. The fetcher's own timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(origin, func() (any, error) {
		if doc, ok := c.fresh(origin); ok {
			return doc, nil
		}
		if doc, ok := c.loadStored(shared, origin); ok {
			return doc, nil
		}
		return c.refresh(shared, origin)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Document), nil //nolint:forcetypeassert // only *Document is stored
	}
}

// Peek returns the cached policy without fetching.
func (c *Cache) Peek(origin string) (*Document, bool) {
	return c.fresh(origin)
}

// Purge drops the policy of origin from every tier.
func (c *Cache) Purge(ctx context.Context, origin string) error {
	c.memory.Delete(origin)
	if c.store == nil {
		return nil
	}
	return c.store.DeletePolicy(ctx, origin)
}

func (c *Cache) fresh(origin string) (*Document, bool) {
	v, ok := c.memory.Get(origin)
	if !ok {
		return nil, false
	}
	doc, ok := v.(*Document)
	if !ok || doc.Expired(c.now(), c.ttl) {
		return nil, false
	}
	return doc, true
}

func (c *Cache) loadStored(ctx context.Context, origin string) (*Document, bool) {
	if c.store == nil {
		return nil, false
	}
	entry, err := c.store.LoadPolicy(ctx, origin)
	if err != nil {
		c.logger.Warn("failed to load stored robots policy", "origin", origin, "error", err)
		return nil, false
	}
	if entry == nil || entry.Expired(c.now(), c.ttl) {
		return nil, false
	}
	doc, err := Parse(*entry)
	if err != nil {
		c.logger.Warn("stored robots policy is unreadable", "origin", origin, "error", err)
		return nil, false
	}
	c.memory.Set(origin, doc, gocache.DefaultExpiration)
	return doc, true
}

func (c *Cache) refresh(ctx context.Context, origin string) (*Document, error) {
	robotsURL := RobotsURL(origin)
	resp, err := c.fetcher.Get(ctx, robotsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	entry := Entry{
		Origin:     origin,
		StatusCode: resp.StatusCode,
		FetchedAt:  c.now(),
	}
	if resp.OK() {
		entry.Body = resp.Body
	}

	doc, err := Parse(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	c.memory.Set(origin, doc, gocache.DefaultExpiration)
	if c.store != nil {
		if err := c.store.SavePolicy(ctx, entry); err != nil {
			c.logger.Warn("failed to persist robots policy", "origin", origin, "error", err)
		}
	}

	c.logger.Debug("robots policy fetched",
		"origin", origin,
		"status", resp.StatusCode,
		"allow_all", doc.AllowAll())
	return doc, nil
}
