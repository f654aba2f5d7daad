package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/pagesnap/internal/browser"
	"github.com/nao1215/pagesnap/internal/compliance"
	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/model"
)

// Extractor produces a snapshot of one URL on an open page.
// *pipeline.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, page browser.Page, rawURL string, opts model.CrawlOptions) *model.PageSnapshot
}

// Spider runs one-hop crawls: the seed page, then up to maxLinks of its
// internal links, every URL approved by the compliance gate first.
//
// A Spider holds no per-crawl state and may run several crawls at once;
// each crawl launches and owns its own browser page.
type Spider struct {
	gate      compliance.Evaluator
	launcher  browser.Launcher
	extractor Extractor

	// sites supplies per-host headers, depth and scroll overrides.
	sites *config.File

	// delay is the pause before each linked page.
	delay time.Duration

	// maxLinks caps the linked pages visited per crawl.
	maxLinks int

	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithDelay sets the pause before each linked page.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithMaxLinks caps the linked pages visited per crawl.
func WithMaxLinks(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.maxLinks = n
		}
	}
}

// WithSites sets per-host overrides from the configuration file.
func WithSites(f *config.File) SpiderOption {
	return func(s *Spider) {
		s.sites = f
	}
}

// WithIDGenerator replaces the crawl ID generator.
func WithIDGenerator(newID func() string) SpiderOption {
	return func(s *Spider) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithClock replaces time.Now for response timestamps.
func WithClock(now func() time.Time) SpiderOption {
	return func(s *Spider) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider.
func NewSpider(gate compliance.Evaluator, launcher browser.Launcher, extractor Extractor, opts ...SpiderOption) *Spider {
	s := &Spider{
		gate:      gate,
		launcher:  launcher,
		extractor: extractor,
		delay:     config.DefaultInterRequestDelay,
		maxLinks:  config.DefaultMaxLinkedPages,
		newID:     uuid.NewString,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve runs Crawl and wraps the result in a response with a fresh crawl ID
// and the legal notice. The response is nil only when Crawl returned no result.
func (s *Spider) Serve(ctx context.Context, req model.CrawlRequest) (*model.CrawlResponse, error) {
	started := s.now()
	result, err := s.Crawl(ctx, req)
	if result == nil {
		return nil, err
	}
	return model.NewCrawlResponse(s.newID(), result, started, s.now()), err
}

// Crawl visits the seed URL and, when req.MaxDepth > 0, its internal links.
//
// It fails with ErrInvalidInput for malformed requests, *DeniedError when the
// gate refuses the seed, and ErrResourceFailure when the browser cannot be
// launched. A linked page refused by the gate is kept as a snapshot carrying
// the decision. If the browser cannot be released the error wraps
// ErrResourceFailure and the completed result is still returned.
func (s *Spider) Crawl(ctx context.Context, req model.CrawlRequest) (result *model.CrawlResult, err error) {
	u, err := compliance.ParseURL(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if req.MaxScrolls < 0 || req.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: maxScrolls and maxDepth must not be negative", ErrInvalidInput)
	}

	site := s.sites.GetSiteConfig(compliance.Hostname(u))
	opts := req.CrawlOptions
	if site.Depth != nil {
		opts.MaxDepth = *site.Depth
	}
	if site.MaxScrolls > 0 {
		opts.MaxScrolls = site.MaxScrolls
	}

	logger := s.logger.With("seed", req.URL)

	decision := s.gate.Evaluate(ctx, req.URL)
	if !decision.Allowed {
		return nil, &DeniedError{Decision: decision}
	}

	page, err := s.launcher.Launch(ctx, browser.WithHeaders(site.Headers))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceFailure, err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("failed to release browser", "error", cerr)
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrResourceFailure, cerr))
		}
	}()

	main := s.extractor.Extract(ctx, page, req.URL, opts)
	result = &model.CrawlResult{MainPage: main, LinkedPages: []*model.PageSnapshot{}}
	if !opts.FollowLinks() || main.Error != "" {
		return result, nil
	}

	links := InternalLinks(main.Links, s.maxLinks)
	logger.Info("following internal links", "count", len(links))
	for i, link := range links {
		if err := sleep(ctx, s.delay); err != nil {
			logger.Warn("crawl interrupted", "visited", i, "remaining", len(links)-i, "error", err)
			break
		}
		d := s.gate.Evaluate(ctx, link)
		if !d.Allowed {
			logger.Info("linked page refused", "url", link, "reason", d.Reason.String())
			result.LinkedPages = append(result.LinkedPages, model.Denied(d))
			continue
		}
		result.LinkedPages = append(result.LinkedPages, s.extractor.Extract(ctx, page, link, opts))
	}
	return result, nil
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
