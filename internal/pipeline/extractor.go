package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/pagesnap/internal/browser"
	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/model"
)

// Extractor defaults that are not part of config.Config.
const (
	DefaultScrollDelay  = time.Second
	DefaultSettleDelay  = 500 * time.Millisecond
	DefaultCaptureLimit = 100
)

// Extractor turns a loaded page into a PageSnapshot by running the
// extraction steps selected by the crawl options.
type Extractor struct {
	navigationTimeout  time.Duration
	networkIdleTimeout time.Duration
	captureIdleTimeout time.Duration
	scrollDelay        time.Duration
	settleDelay        time.Duration
	captureLimit       int
	now                func() time.Time
	logger             *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithNavigationTimeout bounds page loading.
func WithNavigationTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.navigationTimeout = d
		}
	}
}

// WithNetworkIdleTimeout bounds the wait for network idle after loading.
func WithNetworkIdleTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.networkIdleTimeout = d
		}
	}
}

// WithCaptureIdleTimeout bounds the wait before console and network
// buffers are collected.
func WithCaptureIdleTimeout(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.captureIdleTimeout = d
		}
	}
}

// WithScrollDelay sets the pause after each scroll. Zero disables it.
func WithScrollDelay(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d >= 0 {
			e.scrollDelay = d
		}
	}
}

// WithSettleDelay sets the pause before each element screenshot. Zero
// disables it.
func WithSettleDelay(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d >= 0 {
			e.settleDelay = d
		}
	}
}

// WithCaptureLimit caps the console messages and requests kept per page.
func WithCaptureLimit(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.captureLimit = n
		}
	}
}

// WithClock replaces time.Now for CapturedAt.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		navigationTimeout:  config.DefaultNavigationTimeout,
		networkIdleTimeout: config.DefaultNetworkIdleTimeout,
		captureIdleTimeout: config.DefaultCaptureIdleTimeout,
		scrollDelay:        DefaultScrollDelay,
		settleDelay:        DefaultSettleDelay,
		captureLimit:       DefaultCaptureLimit,
		now:                time.Now,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build returns the pipeline for the given options.
func (e *Extractor) Build(opts model.CrawlOptions) *Pipeline {
	p := New(WithLogger(e.logger), WithContinueOnError(true))
	p.AddStep(&NavigateStep{timeout: e.navigationTimeout})
	if opts.HandleInfiniteScroll {
		p.AddStep(&ScrollStep{delay: e.scrollDelay})
	}
	p.AddSteps(
		&NetworkIdleStep{timeout: e.networkIdleTimeout, logger: e.logger},
		TitleStep{},
		MetadataStep{},
		&StructuredDataStep{logger: e.logger},
		ContentStructureStep{},
		LinksStep{},
		ComputedStylesStep{},
		StorageStep{},
		&CaptureStep{idleTimeout: e.captureIdleTimeout, logger: e.logger},
	)
	if opts.TakeScreenshots {
		p.AddStep(&ScreenshotStep{settle: e.settleDelay, logger: e.logger})
	}
	if opts.GeneratePDF {
		p.AddStep(PDFStep{})
	}
	p.AddStep(TextStep{})
	return p
}

// Extract runs the extraction of rawURL on page. It never returns nil.
// When navigation fails, or the context ends before it succeeds, the
// snapshot carries only the URL and the error. Any other step failure is
// recorded in StageErrors and leaves its fields empty.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, rawURL string, opts model.CrawlOptions) *model.PageSnapshot {
	started := e.now()
	run := &Run{
		Page:     page,
		URL:      rawURL,
		Options:  opts,
		Snapshot: &model.PageSnapshot{URL: rawURL, CapturedAt: started},
		capture:  newCapture(e.captureLimit),
	}

	// Listeners go in before navigation so early console output is kept.
	detach := page.Listen(run.capture.addConsole, run.capture.addRequest)
	defer detach()

	err := e.Build(opts).Execute(ctx, run)
	switch {
	case err == nil:
	case errors.Is(err, ErrNavigationFailed):
		e.logger.Warn("page could not be loaded", "url", rawURL, "error", err)
		return model.Failed(rawURL, err, started)
	case !run.navigated():
		return model.Failed(rawURL, err, started)
	}

	e.logger.Info("page extracted",
		"url", rawURL,
		"title", run.Snapshot.Title,
		"links", len(run.Snapshot.Links),
		"degraded", run.Snapshot.Degraded(),
	)
	return run.Snapshot
}

// navigated reports whether the run got past the navigate step.
func (r *Run) navigated() bool {
	for _, se := range r.Snapshot.StageErrors {
		if se.Stage == (&NavigateStep{}).Name() {
			return false
		}
	}
	return true
}
