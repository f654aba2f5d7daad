package crawler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/model"
)

// Server is the single-crawl entry point used by BatchProcessor.
// *Spider implements it.
type Server interface {
	Serve(ctx context.Context, req model.CrawlRequest) (*model.CrawlResponse, error)
}

// Outcome is the result of one request in a batch.
// Response is nil when the crawl produced no result, e.g. a denied seed.
type Outcome struct {
	Request  model.CrawlRequest
	Response *model.CrawlResponse
	Err      error
}

// BatchProcessor crawls several seeds concurrently.
//
// Each seed launches its own browser, so concurrency bounds the number of
// browsers alive at once. Seeds sharing a domain also share its rate limit.
type BatchProcessor struct {
	server      Server
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(server Server, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		server:      server,
		concurrency: config.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch crawls every request and returns outcomes in request order.
//
// A failed crawl does not stop the others; its error is kept in the Outcome.
// The returned error is non-nil only when ctx ended before every request was
// started.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, reqs []model.CrawlRequest) ([]Outcome, error) {
	outcomes := make([]Outcome, len(reqs))
	err := bp.ProcessBatchWithCallback(ctx, reqs, func(o Outcome, i int) {
		// Each goroutine writes its own index.
		outcomes[i] = o
	})
	for i := range outcomes {
		outcomes[i].Request = reqs[i]
		if outcomes[i].Response == nil && outcomes[i].Err == nil && err != nil {
			outcomes[i].Err = err
		}
	}
	return outcomes, err
}

// ProcessBatchWithCallback crawls every request and calls callback as each
// one completes. The callback runs on the crawling goroutine, so it must be
// safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	reqs []model.CrawlRequest,
	callback func(o Outcome, index int),
) error {
	bp.logger.Info("starting batch crawl",
		"total", len(reqs),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("crawling seed", "url", req.URL, "index", i+1, "total", len(reqs))
			resp, err := bp.server.Serve(ctx, req)
			if err != nil {
				bp.logger.Warn("crawl failed", "url", req.URL, "error", err)
			}
			callback(Outcome{Request: req, Response: resp, Err: err}, i)
			// Crawl errors stay in the outcome so other seeds keep going.
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch crawl complete",
		"total", len(reqs),
		"elapsed", time.Since(start),
	)
	return err
}
