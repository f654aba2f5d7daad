package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/crawler"
	"github.com/nao1215/pagesnap/internal/fetch"
	"github.com/nao1215/pagesnap/internal/model"
	"github.com/nao1215/pagesnap/internal/report"
)

// errCrawlsIncomplete is returned when at least one seed was denied or failed.
var errCrawlsIncomplete = errors.New("not every crawl completed")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]...",
		Short: "Capture pages after the compliance gate approves them",
		Long: `Crawl renders each seed URL in headless Chrome and extracts a page snapshot.

Before the browser loads anything, the compliance gate checks the URL against
the blocked domain and path lists, the site's robots.txt, its terms of service
and the per-domain rate limit. A refused seed prints the reason and is skipped.

With --depth 1 (the default) up to 10 internal links of the seed are visited
too, each one gated again and spaced by the inter-request delay.

Examples:
  # Crawl a page and the pages it links to
  pagesnap crawl https://example.com

  # Only the seed page, with screenshots and a PDF
  pagesnap crawl --depth 0 --screenshots --pdf https://example.com

  # Scroll infinite feeds before extracting
  pagesnap crawl --scroll --max-scrolls 10 https://example.com/feed

  # Crawl several seeds two at a time and write a JSON report
  pagesnap crawl -b 2 --json -o out/report.json https://a.example https://b.example

Policy file (.pagesnap.yaml) example:
  policy:
    blockedDomains: ["internal.example"]
    rateLimit:
      requests: 5
      window: 1m
  sites:
    example.com:
      depth: 0
      headers:
        Accept-Language: "en"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Extraction flags
	cmd.Flags().Bool("scroll", false,
		"Scroll the page until no new content loads before extracting")
	cmd.Flags().Int("max-scrolls", model.DefaultMaxScrolls,
		"Maximum scroll iterations with --scroll")
	cmd.Flags().Bool("screenshots", false,
		"Capture full page, viewport and element screenshots")
	cmd.Flags().Bool("pdf", false,
		"Render the page as PDF")
	cmd.Flags().IntP("depth", "d", model.DefaultMaxDepth,
		"Link depth: 0 crawls the seed only, 1 also visits its internal links")

	// Crawl behavior flags
	cmd.Flags().Int("max-links", config.DefaultMaxLinkedPages,
		"Maximum linked pages visited per seed")
	cmd.Flags().Duration("delay", config.DefaultInterRequestDelay,
		"Pause before each linked page")
	cmd.Flags().DurationP("timeout", "t", config.DefaultNavigationTimeout,
		"Navigation timeout for each page")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent crawls")

	// Browser flags
	cmd.Flags().Bool("no-headless", false,
		"Show the browser window")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable (default: autodetect)")

	addGateFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ProxyAddress != "" {
		if err := fetch.CheckProxy(ctx, cfg.ProxyAddress); err != nil {
			return fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				err, cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	var store crawlStore
	if svc.store != nil {
		store = svc.store
	}
	prog := newProgress(!cfg.Verbose && !cfg.LogJSON, os.Stderr)

	return runCrawl(ctx, cmd.OutOrStdout(), cfg, svc.newSpider(cfg, logger), store, prog, logger)
}

// buildCrawlConfig creates a Config from the crawl command flags.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	readGlobalFlags(cmd, cfg)

	var err error
	if cfg.HandleInfiniteScroll, err = cmd.Flags().GetBool("scroll"); err != nil {
		return nil, err
	}
	if cfg.MaxScrolls, err = cmd.Flags().GetInt("max-scrolls"); err != nil {
		return nil, err
	}
	if cfg.TakeScreenshots, err = cmd.Flags().GetBool("screenshots"); err != nil {
		return nil, err
	}
	if cfg.GeneratePDF, err = cmd.Flags().GetBool("pdf"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = cmd.Flags().GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxLinkedPages, err = cmd.Flags().GetInt("max-links"); err != nil {
		return nil, err
	}
	if cfg.InterRequestDelay, err = cmd.Flags().GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.NavigationTimeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
		return nil, err
	}
	noHeadless, err := cmd.Flags().GetBool("no-headless")
	if err != nil {
		return nil, err
	}
	cfg.Headless = !noHeadless
	if cfg.ChromePath, err = cmd.Flags().GetString("chrome-path"); err != nil {
		return nil, err
	}

	if err := readGateFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := readReportFlags(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// crawlStore logs finished crawls. *database.Store implements it.
type crawlStore interface {
	SaveCrawl(ctx context.Context, resp *model.CrawlResponse) error
}

// crawlTally counts what happened to the seeds of one run.
type crawlTally struct {
	total  int
	denied int
	failed int
}

func (t crawlTally) err() error {
	if t.denied == 0 && t.failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d denied, %d failed of %d", errCrawlsIncomplete, t.denied, t.failed, t.total)
}

// runCrawl crawls every target and writes one report per seed.
// store may be nil.
func runCrawl(
	ctx context.Context,
	out io.Writer,
	cfg *config.Config,
	server crawler.Server,
	store crawlStore,
	prog *progress,
	logger *slog.Logger,
) error {
	reqs := make([]model.CrawlRequest, len(cfg.Targets))
	for i, target := range cfg.Targets {
		reqs[i] = model.CrawlRequest{URL: target, CrawlOptions: cfg.CrawlOptions()}
	}

	logger.Info("starting crawl",
		"targets", len(reqs),
		"batchSize", cfg.BatchSize,
		"depth", cfg.MaxDepth,
		"saveToDB", store != nil,
	)
	start := time.Now()

	tally := crawlTally{total: len(reqs)}
	err := withReportWriter(cfg, out, func(w report.Writer) error {
		bp := crawler.NewBatchProcessor(server,
			crawler.WithConcurrency(cfg.BatchSize),
			crawler.WithBatchLogger(logger),
		)

		var (
			mu       sync.Mutex
			done     int
			writeErr error
		)
		if len(reqs) == 1 {
			prog.start("crawling " + reqs[0].URL)
		} else {
			prog.start(fmt.Sprintf("crawled 0/%d", len(reqs)))
		}
		batchErr := bp.ProcessBatchWithCallback(ctx, reqs, func(o crawler.Outcome, _ int) {
			mu.Lock()
			defer mu.Unlock()

			done++
			prog.update(fmt.Sprintf("crawled %d/%d", done, len(reqs)))
			prog.pause()
			defer prog.resume()

			if err := handleOutcome(ctx, w, store, o, &tally, logger); err != nil && writeErr == nil {
				writeErr = err
			}
		})
		prog.stop()

		return errors.Join(writeErr, batchErr)
	})

	logger.Info("crawl finished",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"denied", tally.denied,
		"failed", tally.failed,
	)
	if err != nil {
		return err
	}
	return tally.err()
}

// handleOutcome writes and logs one seed's outcome. It returns only report
// write errors; crawl failures are counted in tally.
func handleOutcome(
	ctx context.Context,
	w report.Writer,
	store crawlStore,
	o crawler.Outcome,
	tally *crawlTally,
	logger *slog.Logger,
) error {
	if denied, ok := crawler.AsDenied(o.Err); ok {
		tally.denied++
		logger.Warn("seed denied", "url", o.Request.URL, "reason", denied.Decision.Reason.String())
		_, err := w.WriteDenial(model.NewDenialResponse(denied.Decision))
		return err
	}

	if o.Response == nil {
		tally.failed++
		if o.Err != nil {
			logger.Error("crawl failed", "url", o.Request.URL, "error", o.Err)
		}
		return nil
	}

	if o.Err != nil {
		// The crawl finished but cleanup did not.
		tally.failed++
		logger.Error("crawl finished with errors", "url", o.Request.URL, "error", o.Err)
	}
	if _, err := w.Write(o.Response); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if store != nil {
		if err := store.SaveCrawl(ctx, o.Response); err != nil {
			logger.Error("failed to save crawl", "crawlId", o.Response.CrawlID, "error", err)
		} else {
			logger.Info("crawl logged to database", "crawlId", o.Response.CrawlID)
		}
	}
	return nil
}

// progress shows a spinner on stderr while crawls run. A nil spinner
// disables it, which keeps logs readable in verbose mode.
type progress struct {
	s *spinner.Spinner
}

func newProgress(enabled bool, w io.Writer) *progress {
	if !enabled {
		return &progress{}
	}
	return &progress{
		s: spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w)),
	}
}

func (p *progress) start(msg string) {
	if p.s == nil {
		return
	}
	p.s.Suffix = " " + msg
	p.s.Start()
}

func (p *progress) update(msg string) {
	if p.s == nil {
		return
	}
	p.s.Lock()
	p.s.Suffix = " " + msg
	p.s.Unlock()
}

// pause and resume keep the spinner from drawing over report output.
func (p *progress) pause() {
	if p.s != nil {
		p.s.Stop()
	}
}

func (p *progress) resume() {
	if p.s != nil {
		p.s.Start()
	}
}

func (p *progress) stop() {
	if p.s != nil {
		p.s.Stop()
	}
}
