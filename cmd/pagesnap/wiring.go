package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagesnap/internal/browser"
	"github.com/nao1215/pagesnap/internal/compliance"
	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/crawler"
	"github.com/nao1215/pagesnap/internal/database"
	"github.com/nao1215/pagesnap/internal/fetch"
	applog "github.com/nao1215/pagesnap/internal/log"
	"github.com/nao1215/pagesnap/internal/pipeline"
	"github.com/nao1215/pagesnap/internal/policy"
	"github.com/nao1215/pagesnap/internal/ratelimit"
	"github.com/nao1215/pagesnap/internal/report"
)

// addGateFlags registers the flags shared by every command that evaluates URLs.
func addGateFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Policy file path (default: "+config.DefaultConfigFile+" in current or home directory)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent sent with robots, terms and page requests")
	cmd.Flags().String("proxy", "",
		"Route all traffic through a SOCKS5 proxy (e.g., 127.0.0.1:1080)")
	cmd.Flags().String("rate-strategy", config.DefaultRateLimitStrategy,
		"Per-domain rate limit strategy: fixed-window or token-bucket")
	cmd.Flags().Duration("fetch-timeout", config.DefaultFetchTimeout,
		"Timeout for each robots.txt and terms page request")
	cmd.Flags().Bool("no-db", false,
		"Do not persist robots policies, record decisions or log crawls")
}

// addReportFlags registers the output format flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write output to the specified file path (creates directories if needed)")
}

// readGateFlags copies the gate flags into cfg and loads the policy file.
func readGateFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return err
	}
	if cfg.UserAgent, err = cmd.Flags().GetString("user-agent"); err != nil {
		return err
	}
	if cfg.ProxyAddress, err = cmd.Flags().GetString("proxy"); err != nil {
		return err
	}
	if cfg.FetchTimeout, err = cmd.Flags().GetDuration("fetch-timeout"); err != nil {
		return err
	}
	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return err
	}
	cfg.SaveToDB = !noDB

	if err := loadPolicyFile(cfg); err != nil {
		return err
	}

	// An explicit flag wins over the policy file.
	if cmd.Flags().Changed("rate-strategy") {
		if cfg.RateLimitStrategy, err = cmd.Flags().GetString("rate-strategy"); err != nil {
			return err
		}
	}
	return nil
}

// readReportFlags copies the output format flags into cfg.
func readReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	return nil
}

// readGlobalFlags copies the root persistent flags into cfg.
func readGlobalFlags(cmd *cobra.Command, cfg *config.Config) {
	cfg.Verbose = boolFlag(cmd, "verbose")
	cfg.LogJSON = boolFlag(cmd, "log-json")
	if dir := stringFlag(cmd, "data-dir"); dir != "" {
		cfg.DBDir = dir
	}
}

// boolFlag retrieves a flag from the command or its root.
func boolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// stringFlag retrieves a flag from the command or its root.
func stringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadPolicyFile resolves the policy file and applies it to cfg.
// An explicitly requested file must exist; otherwise a missing file is fine.
func loadPolicyFile(cfg *config.Config) error {
	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.ApplyFile(f)
	case cfg.ConfigFilePath != "":
		return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	return nil
}

// setupLogger creates the process logger. Sensitive values are always masked.
func setupLogger(cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return applog.NewSecureJSONLogger(os.Stderr, cfg.Verbose)
	}
	return applog.NewSecureLogger(os.Stderr, cfg.Verbose)
}

// services is the component graph shared by the commands.
type services struct {
	store    *database.Store
	policies *policy.Cache
	gate     *compliance.Gate
}

// newServices wires the fetcher, policy cache, rate limiter and gate.
// The store is opened only when cfg.SaveToDB is set.
func newServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	strategy, err := ratelimit.ParseStrategy(cfg.RateLimitStrategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrUnknownRateStrategy, err)
	}

	fetcher, err := fetch.NewClient(
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithProxy(cfg.ProxyAddress),
		fetch.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	s := &services{}
	cacheOpts := []policy.Option{
		policy.WithTTL(cfg.PolicyTTL),
		policy.WithLogger(logger),
	}
	gateOpts := []compliance.Option{
		compliance.WithRobotsAgent(cfg.RobotsAgent),
		compliance.WithTOSTTL(cfg.TOSTTL),
		compliance.WithLogger(logger),
	}
	if cfg.SaveToDB {
		store, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.store = store
		cacheOpts = append(cacheOpts, policy.WithStore(store))
		gateOpts = append(gateOpts, compliance.WithRecorder(store))
		logger.Debug("database opened", "path", store.Path())
	}
	if f := cfg.Policy; f != nil {
		gateOpts = append(gateOpts,
			compliance.WithBlockedDomains(f.Policy.BlockedDomains),
			compliance.WithBlockedPaths(f.Policy.BlockedPaths),
			compliance.WithTOSPaths(f.Policy.TOSPaths),
			compliance.WithTOSKeywords(f.Policy.TOSKeywords),
		)
	}

	s.policies = policy.NewCache(fetcher, cacheOpts...)
	limiter := ratelimit.NewRegistry(
		ratelimit.WithQuota(cfg.RateLimitRequests, cfg.RateLimitWindow),
		ratelimit.WithStrategy(strategy),
	)
	s.gate = compliance.NewGate(s.policies, fetcher, limiter, gateOpts...)
	return s, nil
}

// newSpider wires the browser and the extraction pipeline behind the gate.
func (s *services) newSpider(cfg *config.Config, logger *slog.Logger) *crawler.Spider {
	chromeOpts := []browser.ChromeOption{
		browser.WithHeadless(cfg.Headless),
		browser.WithExecPath(cfg.ChromePath),
		browser.WithUserAgent(cfg.UserAgent),
		browser.WithViewport(cfg.ViewportWidth, cfg.ViewportHeight),
		browser.WithLogger(logger),
	}
	if cfg.ProxyAddress != "" {
		chromeOpts = append(chromeOpts, browser.WithProxy(cfg.ProxyAddress))
	}

	extractor := pipeline.NewExtractor(
		pipeline.WithNavigationTimeout(cfg.NavigationTimeout),
		pipeline.WithNetworkIdleTimeout(cfg.NetworkIdleTimeout),
		pipeline.WithCaptureIdleTimeout(cfg.CaptureIdleTimeout),
		pipeline.WithExtractorLogger(logger),
	)

	return crawler.NewSpider(s.gate, browser.NewChromeLauncher(chromeOpts...), extractor,
		crawler.WithDelay(cfg.InterRequestDelay),
		crawler.WithMaxLinks(cfg.MaxLinkedPages),
		crawler.WithSites(cfg.Policy),
		crawler.WithLogger(logger),
	)
}

// Close releases the store.
func (s *services) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// openExistingStore opens the database without creating it.
func openExistingStore(cfg *config.Config) (*database.Store, error) {
	store, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("no pagesnap database in %s (run a crawl or check first): %w", cfg.DBDir, err)
	}
	return store, nil
}

// withReportWriter opens the configured destination and hands a writer for
// the configured format to write.
func withReportWriter(cfg *config.Config, stdout io.Writer, write func(report.Writer) error) (err error) {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports may contain cookies and storage values, so only the owner can read them.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		output = f
	}

	return write(newReportWriter(cfg, output))
}

// newReportWriter selects the writer for the configured format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}
