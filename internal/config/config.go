package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/pagesnap/internal/compliance"
	"github.com/nao1215/pagesnap/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "pagesnap"

	// DefaultUserAgent is the agent name matched against robots.txt groups and
	// sent with every request, including browser navigations.
	DefaultUserAgent = "PagesnapBot/1.0 (+https://github.com/nao1215/pagesnap)"

	// DefaultNavigationTimeout bounds the wait for DOMContentLoaded.
	DefaultNavigationTimeout = 90 * time.Second

	// DefaultNetworkIdleTimeout bounds the wait for network quiescence after load.
	DefaultNetworkIdleTimeout = 15 * time.Second

	// DefaultCaptureIdleTimeout bounds the final wait while console and network
	// events are collected.
	DefaultCaptureIdleTimeout = 5 * time.Second

	// DefaultInterRequestDelay is the pause before each linked page visit.
	DefaultInterRequestDelay = 2 * time.Second

	// DefaultMaxLinkedPages caps the linked pages visited per crawl.
	DefaultMaxLinkedPages = 10

	// DefaultPolicyTTL is how long a robots document stays fresh.
	DefaultPolicyTTL = 24 * time.Hour

	// DefaultTOSTTL is how long a terms-of-service verdict is reused per origin.
	DefaultTOSTTL = 24 * time.Hour

	// DefaultRateLimitRequests is the per-domain quota per window.
	DefaultRateLimitRequests = 10

	// DefaultRateLimitWindow is the per-domain quota window.
	DefaultRateLimitWindow = 60 * time.Second

	// DefaultRateLimitStrategy is the limiter used unless configured otherwise.
	DefaultRateLimitStrategy = RateStrategyFixedWindow

	// DefaultFetchTimeout bounds each robots.txt and terms page request.
	DefaultFetchTimeout = 15 * time.Second

	// DefaultMaxBodySize limits how much of a robots or terms document is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultBatchSize is the number of seeds crawled concurrently.
	// Each crawl owns a browser, so this stays small.
	DefaultBatchSize = 2

	// DefaultViewportWidth and DefaultViewportHeight size the browser window.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Rate limiting strategies.
const (
	RateStrategyFixedWindow = "fixed-window"
	RateStrategyTokenBucket = "token-bucket"
)

// Config holds all configuration options for pagesnap.
// It is populated from CLI flags and the optional policy file, then passed
// to the components that need it.
type Config struct {
	// Targets is the list of seed URLs.
	Targets []string

	// UserAgent is sent with every request.
	UserAgent string

	// RobotsAgent is the robots.txt product token evaluated by the gate.
	RobotsAgent string

	// NavigationTimeout bounds page navigation.
	NavigationTimeout time.Duration

	// NetworkIdleTimeout bounds the post-load network idle wait.
	NetworkIdleTimeout time.Duration

	// CaptureIdleTimeout bounds the console and network capture window.
	CaptureIdleTimeout time.Duration

	// InterRequestDelay is the pause before each linked page.
	InterRequestDelay time.Duration

	// MaxLinkedPages caps linked pages per crawl.
	MaxLinkedPages int

	// PolicyTTL is the robots document lifetime.
	PolicyTTL time.Duration

	// TOSTTL is the lifetime of a terms verdict. Zero disables reuse.
	TOSTTL time.Duration

	// RateLimitRequests and RateLimitWindow define the per-domain quota.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// RateLimitStrategy is RateStrategyFixedWindow or RateStrategyTokenBucket.
	RateLimitStrategy string

	// FetchTimeout bounds each robots and terms request.
	FetchTimeout time.Duration

	// MaxBodySize limits robots and terms bodies. Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// ProxyAddress routes robots and terms fetches and the browser through a
	// SOCKS5 proxy in "host:port" form. Empty means direct.
	ProxyAddress string

	// Headless runs Chrome without a window.
	Headless bool

	// ChromePath overrides the Chrome executable. Empty means autodetect.
	ChromePath string

	// ViewportWidth and ViewportHeight size the browser viewport.
	ViewportWidth  int
	ViewportHeight int

	// HandleInfiniteScroll, MaxScrolls, TakeScreenshots, GeneratePDF and MaxDepth
	// are the per-crawl options applied to every target.
	HandleInfiniteScroll bool
	MaxScrolls           int
	TakeScreenshots      bool
	GeneratePDF          bool
	MaxDepth             int

	// BatchSize is the number of concurrent crawls.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// ConfigFilePath is the policy file path. Empty means search the defaults.
	ConfigFilePath string

	// Policy holds the loaded policy file, or nil.
	Policy *File

	// DBDir is the directory of the SQLite database.
	DBDir string

	// SaveToDB enables robots persistence and the decision audit log.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		UserAgent:          DefaultUserAgent,
		RobotsAgent:        compliance.DefaultRobotsAgent,
		NavigationTimeout:  DefaultNavigationTimeout,
		NetworkIdleTimeout: DefaultNetworkIdleTimeout,
		CaptureIdleTimeout: DefaultCaptureIdleTimeout,
		InterRequestDelay:  DefaultInterRequestDelay,
		MaxLinkedPages:     DefaultMaxLinkedPages,
		PolicyTTL:          DefaultPolicyTTL,
		TOSTTL:             DefaultTOSTTL,
		RateLimitRequests:  DefaultRateLimitRequests,
		RateLimitWindow:    DefaultRateLimitWindow,
		RateLimitStrategy:  DefaultRateLimitStrategy,
		FetchTimeout:       DefaultFetchTimeout,
		MaxBodySize:        DefaultMaxBodySize,
		Headless:           true,
		ViewportWidth:      DefaultViewportWidth,
		ViewportHeight:     DefaultViewportHeight,
		MaxScrolls:         model.DefaultMaxScrolls,
		MaxDepth:           model.DefaultMaxDepth,
		BatchSize:          DefaultBatchSize,
		DBDir:              XDGDataDir(),
		SaveToDB:           true,
	}
}

// CrawlOptions returns the per-crawl options carried by the config.
func (c *Config) CrawlOptions() model.CrawlOptions {
	return model.CrawlOptions{
		HandleInfiniteScroll: c.HandleInfiniteScroll,
		MaxScrolls:           c.MaxScrolls,
		TakeScreenshots:      c.TakeScreenshots,
		GeneratePDF:          c.GeneratePDF,
		MaxDepth:             c.MaxDepth,
	}
}

// ApplyFile copies the rate limit and TTL overrides of a policy file into c.
// Zero values in the file leave the current settings untouched.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.Policy = f
	rl := f.Policy.RateLimit
	if rl.Requests > 0 {
		c.RateLimitRequests = rl.Requests
	}
	if rl.Window > 0 {
		c.RateLimitWindow = rl.Window
	}
	if rl.Strategy != "" {
		c.RateLimitStrategy = rl.Strategy
	}
	if f.Policy.RobotsTTL > 0 {
		c.PolicyTTL = f.Policy.RobotsTTL
	}
	if f.Policy.TOSTTL > 0 {
		c.TOSTTL = f.Policy.TOSTTL
	}
}

// XDGDataDir returns the XDG data directory for pagesnap.
// On Linux: ~/.local/share/pagesnap
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for pagesnap.
// On Linux: ~/.config/pagesnap
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.NavigationTimeout <= 0 || c.NetworkIdleTimeout <= 0 || c.CaptureIdleTimeout <= 0 || c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.InterRequestDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return ErrInvalidRateLimit
	}
	if c.RateLimitStrategy != RateStrategyFixedWindow && c.RateLimitStrategy != RateStrategyTokenBucket {
		return ErrUnknownRateStrategy
	}
	if c.MaxScrolls < 0 {
		return ErrInvalidMaxScrolls
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxLinkedPages < 0 {
		return ErrInvalidMaxLinkedPages
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return ErrInvalidViewport
	}
	return nil
}
