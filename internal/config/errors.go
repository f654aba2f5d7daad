package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when no seed URL is given.
	ErrNoTarget = errors.New("no target specified: provide at least one URL")

	// ErrInvalidTimeout is returned when any timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the inter-request delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRateLimit is returned when the quota or its window is not positive.
	ErrInvalidRateLimit = errors.New("invalid rate limit: requests and window must be positive")

	// ErrUnknownRateStrategy is returned for a strategy other than
	// "fixed-window" or "token-bucket".
	ErrUnknownRateStrategy = errors.New("unknown rate limit strategy: use fixed-window or token-bucket")

	// ErrInvalidMaxScrolls is returned when max scrolls is negative.
	ErrInvalidMaxScrolls = errors.New("invalid max scrolls: must be non-negative")

	// ErrInvalidMaxDepth is returned when the crawl depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidMaxLinkedPages is returned when the linked page cap is negative.
	ErrInvalidMaxLinkedPages = errors.New("invalid max linked pages: must be non-negative")

	// ErrInvalidViewport is returned when a viewport dimension is not positive.
	ErrInvalidViewport = errors.New("invalid viewport: width and height must be positive")
)
