package browser

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/pagesnap/internal/model"
)

var (
	// ErrLaunch is returned when the browser process cannot be started.
	ErrLaunch = errors.New("failed to launch browser")

	// ErrNavigation is returned when a page cannot be loaded.
	ErrNavigation = errors.New("navigation failed")

	// ErrIdleTimeout is returned by WaitNetworkIdle when requests are still in
	// flight after the timeout.
	ErrIdleTimeout = errors.New("network did not become idle")
)

// Page is one browser tab. A Page is driven by a single crawl at a time and
// is not safe for concurrent use, except for the listeners it invokes.
type Page interface {
	// Navigate loads rawURL and returns once the document is parsed or the
	// timeout elapses.
	Navigate(ctx context.Context, rawURL string, timeout time.Duration) error

	// Evaluate runs a JavaScript expression in the page and decodes its JSON
	// result into out. Promises are awaited. out may be nil.
	Evaluate(ctx context.Context, script string, out any) error

	// QueryAll returns every element matching a CSS selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Screenshot captures the viewport, or the whole scrollable page when
	// fullPage is true, as PNG.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	// PrintPDF renders the page as an A4 PDF.
	PrintPDF(ctx context.Context) ([]byte, error)

	// Listen subscribes to console messages and outgoing requests until the
	// returned function is called. Either callback may be nil.
	Listen(onConsole func(model.ConsoleLog), onRequest func(model.NetworkRequest)) (detach func())

	// WaitNetworkIdle blocks until no request has been in flight for a short
	// quiet period, or returns ErrIdleTimeout.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error

	// Close releases the tab and its browser.
	Close() error
}

// Element is a DOM element returned by Page.QueryAll.
type Element interface {
	// Selector describes the element as "#id", ".class.names" or its tag name.
	Selector() string

	// Visible reports whether the element has a non-empty box and is not
	// hidden by display, visibility or a zero opacity.
	Visible(ctx context.Context) (bool, error)

	// ScrollIntoView scrolls the element into the viewport.
	ScrollIntoView(ctx context.Context) error

	// Screenshot captures the element as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Launcher starts a browser and opens one page in it.
type Launcher interface {
	Launch(ctx context.Context, opts ...PageOption) (Page, error)
}

// PageSettings are per-page settings applied at launch.
type PageSettings struct {
	// Headers are sent with every request the page makes.
	Headers map[string]string
}

// PageOption configures a page at launch.
type PageOption func(*PageSettings)

// WithHeaders adds extra HTTP headers to every request of the page.
func WithHeaders(headers map[string]string) PageOption {
	return func(s *PageSettings) {
		if len(headers) == 0 {
			return
		}
		if s.Headers == nil {
			s.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			s.Headers[k] = v
		}
	}
}
