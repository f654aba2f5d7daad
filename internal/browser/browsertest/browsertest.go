// Package browsertest provides in-memory implementations of the browser
// interfaces for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/pagesnap/internal/browser"
	"github.com/nao1215/pagesnap/internal/model"
)

// ErrUnknownURL is returned by Navigate for URLs without a Document.
var ErrUnknownURL = errors.New("net::ERR_NAME_NOT_RESOLVED")

// Document is what the fake page serves for one URL.
type Document struct {
	// Results maps a script to the value it evaluates to. A value of type
	// func() any is called on every evaluation.
	Results map[string]any

	// Errors maps a script to the error its evaluation returns.
	Errors map[string]error

	// NavigateErr fails navigation to this document.
	NavigateErr error

	// Console and Requests are emitted to listeners during navigation.
	Console  []model.ConsoleLog
	Requests []model.NetworkRequest

	// Elements are returned by QueryAll for any selector.
	Elements []*Element

	FullPage      []byte
	Viewport      []byte
	ScreenshotErr error
	PDF           []byte
	PDFErr        error
	IdleErr       error
}

// Page is a scripted browser.Page. It is safe for concurrent use.
type Page struct {
	mu        sync.Mutex
	docs      map[string]*Document
	current   *Document
	visited   []string
	scripts   []string
	onConsole []func(model.ConsoleLog)
	onRequest []func(model.NetworkRequest)
	closed    bool

	// CloseErr is returned by Close.
	CloseErr error
}

var _ browser.Page = (*Page)(nil)

// NewPage returns a page serving docs keyed by URL.
func NewPage(docs map[string]*Document) *Page {
	if docs == nil {
		docs = make(map[string]*Document)
	}
	return &Page{docs: docs}
}

// Navigate switches to the document of rawURL and emits its telemetry.
func (p *Page) Navigate(ctx context.Context, rawURL string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.visited = append(p.visited, rawURL)
	doc, ok := p.docs[rawURL]
	consoleFns := append([]func(model.ConsoleLog){}, p.onConsole...)
	requestFns := append([]func(model.NetworkRequest){}, p.onRequest...)
	if ok && doc.NavigateErr == nil {
		p.current = doc
	} else {
		p.current = nil
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownURL, rawURL)
	}
	if doc.NavigateErr != nil {
		return doc.NavigateErr
	}
	for _, entry := range doc.Console {
		for _, fn := range consoleFns {
			fn(entry)
		}
	}
	for _, req := range doc.Requests {
		for _, fn := range requestFns {
			fn(req)
		}
	}
	return nil
}

// Evaluate returns the scripted result of script, JSON round-tripped into out.
func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	doc := p.current
	p.mu.Unlock()

	if doc == nil {
		return errors.New("no document loaded")
	}
	if err := doc.Errors[script]; err != nil {
		return err
	}
	v, ok := doc.Results[script]
	if !ok {
		return fmt.Errorf("no scripted result for %.40q", script)
	}
	if fn, ok := v.(func() any); ok {
		v = fn()
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// QueryAll returns the current document's elements.
func (p *Page) QueryAll(ctx context.Context, _ string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := p.document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}
	elements := make([]browser.Element, 0, len(doc.Elements))
	for _, e := range doc.Elements {
		elements = append(elements, e)
	}
	return elements, nil
}

// Screenshot returns the scripted full page or viewport image.
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := p.document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}
	if doc.ScreenshotErr != nil {
		return nil, doc.ScreenshotErr
	}
	if fullPage {
		return doc.FullPage, nil
	}
	return doc.Viewport, nil
}

// PrintPDF returns the scripted PDF.
func (p *Page) PrintPDF(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := p.document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}
	return doc.PDF, doc.PDFErr
}

// Listen registers callbacks until the returned function is called.
func (p *Page) Listen(onConsole func(model.ConsoleLog), onRequest func(model.NetworkRequest)) func() {
	var detached sync.Once
	var mu sync.Mutex
	active := true
	guardConsole := func(l model.ConsoleLog) {
		mu.Lock()
		defer mu.Unlock()
		if active && onConsole != nil {
			onConsole(l)
		}
	}
	guardRequest := func(r model.NetworkRequest) {
		mu.Lock()
		defer mu.Unlock()
		if active && onRequest != nil {
			onRequest(r)
		}
	}
	p.mu.Lock()
	p.onConsole = append(p.onConsole, guardConsole)
	p.onRequest = append(p.onRequest, guardRequest)
	p.mu.Unlock()
	return func() {
		detached.Do(func() {
			mu.Lock()
			active = false
			mu.Unlock()
		})
	}
}

// WaitNetworkIdle returns the document's IdleErr.
func (p *Page) WaitNetworkIdle(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc := p.document(); doc != nil {
		return doc.IdleErr
	}
	return nil
}

// Close marks the page closed and returns CloseErr.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.CloseErr
}

// Visited returns every URL passed to Navigate, in order.
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// Evaluated returns every script passed to Evaluate, in order.
func (p *Page) Evaluated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) document() *Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Element is a scripted browser.Element.
type Element struct {
	Sel       string
	Hidden    bool
	Image     []byte
	Err       error
	ScrollErr error
}

var _ browser.Element = (*Element)(nil)

// Selector returns Sel.
func (e *Element) Selector() string { return e.Sel }

// Visible reports !Hidden.
func (e *Element) Visible(context.Context) (bool, error) { return !e.Hidden, nil }

// ScrollIntoView returns ScrollErr.
func (e *Element) ScrollIntoView(context.Context) error { return e.ScrollErr }

// Screenshot returns Image or Err.
func (e *Element) Screenshot(context.Context) ([]byte, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Image, nil
}

// Launcher hands out Page, or fails with Err.
type Launcher struct {
	mu       sync.Mutex
	page     *Page
	err      error
	launches int
	settings []browser.PageSettings
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher returns a launcher that always yields page.
func NewLauncher(page *Page) *Launcher {
	return &Launcher{page: page}
}

// FailingLauncher returns a launcher whose Launch always fails with err.
func FailingLauncher(err error) *Launcher {
	return &Launcher{err: err}
}

// Launch returns the page.
func (l *Launcher) Launch(_ context.Context, opts ...browser.PageOption) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	var s browser.PageSettings
	for _, opt := range opts {
		opt(&s)
	}
	l.settings = append(l.settings, s)
	if l.err != nil {
		return nil, fmt.Errorf("%w: %w", browser.ErrLaunch, l.err)
	}
	return l.page, nil
}

// Launches returns how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Settings returns the page settings of every launch.
func (l *Launcher) Settings() []browser.PageSettings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.PageSettings(nil), l.settings...)
}
