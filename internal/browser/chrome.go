package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/pagesnap/internal/model"
)

// Default launcher settings.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// A4 in inches.
	a4Width  = 8.27
	a4Height = 11.69
)

// ChromeLauncher starts headless Chrome through chromedp. Each Launch starts
// a separate browser process owning exactly one tab.
type ChromeLauncher struct {
	headless  bool
	execPath  string
	userAgent string
	proxy     string
	width     int
	height    int
	logger    *slog.Logger
}

// ChromeOption configures a ChromeLauncher.
type ChromeOption func(*ChromeLauncher)

// WithHeadless toggles headless mode. Default is true.
func WithHeadless(headless bool) ChromeOption {
	return func(l *ChromeLauncher) {
		l.headless = headless
	}
}

// WithExecPath sets the Chrome executable. Empty means autodetect.
func WithExecPath(path string) ChromeOption {
	return func(l *ChromeLauncher) {
		l.execPath = path
	}
}

// WithUserAgent sets the browser user agent.
func WithUserAgent(ua string) ChromeOption {
	return func(l *ChromeLauncher) {
		l.userAgent = ua
	}
}

// WithProxy routes browser traffic through a SOCKS5 proxy at host:port.
func WithProxy(address string) ChromeOption {
	return func(l *ChromeLauncher) {
		l.proxy = address
	}
}

// WithViewport sets the viewport size in CSS pixels.
func WithViewport(width, height int) ChromeOption {
	return func(l *ChromeLauncher) {
		if width > 0 && height > 0 {
			l.width = width
			l.height = height
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ChromeOption {
	return func(l *ChromeLauncher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewChromeLauncher creates a launcher.
func NewChromeLauncher(opts ...ChromeOption) *ChromeLauncher {
	l := &ChromeLauncher{
		headless: true,
		width:    DefaultViewportWidth,
		height:   DefaultViewportHeight,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts Chrome and returns its first tab. The browser lives until
// the page is closed or ctx ends.
func (l *ChromeLauncher) Launch(ctx context.Context, opts ...PageOption) (Page, error) {
	var settings PageSettings
	for _, opt := range opts {
		opt(&settings)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(l.width, l.height),
	)
	if l.userAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(l.userAgent))
	}
	if l.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.execPath))
	}
	if l.proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer("socks5://"+l.proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &chromePage{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		requests:    newInflight(time.Now),
		logger:      l.logger,
	}
	chromedp.ListenTarget(tabCtx, p.trackRequests)

	setup := []chromedp.Action{
		network.Enable(),
		cdpruntime.Enable(),
		chromedp.EmulateViewport(int64(l.width), int64(l.height)),
	}
	if len(settings.Headers) > 0 {
		headers := make(network.Headers, len(settings.Headers))
		for k, v := range settings.Headers {
			headers[k] = v
		}
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	l.logger.Debug("browser launched",
		"headless", l.headless,
		"viewport", fmt.Sprintf("%dx%d", l.width, l.height),
		"extra_headers", len(settings.Headers))
	return p, nil
}

// chromePage implements Page on a chromedp tab context.
type chromePage struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	requests    *inflight
	closed      atomic.Bool
	logger      *slog.Logger
}

// run executes actions on the tab while honouring the caller's deadline and
// cancellation. Actions must run on a context derived from the tab context.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := p.run(navCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, rawURL, err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var discard json.RawMessage
		out = &discard
	}
	return p.run(ctx, chromedp.Evaluate(script, out, awaitPromise))
}

func awaitPromise(params *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return params.WithAwaitPromise(true)
}

func (p *chromePage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{page: p, node: n})
	}
	return elements, nil
}

func (p *chromePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 keeps the capture lossless PNG.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) PrintPDF(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPaperWidth(a4Width).
			WithPaperHeight(a4Height).
			WithPrintBackground(true).
			Do(ctx)
		buf = data
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Listen(onConsole func(model.ConsoleLog), onRequest func(model.NetworkRequest)) func() {
	listenCtx, cancel := context.WithCancel(p.tabCtx)
	var detached atomic.Bool
	chromedp.ListenTarget(listenCtx, func(ev any) {
		if detached.Load() {
			return
		}
		switch ev := ev.(type) {
		case *cdpruntime.EventConsoleAPICalled:
			if onConsole != nil {
				onConsole(consoleLog(ev))
			}
		case *network.EventRequestWillBeSent:
			if onRequest != nil && ev.Request != nil {
				onRequest(networkRequest(ev))
			}
		}
	})
	return func() {
		detached.Store(true)
		cancel()
	}
}

func (p *chromePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return p.requests.wait(ctx, timeout)
}

func (p *chromePage) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	defer p.allocCancel()
	defer p.tabCancel()
	if err := chromedp.Cancel(p.tabCtx); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (p *chromePage) trackRequests(ev any) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.requests.started(string(ev.RequestID))
	case *network.EventLoadingFinished:
		p.requests.finished(string(ev.RequestID))
	case *network.EventLoadingFailed:
		p.requests.finished(string(ev.RequestID))
	}
}

// chromeElement is a node resolved by QueryAll.
type chromeElement struct {
	page *chromePage
	node *cdp.Node
}

func (e *chromeElement) Selector() string {
	return nodeSelector(e.node)
}

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	var box *dom.BoxModel
	err := e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		box, err = dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		// Elements without a layout box, e.g. display:none, have no box model.
		return false, nil //nolint:nilerr // absence of a box means invisible
	}
	if box == nil || box.Width <= 0 || box.Height <= 0 {
		return false, nil
	}

	style, err := e.computedVisibility(ctx)
	if err != nil {
		return false, err
	}
	return style.visible(), nil
}

// scriptComputedVisibility runs with the element bound to this.
const scriptComputedVisibility = `function() {
	const s = window.getComputedStyle(this);
	return {display: s.display, visibility: s.visibility, opacity: s.opacity};
}`

// computedVisibility holds the style properties that hide a boxed element.
type computedVisibility struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
}

// visible reports false for display:none, visibility:hidden or collapse,
// and a zero opacity.
func (v computedVisibility) visible() bool {
	if v.Display == "none" || v.Visibility == "hidden" || v.Visibility == "collapse" {
		return false
	}
	if opacity, err := strconv.ParseFloat(strings.TrimSpace(v.Opacity), 64); err == nil && opacity <= 0 {
		return false
	}
	return true
}

func (e *chromeElement) computedVisibility(ctx context.Context) (computedVisibility, error) {
	var style computedVisibility
	err := e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = cdpruntime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		res, exc, err := cdpruntime.CallFunctionOn(scriptComputedVisibility).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		if res == nil {
			return fmt.Errorf("no result for node %d", e.node.NodeID)
		}
		return json.Unmarshal([]byte(res.Value), &style)
	}))
	if err != nil {
		return style, fmt.Errorf("computed style: %w", err)
	}
	return style, nil
}

func (e *chromeElement) ScrollIntoView(ctx context.Context) error {
	return e.page.run(ctx, chromedp.ScrollIntoView([]cdp.NodeID{e.node.NodeID}, chromedp.ByNodeID))
}

func (e *chromeElement) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := e.page.run(ctx, chromedp.Screenshot([]cdp.NodeID{e.node.NodeID}, &buf, chromedp.ByNodeID)); err != nil {
		return nil, fmt.Errorf("element screenshot: %w", err)
	}
	return buf, nil
}

// nodeSelector returns "#id", ".a.b" for class names, or the tag name.
func nodeSelector(n *cdp.Node) string {
	if n == nil {
		return ""
	}
	if id := strings.TrimSpace(n.AttributeValue("id")); id != "" {
		return "#" + id
	}
	if classes := strings.Fields(n.AttributeValue("class")); len(classes) > 0 {
		return "." + strings.Join(classes, ".")
	}
	name := n.LocalName
	if name == "" {
		name = n.NodeName
	}
	return strings.ToLower(name)
}

func consoleLog(ev *cdpruntime.EventConsoleAPICalled) model.ConsoleLog {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		parts = append(parts, remoteText(arg))
	}
	entry := model.ConsoleLog{
		Type: string(ev.Type),
		Text: strings.Join(parts, " "),
	}
	if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
		frame := ev.StackTrace.CallFrames[0]
		entry.Location = model.ConsoleLocation{
			URL:          frame.URL,
			LineNumber:   frame.LineNumber,
			ColumnNumber: frame.ColumnNumber,
		}
	}
	return entry
}

func remoteText(o *cdpruntime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if raw := []byte(o.Value); len(raw) > 0 {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}
	if o.UnserializableValue != "" {
		return string(o.UnserializableValue)
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}

func networkRequest(ev *network.EventRequestWillBeSent) model.NetworkRequest {
	req := model.NetworkRequest{
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		ResourceType: string(ev.Type),
	}
	if len(ev.Request.Headers) > 0 {
		req.Headers = make(map[string]string, len(ev.Request.Headers))
		for k, v := range ev.Request.Headers {
			req.Headers[k] = fmt.Sprint(v)
		}
	}
	return req
}
