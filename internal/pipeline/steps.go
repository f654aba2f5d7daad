package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/pagesnap/internal/browser"
	"github.com/nao1215/pagesnap/internal/model"
)

// ErrNavigationFailed marks a run whose page never loaded.
var ErrNavigationFailed = errors.New("navigation failed")

// Step limits that are not configurable.
const (
	// MaxElementScreenshots is how many media elements are considered for
	// element screenshots.
	MaxElementScreenshots = 5

	// ElementSelector matches the media elements that get their own screenshot.
	ElementSelector = "img, video, iframe"

	scrollIntoViewTimeout    = 5 * time.Second
	elementScreenshotTimeout = 10 * time.Second
)

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

// NavigateStep loads the page. Its failure aborts the run.
type NavigateStep struct {
	timeout time.Duration
}

// Name returns the step name.
func (s *NavigateStep) Name() string { return "navigate" }

// Fatal reports that a failed navigation ends the run.
func (s *NavigateStep) Fatal() bool { return true }

// Do navigates to run.URL.
func (s *NavigateStep) Do(ctx context.Context, run *Run) error {
	if err := run.Page.Navigate(ctx, run.URL, s.timeout); err != nil {
		return fmt.Errorf("%w: %w", ErrNavigationFailed, err)
	}
	return nil
}

// ScrollStep triggers lazy loading by scrolling to the bottom until the
// document stops growing, then returns to the top.
type ScrollStep struct {
	delay time.Duration
}

// Name returns the step name.
func (s *ScrollStep) Name() string { return "infinite_scroll" }

// Do scrolls up to run.Options.MaxScrolls times. Zero only returns to the top.
func (s *ScrollStep) Do(ctx context.Context, run *Run) error {
	maxScrolls := run.Options.MaxScrolls

	var previous, current float64
	if err := run.Page.Evaluate(ctx, ScriptScrollHeight, &current); err != nil {
		return fmt.Errorf("measure page height: %w", err)
	}
	for scrolls := 0; previous != current && scrolls < maxScrolls; scrolls++ {
		previous = current
		if err := run.Page.Evaluate(ctx, ScriptScrollToBottom, nil); err != nil {
			return fmt.Errorf("scroll to bottom: %w", err)
		}
		if err := sleep(ctx, s.delay); err != nil {
			return err
		}
		if err := run.Page.Evaluate(ctx, ScriptScrollHeight, &current); err != nil {
			return fmt.Errorf("measure page height: %w", err)
		}
	}
	if err := run.Page.Evaluate(ctx, ScriptScrollToTop, nil); err != nil {
		return fmt.Errorf("scroll to top: %w", err)
	}
	return nil
}

// NetworkIdleStep waits for outstanding requests to settle. A timeout is
// logged and not treated as a failure.
type NetworkIdleStep struct {
	timeout time.Duration
	logger  *slog.Logger
}

// Name returns the step name.
func (s *NetworkIdleStep) Name() string { return "network_idle" }

// Do waits for network idle.
func (s *NetworkIdleStep) Do(ctx context.Context, run *Run) error {
	err := run.Page.WaitNetworkIdle(ctx, s.timeout)
	if err == nil {
		return nil
	}
	if errors.Is(err, browser.ErrIdleTimeout) {
		s.logger.Warn("network did not reach idle state", "url", run.URL, "timeout", s.timeout)
		return nil
	}
	return err
}

// TitleStep reads the title and meta description.
type TitleStep struct{}

// Name returns the step name.
func (TitleStep) Name() string { return "title" }

// Do fills Title and Description.
func (TitleStep) Do(ctx context.Context, run *Run) error {
	var out struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := run.Page.Evaluate(ctx, ScriptTitle, &out); err != nil {
		return err
	}
	run.Snapshot.Title = out.Title
	run.Snapshot.Description = out.Description
	return nil
}

// MetadataStep collects meta tags, including Open Graph and Twitter Card.
type MetadataStep struct{}

// Name returns the step name.
func (MetadataStep) Name() string { return "metadata" }

// Do fills Metadata. Later tags with the same name win.
func (MetadataStep) Do(ctx context.Context, run *Run) error {
	var tags []struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := run.Page.Evaluate(ctx, ScriptMetadata, &tags); err != nil {
		return err
	}
	metadata := make(map[string]string, len(tags))
	for _, tag := range tags {
		metadata[tag.Name] = tag.Content
	}
	run.Snapshot.Metadata = metadata
	return nil
}

// StructuredDataStep collects JSON-LD blocks and microdata items.
type StructuredDataStep struct {
	logger *slog.Logger
}

// Name returns the step name.
func (s *StructuredDataStep) Name() string { return "structured_data" }

// Do fills StructuredData. Malformed JSON-LD blocks are dropped one by one.
func (s *StructuredDataStep) Do(ctx context.Context, run *Run) error {
	var out struct {
		JSONLD    []string `json:"jsonld"`
		Microdata []struct {
			Type       string                    `json:"type"`
			ID         string                    `json:"id"`
			Properties []model.MicrodataProperty `json:"properties"`
		} `json:"microdata"`
	}
	if err := run.Page.Evaluate(ctx, ScriptStructuredData, &out); err != nil {
		return err
	}

	data := make([]model.StructuredData, 0, len(out.JSONLD)+len(out.Microdata))
	for i, block := range out.JSONLD {
		raw := json.RawMessage(strings.TrimSpace(block))
		if !json.Valid(raw) {
			s.logger.Debug("dropping malformed JSON-LD block", "url", run.URL, "index", i)
			continue
		}
		data = append(data, model.StructuredData{Type: model.JSONLDType, Data: raw})
	}
	for _, item := range out.Microdata {
		data = append(data, model.StructuredData{
			Type:       item.Type,
			ID:         item.ID,
			Properties: item.Properties,
		})
	}
	run.Snapshot.StructuredData = data
	return nil
}

// ContentStructureStep collects the structural outline of the page.
type ContentStructureStep struct{}

// Name returns the step name.
func (ContentStructureStep) Name() string { return "content_structure" }

// Do fills ContentStructure.
func (ContentStructureStep) Do(ctx context.Context, run *Run) error {
	var cs model.ContentStructure
	if err := run.Page.Evaluate(ctx, ScriptContentStructure, &cs); err != nil {
		return err
	}
	run.Snapshot.ContentStructure = &cs
	return nil
}

// LinksStep collects anchors and classifies them as internal or external.
type LinksStep struct{}

// Name returns the step name.
func (LinksStep) Name() string { return "links" }

// Do fills Links. A link is external when its hostname differs from the
// hostname of the loaded document.
func (LinksStep) Do(ctx context.Context, run *Run) error {
	var out struct {
		Location string       `json:"location"`
		Links    []model.Link `json:"links"`
	}
	if err := run.Page.Evaluate(ctx, ScriptLinks, &out); err != nil {
		return err
	}
	base := out.Location
	if base == "" {
		base = run.URL
	}
	pageHost := hostname(base)
	for i := range out.Links {
		out.Links[i].IsExternal = hostname(out.Links[i].Href) != pageHost
	}
	run.Snapshot.Links = out.Links
	return nil
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// ComputedStylesStep collects computed styles of identifiable elements.
type ComputedStylesStep struct{}

// Name returns the step name.
func (ComputedStylesStep) Name() string { return "computed_styles" }

// Do fills ComputedStyles.
func (ComputedStylesStep) Do(ctx context.Context, run *Run) error {
	var styles map[string]model.Styles
	if err := run.Page.Evaluate(ctx, ScriptComputedStyles, &styles); err != nil {
		return err
	}
	run.Snapshot.ComputedStyles = styles
	return nil
}

// StorageStep reads web storage and cookies visible to scripts.
type StorageStep struct{}

// Name returns the step name.
func (StorageStep) Name() string { return "storage" }

// Do fills StorageData.
func (StorageStep) Do(ctx context.Context, run *Run) error {
	var storage model.StorageData
	if err := run.Page.Evaluate(ctx, ScriptStorage, &storage); err != nil {
		return err
	}
	run.Snapshot.StorageData = &storage
	return nil
}

// CaptureStep waits briefly for late traffic, then copies the console and
// network buffers filled since navigation.
type CaptureStep struct {
	idleTimeout time.Duration
	logger      *slog.Logger
}

// Name returns the step name.
func (s *CaptureStep) Name() string { return "console_network" }

// Do fills ConsoleLogs and NetworkRequests.
func (s *CaptureStep) Do(ctx context.Context, run *Run) error {
	if run.capture == nil {
		return errNoCapture
	}
	if err := run.Page.WaitNetworkIdle(ctx, s.idleTimeout); err != nil {
		s.logger.Debug("capture idle wait ended early", "url", run.URL, "error", err)
	}
	run.Snapshot.ConsoleLogs, run.Snapshot.NetworkRequests = run.capture.drain()
	return nil
}

// ScreenshotStep captures the full page, the viewport and up to
// MaxElementScreenshots media elements. Each capture is independent; the
// step keeps what succeeded and reports the rest.
type ScreenshotStep struct {
	settle time.Duration
	logger *slog.Logger
}

// Name returns the step name.
func (s *ScreenshotStep) Name() string { return "screenshots" }

// Do fills Screenshots.
func (s *ScreenshotStep) Do(ctx context.Context, run *Run) error {
	shots := &model.Screenshots{}
	var errs []error

	full, err := run.Page.Screenshot(ctx, true)
	if err != nil {
		errs = append(errs, fmt.Errorf("full page: %w", err))
	} else {
		shots.FullPage = full
	}

	viewport, err := run.Page.Screenshot(ctx, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("viewport: %w", err))
	} else {
		shots.Viewport = viewport
	}

	elements, err := run.Page.QueryAll(ctx, ElementSelector)
	if err != nil {
		errs = append(errs, fmt.Errorf("find elements: %w", err))
	}
	for i, el := range elements {
		if i >= MaxElementScreenshots {
			break
		}
		shot, err := s.element(ctx, el, i)
		if err != nil {
			s.logger.Debug("skipping element screenshot", "url", run.URL, "index", i, "error", err)
			continue
		}
		if shot != nil {
			shots.Elements = append(shots.Elements, *shot)
		}
	}

	if shots.FullPage != nil || shots.Viewport != nil || len(shots.Elements) > 0 {
		run.Snapshot.Screenshots = shots
	}
	return errors.Join(errs...)
}

func (s *ScreenshotStep) element(ctx context.Context, el browser.Element, index int) (*model.ElementScreenshot, error) {
	visible, err := el.Visible(ctx)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, nil
	}

	scrollCtx, cancel := context.WithTimeout(ctx, scrollIntoViewTimeout)
	if err := el.ScrollIntoView(scrollCtx); err != nil {
		s.logger.Debug("could not scroll element into view", "index", index, "error", err)
	}
	cancel()

	if err := sleep(ctx, s.settle); err != nil {
		return nil, err
	}

	shotCtx, cancel := context.WithTimeout(ctx, elementScreenshotTimeout)
	defer cancel()
	img, err := el.Screenshot(shotCtx)
	if err != nil {
		return nil, err
	}

	selector := el.Selector()
	if selector == "" {
		selector = fmt.Sprintf("element_%d", index)
	}
	return &model.ElementScreenshot{Selector: selector, Screenshot: img}, nil
}

// PDFStep renders the page to an A4 PDF.
type PDFStep struct{}

// Name returns the step name.
func (PDFStep) Name() string { return "pdf" }

// Do fills PDF.
func (PDFStep) Do(ctx context.Context, run *Run) error {
	pdf, err := run.Page.PrintPDF(ctx)
	if err != nil {
		return err
	}
	run.Snapshot.PDF = pdf
	return nil
}

// TextStep collects visible text nodes and hashes them.
type TextStep struct{}

// Name returns the step name.
func (TextStep) Name() string { return "text" }

// Do fills TextNodes and ContentHash.
func (TextStep) Do(ctx context.Context, run *Run) error {
	var nodes []string
	if err := run.Page.Evaluate(ctx, ScriptTextNodes, &nodes); err != nil {
		return err
	}
	run.Snapshot.TextNodes = nodes
	run.Snapshot.ComputeContentHash()
	return nil
}
