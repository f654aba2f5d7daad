package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/pagesnap/internal/browser"
	"github.com/nao1215/pagesnap/internal/browser/browsertest"
	"github.com/nao1215/pagesnap/internal/model"
)

const testURL = "https://example.com/"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExtractor() *Extractor {
	return NewExtractor(
		WithScrollDelay(0),
		WithSettleDelay(0),
		WithExtractorLogger(discardLogger()),
		WithClock(func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }),
	)
}

// fullDocument scripts every extraction script with plausible results.
func fullDocument() *browsertest.Document {
	return &browsertest.Document{
		Results: map[string]any{
			ScriptTitle: map[string]string{"title": "Example", "description": "An example page"},
			ScriptMetadata: []map[string]string{
				{"name": "description", "content": "An example page"},
				{"name": "og:title", "content": "Example OG"},
				{"name": "twitter:card", "content": "summary"},
			},
			ScriptStructuredData: map[string]any{
				"jsonld": []string{
					`{"@context":"https://schema.org","@type":"Organization","name":"Example"}`,
					`{not json`,
				},
				"microdata": []map[string]any{
					{
						"type":       "https://schema.org/Product",
						"id":         "p1",
						"properties": []map[string]string{{"name": "name", "content": "Widget"}},
					},
				},
			},
			ScriptContentStructure: map[string]any{
				"headings": []map[string]any{{"level": 1, "text": "Welcome"}},
				"lists":    []map[string]any{{"type": "ul", "items": []string{"a", "b"}}},
				"images":   []map[string]any{{"src": "https://example.com/a.png", "width": 10, "height": 20}},
				"forms": []map[string]any{{
					"action": "https://example.com/search",
					"method": "get",
					"inputs": []map[string]any{{"type": "text", "name": "q", "required": true}},
				}},
				"tables":    []map[string]any{{"headers": []string{"h"}, "rows": [][]string{{}, {"c"}}}},
				"iframes":   []map[string]any{{"src": "https://video.example/embed", "width": "560"}},
				"shadowDOM": []map[string]any{{"tagName": "MY-WIDGET", "shadowContent": []map[string]any{{"tagName": "SPAN", "text": "hi"}}}},
			},
			ScriptLinks: map[string]any{
				"location": testURL,
				"links": []map[string]string{
					{"text": "About", "href": "https://example.com/about"},
					{"text": "Docs", "href": "https://EXAMPLE.com/docs"},
					{"text": "Elsewhere", "href": "https://other.example/"},
					{"text": "Mail", "href": "mailto:team@example.com"},
				},
			},
			ScriptComputedStyles: map[string]any{
				"#main": map[string]any{
					"position": map[string]float64{"top": 0, "left": 0, "width": 1280, "height": 600},
					"styles":   map[string]string{"display": "block", "color": "rgb(0, 0, 0)"},
				},
			},
			ScriptStorage: map[string]any{
				"localStorage":   map[string]string{"theme": "dark"},
				"sessionStorage": map[string]string{},
				"cookies":        "session=abc",
			},
			ScriptTextNodes: []string{"Welcome", "Hello world"},
		},
		Console: []model.ConsoleLog{{Type: "log", Text: "ready"}},
		Requests: []model.NetworkRequest{
			{URL: "https://example.com/app.js", Method: "GET", ResourceType: "Script"},
		},
		FullPage: []byte("full"),
		Viewport: []byte("viewport"),
		PDF:      []byte("%PDF-1.7"),
		Elements: []*browsertest.Element{
			{Sel: "#hero", Image: []byte("hero")},
			{Sel: ".hidden", Hidden: true},
			{Sel: "", Image: []byte("anon")},
			{Sel: "iframe", Err: errors.New("detached")},
			{Sel: "video", Image: []byte("video")},
			{Sel: "#sixth", Image: []byte("sixth")},
		},
	}
}

func TestExtractFullPage(t *testing.T) {
	t.Parallel()

	page := browsertest.NewPage(map[string]*browsertest.Document{testURL: fullDocument()})
	opts := model.CrawlOptions{TakeScreenshots: true, GeneratePDF: true}

	snap := newTestExtractor().Extract(context.Background(), page, testURL, opts)

	if snap.Error != "" {
		t.Fatalf("unexpected error %q", snap.Error)
	}
	if snap.Degraded() {
		t.Fatalf("unexpected stage errors %+v", snap.StageErrors)
	}
	if snap.Title != "Example" || snap.Description != "An example page" {
		t.Errorf("title/description = %q/%q", snap.Title, snap.Description)
	}
	if snap.Metadata["og:title"] != "Example OG" || snap.Metadata["twitter:card"] != "summary" {
		t.Errorf("metadata = %v", snap.Metadata)
	}

	if len(snap.StructuredData) != 2 {
		t.Fatalf("structured data = %+v, want JSON-LD plus microdata", snap.StructuredData)
	}
	if snap.StructuredData[0].Type != model.JSONLDType {
		t.Errorf("first entry type = %q", snap.StructuredData[0].Type)
	}
	if md := snap.StructuredData[1]; md.Type != "https://schema.org/Product" || md.ID != "p1" || len(md.Properties) != 1 {
		t.Errorf("microdata = %+v", md)
	}

	cs := snap.ContentStructure
	if cs == nil || len(cs.Headings) != 1 || cs.Headings[0].Level != 1 || len(cs.Forms[0].Inputs) != 1 {
		t.Fatalf("content structure = %+v", cs)
	}
	if len(cs.ShadowNodes) != 1 || cs.ShadowNodes[0].ShadowContent[0].Text != "hi" {
		t.Errorf("shadow nodes = %+v", cs.ShadowNodes)
	}

	wantExternal := []bool{false, false, true, true}
	for i, l := range snap.Links {
		if l.IsExternal != wantExternal[i] {
			t.Errorf("link %s external = %v, want %v", l.Href, l.IsExternal, wantExternal[i])
		}
	}

	if st := snap.ComputedStyles["#main"]; st.Position.Width != 1280 || st.Styles["display"] != "block" {
		t.Errorf("computed styles = %+v", snap.ComputedStyles)
	}
	if snap.StorageData == nil || snap.StorageData.Cookies != "session=abc" || snap.StorageData.LocalStorage["theme"] != "dark" {
		t.Errorf("storage = %+v", snap.StorageData)
	}
	if len(snap.ConsoleLogs) != 1 || len(snap.NetworkRequests) != 1 {
		t.Errorf("capture = %d logs, %d requests", len(snap.ConsoleLogs), len(snap.NetworkRequests))
	}

	shots := snap.Screenshots
	if shots == nil || string(shots.FullPage) != "full" || string(shots.Viewport) != "viewport" {
		t.Fatalf("screenshots = %+v", shots)
	}
	var selectors []string
	for _, e := range shots.Elements {
		selectors = append(selectors, e.Selector)
	}
	// The hidden and failing elements are skipped; the sixth is beyond the limit.
	if want := []string{"#hero", "element_2", "video"}; !slices.Equal(selectors, want) {
		t.Errorf("element selectors = %v, want %v", selectors, want)
	}

	if string(snap.PDF) != "%PDF-1.7" {
		t.Errorf("pdf = %q", snap.PDF)
	}
	if len(snap.TextNodes) != 2 || snap.ContentHash == "" {
		t.Errorf("text = %v hash = %q", snap.TextNodes, snap.ContentHash)
	}
	if !snap.CapturedAt.Equal(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("captured at %v", snap.CapturedAt)
	}
}

func TestExtractNavigationFailure(t *testing.T) {
	t.Parallel()

	doc := fullDocument()
	doc.NavigateErr = errors.New("net::ERR_CONNECTION_REFUSED")
	page := browsertest.NewPage(map[string]*browsertest.Document{testURL: doc})

	snap := newTestExtractor().Extract(context.Background(), page, testURL, model.DefaultCrawlOptions())

	if snap.URL != testURL {
		t.Errorf("url = %q", snap.URL)
	}
	if snap.Error == "" {
		t.Fatal("expected error")
	}
	if snap.Title != "" || snap.Links != nil || snap.TextNodes != nil || snap.Metadata != nil || snap.Degraded() {
		t.Errorf("failed snapshot carries data: %+v", snap)
	}
	if got := page.Evaluated(); len(got) != 0 {
		t.Errorf("evaluated %d scripts after failed navigation", len(got))
	}
}

func TestExtractCancelledBeforeNavigation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := browsertest.NewPage(map[string]*browsertest.Document{testURL: fullDocument()})

	snap := newTestExtractor().Extract(ctx, page, testURL, model.DefaultCrawlOptions())
	if snap.Error == "" || snap.Degraded() {
		t.Errorf("expected a failed snapshot, got %+v", snap)
	}
}

func TestExtractStepFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	doc := fullDocument()
	doc.ScreenshotErr = errors.New("capture failed")
	doc.Errors = map[string]error{
		ScriptComputedStyles: errors.New("execution context destroyed"),
		ScriptStorage:        errors.New("SecurityError: access denied"),
	}
	page := browsertest.NewPage(map[string]*browsertest.Document{testURL: doc})

	snap := newTestExtractor().Extract(context.Background(), page, testURL, model.CrawlOptions{TakeScreenshots: true})

	var stages []string
	for _, se := range snap.StageErrors {
		stages = append(stages, se.Stage)
	}
	if want := []string{"computed_styles", "storage", "screenshots"}; !slices.Equal(stages, want) {
		t.Fatalf("stage errors = %v, want %v", stages, want)
	}
	if snap.ComputedStyles != nil || snap.StorageData != nil {
		t.Error("failed steps must leave their fields empty")
	}
	if snap.Title == "" || len(snap.Links) == 0 || len(snap.TextNodes) == 0 || snap.Metadata == nil {
		t.Error("successful steps must keep their results")
	}
	// Element screenshots still succeed when page captures fail.
	if snap.Screenshots == nil || snap.Screenshots.FullPage != nil || len(snap.Screenshots.Elements) == 0 {
		t.Errorf("screenshots = %+v", snap.Screenshots)
	}
}

func TestExtractOptionalSteps(t *testing.T) {
	t.Parallel()

	page := browsertest.NewPage(map[string]*browsertest.Document{testURL: fullDocument()})
	snap := newTestExtractor().Extract(context.Background(), page, testURL, model.DefaultCrawlOptions())

	if snap.Screenshots != nil || snap.PDF != nil {
		t.Error("screenshots and PDF are opt-in")
	}
	if slices.Contains(page.Evaluated(), ScriptScrollToBottom) {
		t.Error("scrolling is opt-in")
	}
}

func TestExtractNetworkIdleTimeoutIsNotAFailure(t *testing.T) {
	t.Parallel()

	doc := fullDocument()
	doc.IdleErr = fmt.Errorf("%w: 3 requests pending", browser.ErrIdleTimeout)
	page := browsertest.NewPage(map[string]*browsertest.Document{testURL: doc})

	snap := newTestExtractor().Extract(context.Background(), page, testURL, model.DefaultCrawlOptions())
	if snap.Degraded() {
		t.Errorf("unexpected stage errors %+v", snap.StageErrors)
	}
	if len(snap.ConsoleLogs) != 1 {
		t.Errorf("console logs = %d", len(snap.ConsoleLogs))
	}
}

func TestExtractCaptureLimit(t *testing.T) {
	t.Parallel()

	doc := fullDocument()
	doc.Console = nil
	doc.Requests = nil
	for i := range 150 {
		doc.Console = append(doc.Console, model.ConsoleLog{Type: "log", Text: fmt.Sprint(i)})
		doc.Requests = append(doc.Requests, model.NetworkRequest{URL: fmt.Sprintf("https://example.com/%d", i)})
	}
	page := browsertest.NewPage(map[string]*browsertest.Document{testURL: doc})

	snap := newTestExtractor().Extract(context.Background(), page, testURL, model.DefaultCrawlOptions())
	if len(snap.ConsoleLogs) != DefaultCaptureLimit || len(snap.NetworkRequests) != DefaultCaptureLimit {
		t.Fatalf("kept %d logs and %d requests", len(snap.ConsoleLogs), len(snap.NetworkRequests))
	}
	if snap.ConsoleLogs[0].Text != "0" || snap.ConsoleLogs[99].Text != "99" {
		t.Error("the first messages must be kept")
	}
}

func TestScrollStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		heights     []int
		maxScrolls  int
		wantScrolls int
	}{
		{name: "stops when height stops growing", heights: []int{1000, 2000, 3000, 3000}, maxScrolls: 5, wantScrolls: 3},
		{name: "stops at max scrolls", heights: []int{1000, 2000, 3000, 4000, 5000}, maxScrolls: 2, wantScrolls: 2},
		{name: "default max scrolls", heights: []int{1, 2, 3, 4, 5, 6, 7, 8}, maxScrolls: model.DefaultMaxScrolls, wantScrolls: model.DefaultMaxScrolls},
		{name: "zero max scrolls only returns to top", heights: []int{1, 2, 3}, maxScrolls: 0, wantScrolls: 0},
		{name: "empty document is not scrolled", heights: []int{0}, maxScrolls: 5, wantScrolls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			doc := &browsertest.Document{Results: map[string]any{
				ScriptScrollHeight: func() any {
					h := tt.heights[min(calls, len(tt.heights)-1)]
					calls++
					return h
				},
				ScriptScrollToBottom: true,
				ScriptScrollToTop:    true,
			}}
			page := browsertest.NewPage(map[string]*browsertest.Document{testURL: doc})
			if err := page.Navigate(context.Background(), testURL, time.Second); err != nil {
				t.Fatal(err)
			}

			run := &Run{
				Page:     page,
				URL:      testURL,
				Options:  model.CrawlOptions{HandleInfiniteScroll: true, MaxScrolls: tt.maxScrolls},
				Snapshot: &model.PageSnapshot{URL: testURL},
			}
			if err := (&ScrollStep{}).Do(context.Background(), run); err != nil {
				t.Fatalf("scroll: %v", err)
			}

			scripts := page.Evaluated()
			scrolls := 0
			for _, s := range scripts {
				if s == ScriptScrollToBottom {
					scrolls++
				}
			}
			if scrolls != tt.wantScrolls {
				t.Errorf("scrolled %d times, want %d", scrolls, tt.wantScrolls)
			}
			if scripts[len(scripts)-1] != ScriptScrollToTop {
				t.Error("expected to return to the top")
			}
		})
	}
}

func TestExtractorBuild(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	names := e.Build(model.CrawlOptions{HandleInfiniteScroll: true, TakeScreenshots: true, GeneratePDF: true}).StepNames()
	want := []string{
		"navigate", "infinite_scroll", "network_idle", "title", "metadata", "structured_data",
		"content_structure", "links", "computed_styles", "storage", "console_network",
		"screenshots", "pdf", "text",
	}
	if !slices.Equal(names, want) {
		t.Errorf("steps = %v\nwant    %v", names, want)
	}

	if got := e.Build(model.CrawlOptions{}).StepCount(); got != len(want)-3 {
		t.Errorf("minimal pipeline has %d steps, want %d", got, len(want)-3)
	}
}
