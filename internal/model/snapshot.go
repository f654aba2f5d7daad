package model

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/sha3"
)

// PageSnapshot is everything extracted from one rendered page.
// A snapshot is filled by a single pipeline run; each field is assigned only
// when the step that produces it succeeds, so a partially filled snapshot is
// still a valid result. Screenshot and PDF bytes are base64 encoded in JSON.
type PageSnapshot struct {
	URL              string            `json:"url"`
	Title            string            `json:"title,omitempty"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	StructuredData   []StructuredData  `json:"structuredData,omitempty"`
	ContentStructure *ContentStructure `json:"contentStructure,omitempty"`
	Links            []Link            `json:"links,omitempty"`
	ComputedStyles   map[string]Styles `json:"computedStyles,omitempty"`
	StorageData      *StorageData      `json:"storageData,omitempty"`
	ConsoleLogs      []ConsoleLog      `json:"consoleLogs,omitempty"`
	NetworkRequests  []NetworkRequest  `json:"networkRequests,omitempty"`
	Screenshots      *Screenshots      `json:"screenshots,omitempty"`
	PDF              []byte            `json:"pdf,omitempty"`
	TextNodes        []string          `json:"textNodes,omitempty"`
	ContentHash      string            `json:"contentHash,omitempty"`
	CapturedAt       time.Time         `json:"capturedAt"`

	// Error is set only when navigation failed; in that case nothing but URL is populated.
	Error string `json:"error,omitempty"`

	// StageErrors lists the non-fatal steps that failed during extraction.
	StageErrors []StageError `json:"stageErrors,omitempty"`

	// Compliance holds the denying decision when a linked page was refused by the gate.
	Compliance *ComplianceDecision `json:"compliance,omitempty"`
}

// StageError records a failed extraction step.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Failed returns a snapshot carrying only the URL and an error message.
func Failed(url string, err error, at time.Time) *PageSnapshot {
	return &PageSnapshot{URL: url, Error: err.Error(), CapturedAt: at}
}

// Denied returns a snapshot for a URL the compliance gate refused.
func Denied(decision ComplianceDecision) *PageSnapshot {
	d := decision
	return &PageSnapshot{
		URL:        decision.URL,
		Error:      decision.Message(),
		Compliance: &d,
		CapturedAt: decision.CheckedAt,
	}
}

// AddStageError appends a stage failure note.
func (s *PageSnapshot) AddStageError(stage string, err error) {
	s.StageErrors = append(s.StageErrors, StageError{Stage: stage, Message: err.Error()})
}

// Degraded reports whether any non-fatal step failed.
func (s *PageSnapshot) Degraded() bool {
	return len(s.StageErrors) > 0
}

// ComputeContentHash stores a SHA3-256 digest of the visible text nodes.
// Two snapshots of an unchanged page produce the same hash even if
// screenshots or telemetry differ.
func (s *PageSnapshot) ComputeContentHash() {
	if len(s.TextNodes) == 0 {
		s.ContentHash = ""
		return
	}
	h := sha3.New256()
	for _, text := range s.TextNodes {
		h.Write([]byte(text))
		h.Write([]byte{0})
	}
	s.ContentHash = hex.EncodeToString(h.Sum(nil))
}

// StructuredData is either a JSON-LD block or a microdata item.
type StructuredData struct {
	// Type is "application/ld+json" for JSON-LD, or the itemtype for microdata.
	Type string `json:"type"`

	// Data is the parsed JSON-LD document.
	Data json.RawMessage `json:"data,omitempty"`

	// ID is the microdata itemid.
	ID string `json:"id,omitempty"`

	// Properties are the microdata itemprop values.
	Properties []MicrodataProperty `json:"properties,omitempty"`
}

// JSONLDType is the StructuredData.Type of JSON-LD blocks.
const JSONLDType = "application/ld+json"

// MicrodataProperty is one itemprop. Content falls back to the element text.
type MicrodataProperty struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ContentStructure is the structural outline of a page.
type ContentStructure struct {
	Headings    []Heading    `json:"headings"`
	Lists       []List       `json:"lists"`
	Images      []Image      `json:"images"`
	Forms       []Form       `json:"forms"`
	Tables      []Table      `json:"tables"`
	Iframes     []Iframe     `json:"iframes"`
	ShadowNodes []ShadowNode `json:"shadowDOM"`
}

// Heading is an h1 to h6 element.
type Heading struct {
	Level   int    `json:"level"`
	Text    string `json:"text"`
	ID      string `json:"id,omitempty"`
	Classes string `json:"classes,omitempty"`
}

// List is a ul or ol element.
type List struct {
	Type    string   `json:"type"`
	Items   []string `json:"items"`
	ID      string   `json:"id,omitempty"`
	Classes string   `json:"classes,omitempty"`
}

// Image is an img element.
type Image struct {
	Src     string `json:"src"`
	Alt     string `json:"alt,omitempty"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	ID      string `json:"id,omitempty"`
	Classes string `json:"classes,omitempty"`
}

// Form is a form element with its controls.
type Form struct {
	Action  string      `json:"action,omitempty"`
	Method  string      `json:"method,omitempty"`
	ID      string      `json:"id,omitempty"`
	Classes string      `json:"classes,omitempty"`
	Inputs  []FormInput `json:"inputs"`
}

// FormInput is an input, select or textarea inside a form.
type FormInput struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
	Value       string `json:"value,omitempty"`
	Disabled    bool   `json:"disabled"`
	Checked     bool   `json:"checked"`
}

// Table is a table element flattened to header and body cell text.
type Table struct {
	ID      string     `json:"id,omitempty"`
	Classes string     `json:"classes,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Iframe is an iframe element.
type Iframe struct {
	Src     string `json:"src,omitempty"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Width   string `json:"width,omitempty"`
	Height  string `json:"height,omitempty"`
	Classes string `json:"classes,omitempty"`
}

// ShadowNode is a shadow host and the elements inside its shadow root.
type ShadowNode struct {
	TagName       string          `json:"tagName"`
	ID            string          `json:"id,omitempty"`
	Classes       string          `json:"classes,omitempty"`
	ShadowContent []ShadowElement `json:"shadowContent"`
}

// ShadowElement is an element found inside a shadow root.
type ShadowElement struct {
	TagName string `json:"tagName"`
	ID      string `json:"id,omitempty"`
	Classes string `json:"classes,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Link is an anchor with an href.
type Link struct {
	Text       string `json:"text"`
	Href       string `json:"href"`
	Title      string `json:"title,omitempty"`
	Target     string `json:"target,omitempty"`
	Rel        string `json:"rel,omitempty"`
	ID         string `json:"id,omitempty"`
	Classes    string `json:"classes,omitempty"`
	IsExternal bool   `json:"isExternal"`
}

// Styles is the layout box and selected computed CSS properties of an element.
type Styles struct {
	Position Box               `json:"position"`
	Styles   map[string]string `json:"styles"`
}

// Box is an element's bounding client rect.
type Box struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StorageData is the client-side state visible to page scripts.
type StorageData struct {
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
	Cookies        string            `json:"cookies"`
}

// ConsoleLog is one console message emitted by the page.
type ConsoleLog struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Location ConsoleLocation `json:"location"`
}

// ConsoleLocation is the script position of a console message.
type ConsoleLocation struct {
	URL          string `json:"url,omitempty"`
	LineNumber   int64  `json:"lineNumber"`
	ColumnNumber int64  `json:"columnNumber"`
}

// NetworkRequest is one request issued by the page.
type NetworkRequest struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	ResourceType string            `json:"resourceType"`
}

// Screenshots holds the images captured for a page.
type Screenshots struct {
	FullPage []byte              `json:"fullPage,omitempty"`
	Viewport []byte              `json:"viewport,omitempty"`
	Elements []ElementScreenshot `json:"elements,omitempty"`
}

// ElementScreenshot is the image of one media element.
type ElementScreenshot struct {
	Selector   string `json:"selector"`
	Screenshot []byte `json:"screenshot"`
}
