package model

import "time"

// LegalNotice accompanies every successful crawl response.
const LegalNotice = "This data was collected in compliance with robots.txt, terms of service, " +
	"and other legal requirements. Please ensure you have the right to use this data " +
	"according to applicable laws and regulations."

// Defaults for CrawlOptions.
const (
	DefaultMaxScrolls = 5
	DefaultMaxDepth   = 1
)

// CrawlOptions controls optional extraction work for every page of a crawl.
type CrawlOptions struct {
	HandleInfiniteScroll bool `json:"handleInfiniteScroll"`
	MaxScrolls           int  `json:"maxScrolls"`
	TakeScreenshots      bool `json:"takeScreenshots"`
	GeneratePDF          bool `json:"generatePDF"`

	// MaxDepth is 0 for the seed page only. Any positive value follows one hop.
	MaxDepth int `json:"maxDepth"`
}

// DefaultCrawlOptions returns the options used when a request leaves them unset.
func DefaultCrawlOptions() CrawlOptions {
	return CrawlOptions{
		MaxScrolls: DefaultMaxScrolls,
		MaxDepth:   DefaultMaxDepth,
	}
}

// FollowLinks reports whether linked pages should be visited.
func (o CrawlOptions) FollowLinks() bool {
	return o.MaxDepth > 0
}

// CrawlRequest is the inbound request for one crawl.
type CrawlRequest struct {
	URL string `json:"url"`
	CrawlOptions
}

// CrawlResult is the seed snapshot and the snapshots of the pages it links to.
// LinkedPages keeps the order in which links were discovered.
type CrawlResult struct {
	MainPage    *PageSnapshot   `json:"mainPage"`
	LinkedPages []*PageSnapshot `json:"linkedPages"`
}

// Pages returns the seed followed by the linked pages.
func (r *CrawlResult) Pages() []*PageSnapshot {
	if r == nil || r.MainPage == nil {
		return nil
	}
	return append([]*PageSnapshot{r.MainPage}, r.LinkedPages...)
}

// CrawlResponse is the outbound payload for a completed crawl.
type CrawlResponse struct {
	CrawlID     string          `json:"crawlId"`
	MainPage    *PageSnapshot   `json:"mainPage"`
	LinkedPages []*PageSnapshot `json:"linkedPages"`
	LegalNotice string          `json:"legalNotice"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
}

// NewCrawlResponse wraps a result with the legal notice.
func NewCrawlResponse(crawlID string, result *CrawlResult, started, finished time.Time) *CrawlResponse {
	resp := &CrawlResponse{
		CrawlID:     crawlID,
		LegalNotice: LegalNotice,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if result != nil {
		resp.MainPage = result.MainPage
		resp.LinkedPages = result.LinkedPages
	}
	if resp.LinkedPages == nil {
		resp.LinkedPages = []*PageSnapshot{}
	}
	return resp
}

// DenialResponse is returned instead of a CrawlResponse when the seed is refused.
type DenialResponse struct {
	URL     string `json:"url"`
	Message string `json:"message"`
	Reason  Reason `json:"reason"`
}

// NewDenialResponse builds the denial payload for a decision.
func NewDenialResponse(decision ComplianceDecision) *DenialResponse {
	return &DenialResponse{
		URL:     decision.URL,
		Message: decision.Message(),
		Reason:  decision.Reason,
	}
}
