package report

import (
	"io"

	"github.com/nao1215/pagesnap/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl results in various formats.
type Writer interface {
	// Write outputs a finished crawl.
	// Returns the number of bytes written and any error encountered.
	Write(resp *model.CrawlResponse) (int, error)

	// WriteDenial outputs the refusal of a seed URL.
	WriteDenial(denial *model.DenialResponse) (int, error)

	// WriteDecisions outputs a list of compliance decisions.
	WriteDecisions(decisions []model.ComplianceDecision) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the crawl to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(resp *model.CrawlResponse) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.Write(resp) })
}

// WriteDenial outputs the denial to all configured Writers.
func (m *MultiWriter) WriteDenial(denial *model.DenialResponse) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteDenial(denial) })
}

// WriteDecisions outputs the decisions to all configured Writers.
func (m *MultiWriter) WriteDecisions(decisions []model.ComplianceDecision) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteDecisions(decisions) })
}

func (m *MultiWriter) each(write func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := write(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// pageStatus classifies a snapshot for summaries.
type pageStatus string

const (
	statusComplete pageStatus = "complete"
	statusDegraded pageStatus = "degraded"
	statusFailed   pageStatus = "failed"
	statusDenied   pageStatus = "denied"
)

func statusOf(p *model.PageSnapshot) pageStatus {
	switch {
	case p.Compliance != nil && !p.Compliance.Allowed:
		return statusDenied
	case p.Error != "":
		return statusFailed
	case p.Degraded():
		return statusDegraded
	default:
		return statusComplete
	}
}

// summary counts pages by status.
type summary struct {
	total    int
	complete int
	degraded int
	failed   int
	denied   int
}

func summarize(resp *model.CrawlResponse) summary {
	var s summary
	for _, p := range pages(resp) {
		s.total++
		switch statusOf(p) {
		case statusComplete:
			s.complete++
		case statusDegraded:
			s.degraded++
		case statusFailed:
			s.failed++
		case statusDenied:
			s.denied++
		}
	}
	return s
}

// pages returns the seed followed by the linked pages.
func pages(resp *model.CrawlResponse) []*model.PageSnapshot {
	if resp.MainPage == nil {
		return resp.LinkedPages
	}
	return append([]*model.PageSnapshot{resp.MainPage}, resp.LinkedPages...)
}

// linkCounts returns the number of internal and external links.
func linkCounts(p *model.PageSnapshot) (internal, external int) {
	for _, l := range p.Links {
		if l.IsExternal {
			external++
		} else {
			internal++
		}
	}
	return internal, external
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
