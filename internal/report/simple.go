package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/pagesnap/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
// Plain ASCII keeps the output pipe-friendly.
type SimpleWriter struct {
	baseWriter

	// verbose lists links, stage errors and console messages per page.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the crawl in human-readable format.
func (w *SimpleWriter) Write(resp *model.CrawlResponse) (int, error) {
	var sb strings.Builder
	s := summarize(resp)

	rule(&sb, "=")
	sb.WriteString("                         PAGESNAP CRAWL REPORT\n")
	rule(&sb, "=")
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Crawl ID:  %s\n", resp.CrawlID)
	if resp.MainPage != nil {
		fmt.Fprintf(&sb, "Seed:      %s\n", resp.MainPage.URL)
	}
	fmt.Fprintf(&sb, "Started:   %s\n", resp.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Duration:  %s\n", resp.FinishedAt.Sub(resp.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&sb, "Pages:     %d (complete %d, degraded %d, failed %d, denied %d)\n\n",
		s.total, s.complete, s.degraded, s.failed, s.denied)

	rule(&sb, "-")
	sb.WriteString("PAGES\n")
	rule(&sb, "-")
	sb.WriteString("\n")
	for _, p := range pages(resp) {
		w.writePage(&sb, p)
	}

	sb.WriteString(resp.LegalNotice)
	sb.WriteString("\n")
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteDenial outputs the refusal as a single line.
func (w *SimpleWriter) WriteDenial(denial *model.DenialResponse) (int, error) {
	return fmt.Fprintf(w.output, "denied: %s %s\n  %s\n", denial.Reason, denial.URL, denial.Message)
}

// WriteDecisions outputs one line per decision.
func (w *SimpleWriter) WriteDecisions(decisions []model.ComplianceDecision) (int, error) {
	var sb strings.Builder
	if len(decisions) == 0 {
		sb.WriteString("no decisions\n")
	}
	for _, d := range decisions {
		verdict := "ALLOW"
		if !d.Allowed {
			verdict = "DENY "
		}
		fmt.Fprintf(&sb, "%s  %s  %-14s %s", d.CheckedAt.Format(time.RFC3339), verdict, d.Reason, d.URL)
		if d.Detail != "" {
			fmt.Fprintf(&sb, " (%s)", d.Detail)
		}
		sb.WriteString("\n")
	}
	return w.output.Write([]byte(sb.String()))
}

// writePage writes one page entry.
func (w *SimpleWriter) writePage(sb *strings.Builder, p *model.PageSnapshot) {
	status := statusOf(p)
	fmt.Fprintf(sb, "[%s] %s\n", indicator(status), p.URL)

	switch status {
	case statusDenied, statusFailed:
		fmt.Fprintf(sb, "    %s\n\n", p.Error)
		return
	case statusDegraded, statusComplete:
	}

	internal, external := linkCounts(p)
	if p.Title != "" {
		fmt.Fprintf(sb, "    Title:    %s\n", p.Title)
	}
	fmt.Fprintf(sb, "    Links:    %d internal, %d external\n", internal, external)
	fmt.Fprintf(sb, "    Console:  %d messages, %d requests\n", len(p.ConsoleLogs), len(p.NetworkRequests))
	if p.ContentHash != "" {
		fmt.Fprintf(sb, "    Hash:     %s\n", truncateString(p.ContentHash, 19))
	}
	if p.Screenshots != nil {
		fmt.Fprintf(sb, "    Captures: full page %d B, viewport %d B, %d element(s)\n",
			len(p.Screenshots.FullPage), len(p.Screenshots.Viewport), len(p.Screenshots.Elements))
	}
	if len(p.PDF) > 0 {
		fmt.Fprintf(sb, "    PDF:      %d B\n", len(p.PDF))
	}
	for _, se := range p.StageErrors {
		fmt.Fprintf(sb, "    ! %s: %s\n", se.Stage, se.Message)
	}
	if w.verbose {
		for _, l := range p.Links {
			marker := "-"
			if l.IsExternal {
				marker = ">"
			}
			fmt.Fprintf(sb, "      %s %s\n", marker, l.Href)
		}
		for _, c := range p.ConsoleLogs {
			fmt.Fprintf(sb, "      console.%s: %s\n", c.Type, truncateString(c.Text, 80))
		}
	}
	sb.WriteString("\n")
}

// indicator returns a visual marker for a page status.
func indicator(s pageStatus) string {
	switch s {
	case statusComplete:
		return "ok"
	case statusDegraded:
		return "~~"
	case statusFailed:
		return "!!"
	case statusDenied:
		return "--"
	default:
		return "??"
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by pagesnap\n")
	sb.WriteString("https://github.com/nao1215/pagesnap\n")
	rule(sb, "=")
}

func rule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, 70))
	sb.WriteString("\n")
}
