package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/pagesnap/internal/model"
)

// maxMarkdownLinks caps the links listed per page.
const maxMarkdownLinks = 20

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing. Binary captures (screenshots, PDF) are summarized by size only.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl in Markdown format.
func (w *MarkdownWriter) Write(resp *model.CrawlResponse) (int, error) {
	md := markdown.NewMarkdown(w.output)
	s := summarize(resp)

	w.writeHeader(md, resp, s)
	w.writeSummary(md, s)
	for i, p := range pages(resp) {
		w.writePage(md, p, i == 0 && resp.MainPage != nil)
	}
	md.Note(resp.LegalNotice)
	md.PlainText("")
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteDenial outputs the refusal in Markdown format.
func (w *MarkdownWriter) WriteDenial(denial *model.DenialResponse) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Pagesnap Crawl Denied")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"URL", "`" + denial.URL + "`"},
			{"Reason", denial.Reason.String()},
		},
	})
	md.PlainText("")
	md.Cautionf("%s", denial.Message)
	md.PlainText("")
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteDecisions outputs the decisions as a Markdown table.
func (w *MarkdownWriter) WriteDecisions(decisions []model.ComplianceDecision) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Compliance Decisions")
	md.PlainText("")

	if len(decisions) == 0 {
		md.PlainText("No decisions recorded.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(decisions))
	for i, d := range decisions {
		verdict := "✅ allowed"
		if !d.Allowed {
			verdict = "❌ denied"
		}
		rows[i] = []string{
			d.CheckedAt.Format(time.RFC3339),
			truncateString(d.URL, 60),
			verdict,
			d.Reason.String(),
			orDash(d.Detail),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Checked", "URL", "Verdict", "Reason", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")

	return len(md.String()), md.Build()
}

// writeHeader writes the crawl header.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, resp *model.CrawlResponse, s summary) {
	md.H1("Pagesnap Crawl Report")
	md.PlainText("")

	seed := "-"
	if resp.MainPage != nil {
		seed = "`" + resp.MainPage.URL + "`"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Crawl ID", "`" + resp.CrawlID + "`"},
			{"Seed", seed},
			{"Started", resp.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", resp.FinishedAt.Sub(resp.StartedAt).Round(time.Millisecond).String()},
			{"Pages", strconv.Itoa(s.total)},
		},
	})
	md.PlainText("")
}

// writeSummary writes the page outcome table, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s summary) {
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Pages"},
		Rows: [][]string{
			{"✅ Complete", strconv.Itoa(s.complete)},
			{"🟡 Degraded", strconv.Itoa(s.degraded)},
			{"❌ Failed", strconv.Itoa(s.failed)},
			{"⛔ Denied", strconv.Itoa(s.denied)},
		},
	})
	md.PlainText("")

	if s.total > 1 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Page Outcomes"),
			piechart.WithShowData(true),
		)
		for _, c := range []struct {
			label string
			n     int
		}{
			{"Complete", s.complete},
			{"Degraded", s.degraded},
			{"Failed", s.failed},
			{"Denied", s.denied},
		} {
			if c.n > 0 {
				chart.LabelAndIntValue(c.label, uint64(c.n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case s.failed > 0:
		md.Cautionf("%d page(s) could not be loaded.", s.failed)
	case s.denied > 0:
		md.Importantf("%d linked page(s) were refused by the compliance gate.", s.denied)
	case s.degraded > 0:
		md.Warningf("%d page(s) were extracted with missing stages.", s.degraded)
	default:
		md.Tip("Every page was extracted completely.")
	}
	md.PlainText("")
}

// writePage writes one page section.
func (w *MarkdownWriter) writePage(md *markdown.Markdown, p *model.PageSnapshot, seed bool) {
	title := p.URL
	if seed {
		title = "Seed: " + p.URL
	}
	md.H2(title)
	md.PlainText("")

	switch statusOf(p) {
	case statusDenied:
		md.Cautionf("Refused: %s", p.Error)
		md.PlainText("")
		return
	case statusFailed:
		md.Cautionf("Navigation failed: %s", p.Error)
		md.PlainText("")
		return
	case statusDegraded, statusComplete:
	}

	internal, external := linkCounts(p)
	rows := [][]string{
		{"Title", orDash(p.Title)},
		{"Description", orDash(truncateString(p.Description, 80))},
		{"Captured", p.CapturedAt.Format("2006-01-02 15:04:05 MST")},
		{"Links", strconv.Itoa(internal) + " internal, " + strconv.Itoa(external) + " external"},
		{"Structured data", strconv.Itoa(len(p.StructuredData))},
		{"Console messages", strconv.Itoa(len(p.ConsoleLogs))},
		{"Network requests", strconv.Itoa(len(p.NetworkRequests))},
		{"Text nodes", strconv.Itoa(len(p.TextNodes))},
		{"Content hash", orDash(p.ContentHash)},
	}
	if cs := p.ContentStructure; cs != nil {
		rows = append(rows,
			[]string{"Headings", strconv.Itoa(len(cs.Headings))},
			[]string{"Images", strconv.Itoa(len(cs.Images))},
			[]string{"Forms", strconv.Itoa(len(cs.Forms))},
			[]string{"Tables", strconv.Itoa(len(cs.Tables))},
		)
	}
	if sh := p.Screenshots; sh != nil {
		rows = append(rows, []string{"Screenshots",
			strconv.Itoa(len(sh.FullPage)) + " B full page, " +
				strconv.Itoa(len(sh.Viewport)) + " B viewport, " +
				strconv.Itoa(len(sh.Elements)) + " element(s)"})
	}
	if len(p.PDF) > 0 {
		rows = append(rows, []string{"PDF", strconv.Itoa(len(p.PDF)) + " B"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(p.StageErrors) > 0 {
		items := make([]string, len(p.StageErrors))
		for i, se := range p.StageErrors {
			items[i] = "`" + se.Stage + "`: " + se.Message
		}
		md.H3("Stage errors")
		md.PlainText("")
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(p.Links) > 0 {
		items := make([]string, 0, min(len(p.Links), maxMarkdownLinks))
		for _, l := range p.Links[:min(len(p.Links), maxMarkdownLinks)] {
			text := truncateString(l.Text, 40)
			if text == "" {
				text = l.Href
			}
			items = append(items, markdown.Link(text, l.Href))
		}
		md.Details("Links", markdown.NewMarkdown(io.Discard).BulletList(items...).String())
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [pagesnap](https://github.com/nao1215/pagesnap)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
