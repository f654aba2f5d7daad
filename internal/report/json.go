package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/pagesnap/internal/model"
)

// JSONWriter outputs reports in JSON format.
// A crawl is written exactly as the CrawlResponse wire shape, so the output
// can be consumed by anything that speaks the crawl contract.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the crawl response.
func (w *JSONWriter) Write(resp *model.CrawlResponse) (int, error) {
	return w.writeJSON(resp)
}

// WriteDenial outputs the denial payload.
func (w *JSONWriter) WriteDenial(denial *model.DenialResponse) (int, error) {
	return w.writeJSON(denial)
}

// WriteDecisions outputs the decisions as a JSON array. A nil slice is
// written as an empty array.
func (w *JSONWriter) WriteDecisions(decisions []model.ComplianceDecision) (int, error) {
	if decisions == nil {
		decisions = []model.ComplianceDecision{}
	}
	return w.writeJSON(decisions)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
