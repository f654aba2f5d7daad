// Package report writes crawl results, denials and compliance decisions.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: The CrawlResponse and denial wire shapes for tool integration
//   - MarkdownWriter: Shareable reports built with nao1215/markdown
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report
