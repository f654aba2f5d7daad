// Package pipeline extracts a PageSnapshot from a browser page.
//
// Extraction is a sequence of Steps run by a Pipeline: navigation, optional
// infinite scrolling, a network idle wait, then one step per snapshot field
// (metadata, structured data, content structure, links, computed styles,
// storage, console and network capture, screenshots, PDF, text). Steps are
// isolated from each other. A failing step is recorded in the snapshot's
// StageErrors and leaves its field empty, while a failed navigation yields a
// snapshot carrying only the URL and the error.
//
// Extractor builds the pipeline for a set of crawl options and runs it.
package pipeline
