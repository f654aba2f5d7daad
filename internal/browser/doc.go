// Package browser drives a web page for extraction.
//
// Page and Element describe the small set of browser capabilities the
// extraction pipeline needs. ChromeLauncher implements them with headless
// Chrome through chromedp; tests use hand-written fakes instead.
package browser
