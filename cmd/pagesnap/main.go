// Package main provides the entry point for the pagesnap CLI.
//
// pagesnap captures rendered web pages with a headless browser after a
// compliance gate has approved every URL: robots.txt, terms-of-service
// scanning, blocked domain and path rules and a per-domain rate limit.
//
// Usage:
//
//	pagesnap crawl <url>
//	pagesnap check <url>...
//	pagesnap decisions --denied
//
// See --help for all available options.
package main

// main is the entry point for pagesnap.
func main() {
	Execute()
}
