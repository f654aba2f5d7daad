// Package crawler orchestrates compliance-gated, one-hop crawls.
//
// # Architecture
//
// A Spider owns no browser between crawls. For each request it:
//
//  1. validates the seed URL and applies per-site overrides
//  2. asks the compliance gate; a refusal ends the crawl before any browser work
//  3. launches one browser page and extracts the seed
//  4. when depth allows, visits up to ten internal links of the seed in
//     discovery order, pausing before each and re-asking the gate
//  5. closes the page on every path
//
// Linked pages the gate refuses, and pages whose navigation fails, stay in
// the result as snapshots carrying only the URL and an error, so the result
// always mirrors the discovered link order.
//
// # Batches
//
// BatchProcessor runs several seeds at once with errgroup.SetLimit and keeps
// outcomes in request order.
//
// # Usage
//
//	spider := crawler.NewSpider(gate, launcher, extractor, crawler.WithSites(cfg))
//	resp, err := spider.Serve(ctx, model.CrawlRequest{URL: "https://example.com/"})
//	if denied, ok := crawler.AsDenied(err); ok {
//		// denied.Decision explains the refusal
//	}
package crawler
