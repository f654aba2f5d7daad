// Package model defines the data structures shared by pagesnap's packages.
//
// This package contains the following main types:
//   - ComplianceDecision: the gate's verdict for one URL and its Reason
//   - PageSnapshot: everything extracted from one rendered page
//   - CrawlRequest, CrawlResponse: the inbound and outbound crawl payloads
//   - DenialResponse: the payload returned when a seed URL is refused
//
// Models live in their own package so the compliance, crawler, pipeline,
// database and report packages can share them without import cycles.
// All types serialize to JSON with camelCase keys.
package model
