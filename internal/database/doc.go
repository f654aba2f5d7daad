// Package database provides SQLite-based storage for pagesnap.
//
// The Store keeps three tables:
//   - robots_policies: the persistent tier behind the policy cache
//   - compliance_decisions: an audit log of every gate decision
//   - crawl_log: seed URL, timing and page count of finished crawls
//
// No table holds scraped page content.
//
// SQLite is used through modernc.org/sqlite, a CGO-free driver, so the
// database is a single file under the XDG data directory.
package database
