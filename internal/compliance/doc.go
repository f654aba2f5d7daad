// Package compliance decides whether a URL may be crawled.
//
// The Gate consults, in order: URL syntax, a domain denylist, a path
// fragment denylist, the origin's robots.txt (through the policy cache), the
// origin's terms-of-service pages and the per-domain rate limiter. The first
// failing check determines the decision's reason.
//
// Failure handling differs per check. A robots.txt that cannot be retrieved
// at all denies the URL, while a non-2xx robots response allows it. A terms
// page that fails to load is skipped, but a scan that cannot complete denies.
package compliance
