// Package ratelimit enforces a per-domain request quota.
//
// The default fixed-window limiter admits exactly N requests per window and
// starts a new window at the first request after the old one has elapsed.
// The token-bucket strategy (golang.org/x/time/rate) admits the same burst
// but refills gradually instead of all at once.
package ratelimit
