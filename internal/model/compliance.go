package model

import (
	"fmt"
	"time"
)

// Reason explains the outcome of a compliance check.
// Every decision carries exactly one reason; ReasonOK is the only reason
// that accompanies an allowed decision.
type Reason int

const (
	// ReasonOK means every check passed and a rate-limit token was consumed.
	ReasonOK Reason = iota

	// ReasonBlockedDomain means the host is, or is a subdomain of, a denylisted domain.
	ReasonBlockedDomain

	// ReasonBlockedPath means the lower-cased path contains a denylisted fragment
	// such as "/login" or "/admin".
	ReasonBlockedPath

	// ReasonRobotsDenied means the origin's robots policy forbids the path for our
	// user agent, or the policy could not be retrieved.
	ReasonRobotsDenied

	// ReasonTOSDenied means a terms-of-service page of the origin mentions
	// automated access, or the terms scan failed as a whole.
	ReasonTOSDenied

	// ReasonRateLimited means the per-domain request quota is exhausted for the
	// current window.
	ReasonRateLimited

	// ReasonInvalidURL means the input could not be parsed as an absolute
	// http or https URL.
	ReasonInvalidURL
)

var reasonNames = map[Reason]string{
	ReasonOK:            "OK",
	ReasonBlockedDomain: "BLOCKED_DOMAIN",
	ReasonBlockedPath:   "BLOCKED_PATH",
	ReasonRobotsDenied:  "ROBOTS_DENIED",
	ReasonTOSDenied:     "TOS_DENIED",
	ReasonRateLimited:   "RATE_LIMITED",
	ReasonInvalidURL:    "INVALID_URL",
}

// String returns the wire name of the reason, e.g. "ROBOTS_DENIED".
func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler so reasons serialize by name.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reason) UnmarshalText(text []byte) error {
	parsed, err := ParseReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseReason converts a wire name back into a Reason.
func ParseReason(name string) (Reason, error) {
	for reason, n := range reasonNames {
		if n == name {
			return reason, nil
		}
	}
	return ReasonOK, fmt.Errorf("unknown compliance reason %q", name)
}

// ComplianceDecision is the verdict of the compliance gate for one URL.
// A decision is created fresh for every check and never mutated afterwards.
type ComplianceDecision struct {
	// URL is the URL exactly as it was submitted.
	URL string `json:"url"`

	// Domain is the lower-cased host of the URL. Empty for invalid URLs.
	Domain string `json:"domain,omitempty"`

	// Allowed reports whether the URL may be fetched.
	Allowed bool `json:"allowed"`

	// Reason is OK when allowed, otherwise the first check that failed.
	Reason Reason `json:"reason"`

	// Detail is a short human-readable explanation, e.g. the matched denylist entry.
	Detail string `json:"detail,omitempty"`

	// CheckedAt is when the decision was made.
	CheckedAt time.Time `json:"checkedAt"`
}

// Allow returns an allowed decision.
func Allow(rawURL, domain string, at time.Time) ComplianceDecision {
	return ComplianceDecision{
		URL:       rawURL,
		Domain:    domain,
		Allowed:   true,
		Reason:    ReasonOK,
		CheckedAt: at,
	}
}

// Deny returns a denied decision with the given reason and detail.
func Deny(rawURL, domain string, reason Reason, detail string, at time.Time) ComplianceDecision {
	return ComplianceDecision{
		URL:       rawURL,
		Domain:    domain,
		Allowed:   false,
		Reason:    reason,
		Detail:    detail,
		CheckedAt: at,
	}
}

// Message returns the text shown to callers when a URL is refused.
func (d ComplianceDecision) Message() string {
	if d.Allowed {
		return "URL is compliant"
	}
	if d.Detail != "" {
		return fmt.Sprintf("URL is not compliant: %s (%s)", d.Reason, d.Detail)
	}
	return fmt.Sprintf("URL is not compliant: %s", d.Reason)
}
