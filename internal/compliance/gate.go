package compliance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	gocache "github.com/patrickmn/go-cache"

	"github.com/nao1215/pagesnap/internal/fetch"
	"github.com/nao1215/pagesnap/internal/model"
	"github.com/nao1215/pagesnap/internal/policy"
)

// DefaultRobotsAgent is the product token evaluated against robots.txt.
const DefaultRobotsAgent = "PagesnapBot"

// DefaultTOSTTL is how long a terms verdict is reused per origin.
const DefaultTOSTTL = 24 * time.Hour

// PolicySource returns the robots policy of an origin.
// *policy.Cache implements it.
type PolicySource interface {
	Get(ctx context.Context, origin string) (*policy.Document, error)
}

// Limiter consumes per-domain request quota.
// *ratelimit.Registry implements it.
type Limiter interface {
	Acquire(domain string) bool
}

// Recorder receives every decision the gate makes.
type Recorder interface {
	RecordDecision(ctx context.Context, d model.ComplianceDecision) error
}

// Evaluator decides whether a URL may be fetched.
// *Gate implements it; the crawler depends on this interface.
type Evaluator interface {
	Evaluate(ctx context.Context, rawURL string) model.ComplianceDecision
}

// Gate runs the compliance checks in a fixed order and stops at the first
// failure: URL syntax, blocked domain, blocked path, robots policy, terms of
// service and finally the per-domain rate limit. Only a URL that passes every
// check consumes a rate-limit token.
type Gate struct {
	policies PolicySource
	fetcher  fetch.Fetcher
	limiter  Limiter
	recorder Recorder

	robotsAgent    string
	blockedDomains domainList
	blockedPaths   pathList
	tosPaths       []string
	tosKeywords    keywordList
	tosVerdicts    *gocache.Cache

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithRobotsAgent sets the user agent token evaluated against robots.txt.
func WithRobotsAgent(agent string) Option {
	return func(g *Gate) {
		if agent != "" {
			g.robotsAgent = agent
		}
	}
}

// WithBlockedDomains replaces the domain denylist.
func WithBlockedDomains(domains []string) Option {
	return func(g *Gate) {
		if len(domains) > 0 {
			g.blockedDomains = newDomainList(domains)
		}
	}
}

// WithBlockedPaths replaces the path fragment denylist.
func WithBlockedPaths(paths []string) Option {
	return func(g *Gate) {
		if len(paths) > 0 {
			g.blockedPaths = newPathList(paths)
		}
	}
}

// WithTOSPaths replaces the probed terms-of-service paths.
func WithTOSPaths(paths []string) Option {
	return func(g *Gate) {
		if len(paths) > 0 {
			g.tosPaths = append([]string(nil), paths...)
		}
	}
}

// WithTOSKeywords replaces the prohibition keywords.
func WithTOSKeywords(keywords []string) Option {
	return func(g *Gate) {
		if len(keywords) > 0 {
			g.tosKeywords = newKeywordList(keywords)
		}
	}
}

// WithTOSTTL sets how long a terms verdict is reused. Zero scans every time.
func WithTOSTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl <= 0 {
			g.tosVerdicts = nil
			return
		}
		g.tosVerdicts = gocache.New(ttl, ttl)
	}
}

// WithRecorder records every decision.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) {
		g.recorder = r
	}
}

// WithClock replaces time.Now for decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a Gate. The policy source, fetcher and limiter are shared
// process-wide state owned by the caller.
func NewGate(policies PolicySource, fetcher fetch.Fetcher, limiter Limiter, opts ...Option) *Gate {
	g := &Gate{
		policies:       policies,
		fetcher:        fetcher,
		limiter:        limiter,
		robotsAgent:    DefaultRobotsAgent,
		blockedDomains: newDomainList(DefaultBlockedDomains),
		blockedPaths:   newPathList(DefaultBlockedPaths),
		tosPaths:       DefaultTOSPaths,
		tosKeywords:    newKeywordList(DefaultTOSKeywords),
		tosVerdicts:    gocache.New(DefaultTOSTTL, DefaultTOSTTL),
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate runs every check against rawURL. On success one rate-limit token
// of the URL's host is consumed.
func (g *Gate) Evaluate(ctx context.Context, rawURL string) model.ComplianceDecision {
	d := g.evaluate(ctx, rawURL, true)
	g.record(ctx, d)
	return d
}

// Preview runs every check except the rate limit and consumes nothing.
func (g *Gate) Preview(ctx context.Context, rawURL string) model.ComplianceDecision {
	return g.evaluate(ctx, rawURL, false)
}

func (g *Gate) evaluate(ctx context.Context, rawURL string, consume bool) model.ComplianceDecision {
	u, err := ParseURL(rawURL)
	if err != nil {
		return model.Deny(rawURL, "", model.ReasonInvalidURL, err.Error(), g.now())
	}
	host := Hostname(u)
	deny := func(reason model.Reason, detail string) model.ComplianceDecision {
		return model.Deny(rawURL, host, reason, detail, g.now())
	}

	if entry, blocked := g.blockedDomains.match(host); blocked {
		return deny(model.ReasonBlockedDomain, entry)
	}
	if fragment, blocked := g.blockedPaths.match(u.Path); blocked {
		return deny(model.ReasonBlockedPath, fragment)
	}

	origin := policy.Origin(u)
	doc, err := g.policies.Get(ctx, origin)
	if err != nil {
		g.logger.Warn("robots policy unavailable, denying", "origin", origin, "error", err)
		return deny(model.ReasonRobotsDenied, "robots.txt could not be retrieved")
	}
	if !doc.Allowed(u.RequestURI(), g.robotsAgent) {
		return deny(model.ReasonRobotsDenied, "disallowed by robots.txt")
	}

	allowed, detail, err := g.termsAllow(ctx, origin)
	if err != nil {
		g.logger.Warn("terms of service scan failed, denying", "origin", origin, "error", err)
		return deny(model.ReasonTOSDenied, "terms of service could not be checked")
	}
	if !allowed {
		return deny(model.ReasonTOSDenied, detail)
	}

	if consume && !g.limiter.Acquire(host) {
		return deny(model.ReasonRateLimited, "too many requests to this domain")
	}
	return model.Allow(rawURL, host, g.now())
}

type tosVerdict struct {
	allowed bool
	detail  string
}

// termsAllow scans the origin's terms pages. A page that fails to load is
// skipped; if none loads the origin is allowed. The scan as a whole fails
// when the context ends before it completes.
func (g *Gate) termsAllow(ctx context.Context, origin string) (bool, string, error) {
	if g.tosVerdicts != nil {
		if v, ok := g.tosVerdicts.Get(origin); ok {
			if verdict, ok := v.(tosVerdict); ok {
				return verdict.allowed, verdict.detail, nil
			}
		}
	}

	verdict, err := g.scanTerms(ctx, origin)
	if err != nil {
		return false, "", err
	}
	if g.tosVerdicts != nil {
		g.tosVerdicts.SetDefault(origin, verdict)
	}
	return verdict.allowed, verdict.detail, nil
}

func (g *Gate) scanTerms(ctx context.Context, origin string) (tosVerdict, error) {
	base := strings.TrimSuffix(origin, "/")
	for _, path := range g.tosPaths {
		if err := ctx.Err(); err != nil {
			return tosVerdict{}, fmt.Errorf("terms scan of %s interrupted: %w", origin, err)
		}
		tosURL := base + path
		resp, err := g.fetcher.Get(ctx, tosURL)
		if err != nil {
			g.logger.Debug("terms page unavailable", "url", tosURL, "error", err)
			continue
		}
		if !resp.OK() {
			continue
		}
		if keyword, found := g.tosKeywords.find(pageText(resp)); found {
			return tosVerdict{
				allowed: false,
				detail:  fmt.Sprintf("%s mentions %q", path, keyword),
			}, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return tosVerdict{}, fmt.Errorf("terms scan of %s interrupted: %w", origin, err)
	}
	return tosVerdict{allowed: true}, nil
}

// pageText returns the visible text of an HTML document, or the raw body
// for other content types.
func pageText(resp *fetch.Response) string {
	if !strings.Contains(strings.ToLower(resp.ContentType), "html") {
		return string(resp.Body)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return string(resp.Body)
	}
	doc.Find("script, style, noscript, template").Remove()
	return doc.Text()
}

func (g *Gate) record(ctx context.Context, d model.ComplianceDecision) {
	logger := g.logger.With("url", d.URL, "reason", d.Reason.String())
	if d.Allowed {
		logger.Debug("compliance check passed")
	} else {
		logger.Info("compliance check denied", "detail", d.Detail)
	}
	if g.recorder == nil {
		return
	}
	// Recording must outlive a cancelled crawl so denials are still audited.
	if err := g.recorder.RecordDecision(context.WithoutCancel(ctx), d); err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Warn("failed to record compliance decision", "url", d.URL, "error", err)
	}
}
