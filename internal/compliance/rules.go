package compliance

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
)

// Built-in rules. The policy file may replace any of these lists.
var (
	// DefaultBlockedDomains are sites whose terms prohibit automated access.
	// Subdomains are blocked too.
	DefaultBlockedDomains = []string{
		"facebook.com",
		"instagram.com",
		"linkedin.com",
		"twitter.com",
		"youtube.com",
		"tiktok.com",
	}

	// DefaultBlockedPaths are path fragments of authentication, administrative
	// and private areas, matched case-insensitively anywhere in the path.
	DefaultBlockedPaths = []string{
		"/login",
		"/signup",
		"/register",
		"/admin",
		"/dashboard",
		"/account",
		"/profile",
		"/api",
		"/private",
		"/secure",
	}

	// DefaultTOSPaths are the conventional terms-of-service locations probed on an origin.
	DefaultTOSPaths = []string{
		"/terms-of-service",
		"/terms",
		"/tos",
		"/legal",
	}

	// DefaultTOSKeywords mark a terms page as prohibiting automated access.
	DefaultTOSKeywords = []string{
		"scraping",
		"crawling",
		"automated access",
		"data extraction",
		"web scraping",
		"web crawling",
	}
)

// ErrInvalidURL is returned by ParseURL for anything that is not an absolute
// http or https URL with a host.
var ErrInvalidURL = errors.New("invalid URL")

// ParseURL parses rawURL and checks that it can be crawled at all.
func ParseURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// Hostname returns the lower-cased host of u without port or trailing dot.
func Hostname(u *url.URL) string {
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// domainList matches hosts against blocked domains and their subdomains.
type domainList struct {
	exact   map[string]struct{}
	entries []string
}

func newDomainList(domains []string) domainList {
	l := domainList{exact: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
		d = strings.TrimPrefix(d, "*.")
		if d == "" {
			continue
		}
		l.exact[d] = struct{}{}
		l.entries = append(l.entries, d)
	}
	return l
}

// match returns the denylist entry covering host, if any.
func (l domainList) match(host string) (string, bool) {
	if _, ok := l.exact[host]; ok {
		return host, true
	}
	// Most entries are registrable domains, so one lookup settles the common case.
	if site, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		if _, ok := l.exact[site]; ok {
			return site, true
		}
	}
	for _, d := range l.entries {
		if strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}

// pathList matches lower-cased paths against blocked fragments.
type pathList []string

func newPathList(paths []string) pathList {
	l := make(pathList, 0, len(paths))
	for _, p := range paths {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			l = append(l, p)
		}
	}
	return l
}

func (l pathList) match(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, fragment := range l {
		if strings.Contains(lower, fragment) {
			return fragment, true
		}
	}
	return "", false
}

// keywordList finds prohibition keywords in text using Unicode case folding.
type keywordList struct {
	folded []string
	raw    []string
}

func newKeywordList(keywords []string) keywordList {
	caser := cases.Fold()
	l := keywordList{}
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		l.raw = append(l.raw, k)
		l.folded = append(l.folded, caser.String(k))
	}
	return l
}

func (l keywordList) find(text string) (string, bool) {
	folded := cases.Fold().String(text)
	for i, k := range l.folded {
		if strings.Contains(folded, k) {
			return l.raw[i], true
		}
	}
	return "", false
}
