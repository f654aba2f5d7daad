package policy

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// Entry is the raw, persistable form of a fetched robots policy.
type Entry struct {
	// Origin is "scheme://host[:port]" in lower case.
	Origin string

	// StatusCode is the HTTP status of the robots.txt response.
	StatusCode int

	// Body is the robots.txt content. Empty for non-2xx responses.
	Body []byte

	// FetchedAt is when the document was retrieved.
	FetchedAt time.Time
}

// Expired reports whether the entry is stale at now for the given TTL.
// An entry fetched at t is fresh up to and including t+ttl.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.After(e.FetchedAt.Add(ttl))
}

// Document is a parsed robots policy.
type Document struct {
	Entry
	data *robotstxt.RobotsData
}

// Parse builds a Document from an entry. Entries with a non-2xx status
// produce a document that allows everything.
func Parse(e Entry) (*Document, error) {
	doc := &Document{Entry: e}
	if !successful(e.StatusCode) {
		return doc, nil
	}
	data, err := robotstxt.FromBytes(e.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt of %s: %w", e.Origin, err)
	}
	doc.data = data
	return doc, nil
}

// AllowAll reports whether the document places no restrictions.
func (d *Document) AllowAll() bool {
	return d.data == nil
}

// Allowed reports whether agent may fetch path. path is the URL path plus
// query, e.g. "/news?page=2".
func (d *Document) Allowed(path, agent string) bool {
	if d.data == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	return d.data.TestAgent(path, agent)
}

// CrawlDelay returns the Crawl-delay declared for agent, or 0.
func (d *Document) CrawlDelay(agent string) time.Duration {
	if d.data == nil {
		return 0
	}
	group := d.data.FindGroup(agent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// defaultPorts maps schemes to the port implied when none is given.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Origin returns the lower-cased "scheme://host[:port]" of u. The scheme's
// default port is dropped, so "https://example.com:443" and
// "https://example.com" share one key.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || port == defaultPorts[scheme] {
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		return scheme + "://" + host
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

// RobotsURL returns the robots.txt location of an origin.
func RobotsURL(origin string) string {
	return strings.TrimSuffix(origin, "/") + "/robots.txt"
}

func successful(status int) bool {
	return status >= 200 && status < 300
}
