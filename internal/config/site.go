package config

import (
	"strings"
	"time"
)

// SiteConfig holds per-site crawl overrides.
type SiteConfig struct {
	// Headers are extra HTTP headers the browser sends to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the crawl depth. Nil keeps the global value.
	Depth *int `yaml:"depth,omitempty"`

	// MaxScrolls overrides the infinite scroll limit. Zero keeps the global value.
	MaxScrolls int `yaml:"maxScrolls,omitempty"`
}

// RateLimitConfig overrides the per-domain quota.
type RateLimitConfig struct {
	Requests int           `yaml:"requests,omitempty"`
	Window   time.Duration `yaml:"window,omitempty"`
	Strategy string        `yaml:"strategy,omitempty"`
}

// PolicyConfig overrides the compliance rules. Empty lists keep the built-in ones.
type PolicyConfig struct {
	BlockedDomains []string        `yaml:"blockedDomains,omitempty"`
	BlockedPaths   []string        `yaml:"blockedPaths,omitempty"`
	TOSPaths       []string        `yaml:"tosPaths,omitempty"`
	TOSKeywords    []string        `yaml:"tosKeywords,omitempty"`
	RobotsTTL      time.Duration   `yaml:"robotsTTL,omitempty"`
	TOSTTL         time.Duration   `yaml:"tosTTL,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// File represents the structure of the .pagesnap.yaml configuration file.
type File struct {
	// Policy customizes the compliance gate.
	Policy PolicyConfig `yaml:"policy,omitempty"`

	// Sites maps host names (e.g. "example.com") to overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host, merged over the defaults.
// Hosts are compared case-insensitively and a leading "www." is ignored.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	site, ok := cf.lookup(host)
	if !ok {
		return result
	}
	if site.Depth != nil {
		result.Depth = site.Depth
	}
	if site.MaxScrolls != 0 {
		result.MaxScrolls = site.MaxScrolls
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		for k, v := range site.Headers {
			result.Headers[k] = v
		}
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for name, site := range cf.Sites {
		if strings.TrimPrefix(strings.ToLower(name), "www.") == host {
			return site, true
		}
	}
	return SiteConfig{}, false
}
