// Package config provides configuration structures and utilities for pagesnap.
// It defines crawl timing, compliance policy overrides, rate limits and
// report preferences, plus the YAML policy file loader.
package config
