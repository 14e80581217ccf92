// Package config loads and validates the harness configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the configuration leaves fields unset.
const (
	DefaultMaxConcurrent  = 16
	DefaultRequestTimeout = "10s"
	DefaultCacheTTL       = "24h"
)

// Config is the application configuration.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Links      LinksConfig      `yaml:"links"`
	Codeblocks CodeblocksConfig `yaml:"codeblocks"`
	Templates  TemplatesConfig  `yaml:"templates"`
}

// SiteConfig describes the generated site under verification.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
	Dir     string `yaml:"dir"` // rendered HTML output directory
}

// LinksConfig configures the link verification build test.
type LinksConfig struct {
	Catalog            string      `yaml:"catalog"` // path to the link catalog YAML
	MaxConcurrent      int         `yaml:"max_concurrent"`
	RequestTimeout     string      `yaml:"request_timeout"`
	TolerateTLSErrors  bool        `yaml:"tolerate_tls_errors"`
	TolerateHTTPErrors bool        `yaml:"tolerate_http_errors"`
	ExternalOnly       bool        `yaml:"external_only"` // skip int-prefixed catalog names
	Cache              CacheConfig `yaml:"cache"`
	NATS               NATSConfig  `yaml:"nats"`
}

// CacheConfig configures the cross-run link result cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	TTL     string `yaml:"ttl"`
}

// NATSConfig configures broken link event publishing. An empty URL disables
// publishing.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// CodeblocksConfig configures the code sample build test.
type CodeblocksConfig struct {
	Dir string `yaml:"dir"` // tutorial Markdown source directory
}

// TemplatesConfig configures the unresolved template variable build test.
type TemplatesConfig struct {
	Dir     string         `yaml:"dir"`     // template directory
	Pages   []string       `yaml:"pages"`   // template files to verify
	Context map[string]any `yaml:"context"` // the render context supplied at build time
}

// Load reads configuration from path. A .env or .env.local file next to the
// process is loaded first (never overriding existing environment variables),
// and environment references in the YAML are expanded.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if err := godotenv.Load(name); err == nil {
			slog.Debug("Loaded environment variables", "file", name)
			return
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Links.MaxConcurrent == 0 {
		c.Links.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Links.RequestTimeout == "" {
		c.Links.RequestTimeout = DefaultRequestTimeout
	}
	if c.Links.Cache.TTL == "" {
		c.Links.Cache.TTL = DefaultCacheTTL
	}
}

// Validate fails fast on malformed configuration, before any check runs.
func (c *Config) Validate() error {
	if c.Links.Catalog == "" {
		return fmt.Errorf("config: links.catalog is required")
	}
	if c.Links.MaxConcurrent <= 0 {
		return fmt.Errorf("config: links.max_concurrent must be positive, got %d", c.Links.MaxConcurrent)
	}
	if _, err := c.Links.Timeout(); err != nil {
		return err
	}
	if c.Links.Cache.Enabled {
		if c.Links.Cache.Path == "" {
			return fmt.Errorf("config: links.cache.path is required when the cache is enabled")
		}
		if _, err := c.Links.Cache.ParsedTTL(); err != nil {
			return err
		}
	}
	return nil
}

// Timeout returns the parsed per-request timeout.
func (l LinksConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(l.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: links.request_timeout %q: %w", l.RequestTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: links.request_timeout must be positive, got %s", d)
	}
	return d, nil
}

// ParsedTTL returns the parsed cache validity window.
func (cc CacheConfig) ParsedTTL() (time.Duration, error) {
	d, err := time.ParseDuration(cc.TTL)
	if err != nil {
		return 0, fmt.Errorf("config: links.cache.ttl %q: %w", cc.TTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: links.cache.ttl must be positive, got %s", d)
	}
	return d, nil
}
