// Package config provides configuration management for the crawler.
// It defines configuration structures and default values for crawling parameters.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// LogConfig controls the process-wide logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json or text
	File   string `mapstructure:"file" yaml:"file"`     // Optional log file, appended to
}

// CrawlConfig holds crawler configuration
type CrawlConfig struct {
	// Basic crawling parameters
	StartURL       string        `mapstructure:"start_url" yaml:"start_url"`             // Seed URL
	MaxPages       int           `mapstructure:"max_pages" yaml:"max_pages"`             // Stop after N dispatched fetches (0=unlimited)
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`         // Maximum simultaneous fetch tasks
	RequestDelay   time.Duration `mapstructure:"request_delay" yaml:"request_delay"`     // Pause after each stored page
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"` // HTTP request timeout
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`           // HTTP User-Agent header
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`   // Response bodies are truncated at this size

	// Politeness
	RespectRobots   bool   `mapstructure:"respect_robots" yaml:"respect_robots"`       // Whether to respect robots.txt
	RobotsAgent     string `mapstructure:"robots_agent" yaml:"robots_agent"`           // Agent name matched against robots.txt groups
	HonorCrawlDelay bool   `mapstructure:"honor_crawl_delay" yaml:"honor_crawl_delay"` // Pace hosts by robots.txt Crawl-delay

	// Link scope
	FollowExternalHosts bool     `mapstructure:"follow_external_hosts" yaml:"follow_external_hosts"` // Follow links off the seed host
	IncludeSubdomains   bool     `mapstructure:"include_subdomains" yaml:"include_subdomains"`       // With external hosts off, also follow hosts of the seed's registrable domain
	IncludePatterns     []string `mapstructure:"include_patterns" yaml:"include_patterns"`           // Regex patterns for URLs to include
	ExcludePatterns     []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`           // Regex patterns for URLs to exclude

	// Reporting and output
	StatsInterval time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"` // Progress log interval (0=off)
	DatabasePath  string        `mapstructure:"database_path" yaml:"database_path"`   // SQLite export target (empty=no export)
	ReportPath    string        `mapstructure:"report_path" yaml:"report_path"`       // Markdown report target (empty=no report)

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		MaxPages:            100,
		Concurrency:         8,
		RequestDelay:        1 * time.Second,
		RequestTimeout:      10 * time.Second,
		UserAgent:           "LittleSearch/1.0",
		MaxBodyBytes:        10 << 20,
		RespectRobots:       true,
		RobotsAgent:         "*",
		HonorCrawlDelay:     true,
		FollowExternalHosts: true,
		StatsInterval:       10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks if the configuration is valid. It does not modify c.
func (c *CrawlConfig) Validate() error {
	if c.StartURL == "" {
		return ErrNoStartURL
	}

	u, err := url.Parse(c.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidStartURL
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RequestDelay < 0 {
		return ErrInvalidDelay
	}

	for _, pattern := range append(append([]string{}, c.IncludePatterns...), c.ExcludePatterns...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
		}
	}

	return nil
}
