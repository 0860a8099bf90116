// Package crawler provides the core web crawling functionality.
// It implements a concurrent, per-host frontier crawler with bounded
// parallelism, robots.txt compliance, per-host exclusivity and escalation
// of host-level failures into a standing block.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/littlesearch/littlesearch/internal/config"
	"github.com/littlesearch/littlesearch/internal/parser"
)

// Crawler drives fetch tasks over the frontier until it is exhausted or
// the page cap is reached
type Crawler struct {
	config      *config.CrawlConfig
	fetcher     Fetcher
	extractor   Extractor
	robots      RobotsChecker
	rateLimiter *RateLimiter
	gate        *PolitenessGate
	logger      *slog.Logger
	httpClient  *HTTPClient // nil when a custom fetcher was supplied

	seedHost string
	seedSite string
	include  []*regexp.Regexp
	exclude  []*regexp.Regexp

	state     *crawlState
	startTime time.Time
}

// Option configures a Crawler
type Option func(*Crawler)

// WithFetcher replaces the HTTP transport
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) {
		c.fetcher = f
	}
}

// WithExtractor replaces the HTML extractor
func WithExtractor(e Extractor) Option {
	return func(c *Crawler) {
		c.extractor = e
	}
}

// WithRobots replaces the robots.txt evaluator
func WithRobots(r RobotsChecker) Option {
	return func(c *Crawler) {
		c.robots = r
	}
}

// WithLogger sets the logger; slog.Default() is used otherwise
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = l
	}
}

// NewCrawler creates a crawler for cfg. Unless overridden by options it
// fetches over HTTP, extracts with the goquery-based parser and, when
// RespectRobots is set, evaluates robots.txt through the same transport.
func NewCrawler(cfg *config.CrawlConfig, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	start, err := NormalizeURL(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}

	c := &Crawler{
		config:      cfg,
		rateLimiter: NewRateLimiter(0),
		seedHost:    HostOf(start),
		seedSite:    SiteOf(start),
		state:       newCrawlState(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.fetcher == nil {
		c.httpClient = NewHTTPClient(cfg.UserAgent, cfg.RequestTimeout, cfg.MaxBodyBytes)
		c.fetcher = c.httpClient
	}
	if c.extractor == nil {
		c.extractor = parser.NewExtractor()
	}
	if c.robots == nil && cfg.RespectRobots {
		c.robots = NewRobotsParser(c.fetcher, cfg.RobotsAgent)
	}
	if !cfg.RespectRobots {
		c.robots = nil
	}

	for _, p := range cfg.IncludePatterns {
		c.include = append(c.include, regexp.MustCompile(p))
	}
	for _, p := range cfg.ExcludePatterns {
		c.exclude = append(c.exclude, regexp.MustCompile(p))
	}

	c.gate = &PolitenessGate{robots: c.robots, state: c.state, logger: c.logger}

	if err := c.state.seed(start); err != nil {
		return nil, fmt.Errorf("failed to seed frontier: %w", err)
	}

	return c, nil
}

// Run crawls until the frontier is exhausted, MaxPages tasks have been
// launched, or ctx is cancelled. It returns only after every launched task
// has finished. The error is non-nil only when ctx ended the run early;
// the pages gathered so far are returned either way.
func (c *Crawler) Run(ctx context.Context) (*PageStore, error) {
	c.startTime = time.Now()
	c.logger.Info("Starting crawler", "start_url", c.config.StartURL, "max_pages", c.config.MaxPages, "concurrency", c.config.Concurrency)

	reporterCtx, stopReporter := context.WithCancel(ctx)
	var reporterWG sync.WaitGroup
	if c.config.StatsInterval > 0 {
		reporterWG.Add(1)
		go c.statsReporter(reporterCtx, &reporterWG)
	}

	done := make(chan taskResult, c.config.Concurrency)
	running := 0

	for {
		for running < c.config.Concurrency && ctx.Err() == nil {
			host, url, ok := c.state.dispatch(c.config.MaxPages)
			if !ok {
				break
			}
			running++
			c.logger.Debug("Dispatching fetch task", "host", host, "url", url, "running", running)
			go c.runTask(ctx, host, url, done)
		}

		if running == 0 {
			break
		}

		res := <-done
		c.state.release(res.host)
		running--
	}

	stopReporter()
	reporterWG.Wait()

	stats := c.Stats()
	c.logger.Info("Crawling completed", "pages", stats.PagesStored, "visited", stats.Visited, "blocked_hosts", stats.BlockedHosts, "errors", stats.ErrorCount, "duration", stats.Duration)

	if err := ctx.Err(); err != nil {
		return c.state.pages, fmt.Errorf("crawl interrupted: %w", err)
	}
	return c.state.pages, nil
}

// Close releases idle connections held by the default transport
func (c *Crawler) Close() error {
	if c.httpClient != nil {
		c.httpClient.Close()
	}
	return nil
}

// Stats returns current crawling statistics
func (c *Crawler) Stats() CrawlStats {
	stats := c.state.snapshot(CrawlStats{StartTime: c.startTime})
	if !c.startTime.IsZero() {
		stats.Duration = time.Since(c.startTime)
	}
	return stats
}

// Errors returns a copy of the per-URL error log
func (c *Crawler) Errors() []CrawlError {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return append([]CrawlError(nil), c.state.errors...)
}

// BlockedHosts returns the hosts blocked during the run
func (c *Crawler) BlockedHosts() []string {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.frontier.BlockedHosts()
}

// Visited returns the visited URLs
func (c *Crawler) Visited() []string {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.frontier.Visited()
}

// statsReporter periodically reports crawling statistics
func (c *Crawler) statsReporter(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(c.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.Stats()
			c.logger.Info("Crawling stats", "stored", stats.PagesStored, "visited", stats.Visited, "pending", stats.Pending, "in_flight", stats.InFlight, "blocked_hosts", stats.BlockedHosts, "errors", stats.ErrorCount, "duration", stats.Duration)
		}
	}
}

// inScope filters normalized links down to the ones the crawl should follow
func (c *Crawler) inScope(links []string) []string {
	follow := make([]string, 0, len(links))
	for _, link := range links {
		if c.shouldCrawlURL(link) {
			follow = append(follow, link)
		}
	}
	return follow
}

// sameScope reports whether urlStr is on the seed host, or on the seed's
// registrable domain when subdomains are included
func (c *Crawler) sameScope(urlStr string) bool {
	if HostOf(urlStr) == c.seedHost {
		return true
	}
	return c.config.IncludeSubdomains && c.seedSite != "" && SiteOf(urlStr) == c.seedSite
}

// shouldCrawlURL applies the host restriction and include/exclude patterns
func (c *Crawler) shouldCrawlURL(urlStr string) bool {
	if !c.config.FollowExternalHosts && !c.sameScope(urlStr) {
		return false
	}

	if len(c.include) > 0 {
		matched := false
		for _, re := range c.include {
			if re.MatchString(urlStr) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, re := range c.exclude {
		if re.MatchString(urlStr) {
			return false
		}
	}

	return true
}
