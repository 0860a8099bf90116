package crawler

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/littlesearch/littlesearch/internal/parser"
)

// taskResult is sent to the scheduler when a fetch task finishes
type taskResult struct {
	host string
	url  string
}

// runTask fetches one URL and applies the outcome to the shared state.
// It never panics and always reports back, so the scheduler can free the
// host and the concurrency slot.
func (c *Crawler) runTask(ctx context.Context, host, url string, done chan<- taskResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Fetch task panicked", "url", url, "panic", r)
			c.state.recordError(url, ErrorTypeInternal, fmt.Sprint(r))
			c.state.markVisited(url)
		}
		done <- taskResult{host: host, url: url}
	}()

	c.fetch(ctx, host, url)
}

func (c *Crawler) fetch(ctx context.Context, host, url string) {
	if ok, reason := c.gate.IsFetchable(ctx, url); !ok {
		c.logger.Info("URL not fetchable", "url", url, "reason", reason)
		c.state.recordError(url, reason, "skipped by politeness gate")
		c.state.markVisited(url)
		return
	}

	if c.robots != nil && c.config.HonorCrawlDelay && !c.rateLimiter.HasHostDelay(host) {
		if delay := c.robots.CrawlDelay(host); delay > 0 {
			c.logger.Debug("Applying robots.txt crawl delay", "host", host, "delay", delay)
			c.rateLimiter.SetHostDelay(host, delay)
		}
	}
	if err := c.rateLimiter.Wait(ctx, host); err != nil {
		c.state.recordError(url, ErrorTypeNetwork, err.Error())
		c.state.markVisited(url)
		return
	}

	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.handleFetchError(host, url, err)
		return
	}
	c.logger.Debug("Fetched URL", "url", url, "status", resp.StatusCode,
		"dns", resp.Metrics.DNSLookup, "connect", resp.Metrics.TCPConnect, "tls", resp.Metrics.TLSHandshake,
		"ttfb", resp.Metrics.TTFB, "download", resp.Metrics.DownloadTime)

	switch {
	case resp.StatusCode == http.StatusForbidden:
		dropped := c.state.blockHost(host)
		c.state.recordError(url, ErrorTypeForbidden, fmt.Sprintf("HTTP %d", resp.StatusCode))
		c.state.markVisited(url)
		c.logger.Warn("Host blocked after 403", "host", host, "url", url, "dropped", dropped)
		return

	case resp.StatusCode >= 400:
		c.state.recordError(url, ErrorTypeHTTP, fmt.Sprintf("HTTP %d", resp.StatusCode))
		c.state.markVisited(url)
		c.logger.Info("HTTP error status", "url", url, "status", resp.StatusCode)
		return

	case resp.IsRedirect():
		c.followRedirect(url, resp.Location)
		return

	case !resp.IsHTML():
		c.state.markVisited(url)
		c.logger.Debug("Skipping non-HTML content", "url", url, "content_type", resp.ContentType)
		return
	}

	base := resp.FinalURL
	if base == "" {
		base = url
	}
	parsed, err := c.extractor.Extract(resp.Body, base)
	if err != nil {
		c.state.recordError(url, ErrorTypeParse, err.Error())
		c.state.markVisited(url)
		c.logger.Warn("Failed to extract page", "url", url, "error", err)
		return
	}

	links, anchors := collectLinks(parsed.Links)
	page := &Page{
		URL:          url,
		HTML:         string(resp.Body),
		Title:        parsed.Title,
		Text:         parsed.Text,
		Links:        links,
		Anchors:      anchors,
		StatusCode:   resp.StatusCode,
		FetchedAt:    time.Now().UTC(),
		TTFB:         resp.Metrics.TTFB,
		DownloadTime: resp.Metrics.DownloadTime,
	}

	added := c.state.storePage(page, c.inScope(links))
	c.logger.Info("Stored page", "url", url, "status", resp.StatusCode, "links", len(links), "new", added,
		"ttfb", resp.Metrics.TTFB, "download", resp.Metrics.DownloadTime)

	c.sleep(ctx, c.config.RequestDelay)
}

// followRedirect retires url and hands an unfollowed redirect target to the
// frontier, where it is scheduled like any discovered link
func (c *Crawler) followRedirect(url, location string) {
	target, err := NormalizeURL(location)
	if err != nil {
		c.state.markVisited(url)
		c.logger.Info("Ignoring redirect", "url", url, "location", location)
		return
	}

	added := c.state.retire(url, c.inScope([]string{target}))
	c.logger.Info("Redirected to another host", "url", url, "location", target, "new", added)
}

// handleFetchError applies the escalation policy to a transport failure.
// Connection failures block the whole host; anything else only abandons url.
func (c *Crawler) handleFetchError(host, url string, err error) {
	switch {
	case IsConnectionError(err):
		dropped := c.state.blockHost(host)
		c.state.recordError(url, ErrorTypeConnection, err.Error())
		c.logger.Warn("Host blocked after connection failure", "host", host, "url", url, "dropped", dropped, "error", err)
	case IsTimeoutError(err):
		c.state.recordError(url, ErrorTypeTimeout, err.Error())
		c.state.markVisited(url)
		c.logger.Warn("Request timed out", "url", url, "error", err)
	default:
		c.state.recordError(url, ErrorTypeNetwork, err.Error())
		c.state.markVisited(url)
		c.logger.Warn("Request failed", "url", url, "error", err)
	}
}

// sleep waits for d or until ctx is done
func (c *Crawler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// collectLinks normalizes, de-duplicates and sorts extracted links and
// keeps the first non-empty anchor text per target. Links that fail
// normalization are dropped.
func collectLinks(raw []parser.Link) ([]string, map[string]string) {
	seen := make(map[string]struct{}, len(raw))
	links := make([]string, 0, len(raw))
	anchors := make(map[string]string)
	for _, l := range raw {
		u, err := NormalizeURL(l.URL)
		if err != nil {
			continue
		}
		if _, ok := anchors[u]; !ok && l.AnchorText != "" {
			anchors[u] = l.AnchorText
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		links = append(links, u)
	}
	sort.Strings(links)
	return links, anchors
}
