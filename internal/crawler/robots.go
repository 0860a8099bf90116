package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsParser fetches, caches and evaluates robots.txt per host
type RobotsParser struct {
	fetcher Fetcher
	agent   string
	rules   map[string]*robotstxt.RobotsData
	mu      sync.RWMutex
	group   singleflight.Group
}

// NewRobotsParser creates a robots.txt evaluator for agent
func NewRobotsParser(fetcher Fetcher, agent string) *RobotsParser {
	if agent == "" {
		agent = "*"
	}
	return &RobotsParser{
		fetcher: fetcher,
		agent:   agent,
		rules:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed checks if a URL is allowed by robots.txt. A robots.txt that
// cannot be fetched allows everything.
func (r *RobotsParser) IsAllowed(ctx context.Context, urlStr string) (bool, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	rules, err := r.getRules(ctx, parsedURL.Scheme, parsedURL.Host)
	if err != nil {
		return true, nil
	}

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}

	return rules.TestAgent(path, r.agent), nil
}

// CrawlDelay returns the Crawl-delay declared for the agent on host, if
// robots.txt for host has already been loaded
func (r *RobotsParser) CrawlDelay(host string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules, ok := r.rules[host]
	if !ok {
		return 0
	}
	if group := rules.FindGroup(r.agent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

// getRules returns cached rules for host, fetching robots.txt on a miss.
// Concurrent misses for the same host share a single request. The crawler
// never has two tasks on one host, so this only matters for callers that
// share a RobotsParser outside of it.
func (r *RobotsParser) getRules(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	rules, exists := r.rules[host]
	r.mu.RUnlock()

	if exists {
		return rules, nil
	}

	v, err, _ := r.group.Do(host, func() (any, error) {
		robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
		resp, err := r.fetcher.Fetch(ctx, robotsURL)
		if err != nil {
			return nil, err
		}

		// 4xx allows everything, 5xx disallows everything. A redirect to
		// another host is not followed and counts as a missing file.
		status := resp.StatusCode
		if resp.IsRedirect() {
			status = http.StatusNotFound
		}
		data, err := robotstxt.FromStatusAndBytes(status, resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
		}

		r.mu.Lock()
		r.rules[host] = data
		r.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*robotstxt.RobotsData), nil
}
