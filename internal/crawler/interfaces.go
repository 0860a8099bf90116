package crawler

import (
	"context"
	"time"

	"github.com/littlesearch/littlesearch/internal/parser"
)

// Fetcher retrieves a single URL. Connection-level failures must be
// reported as a *TransportError with Kind ErrConnection.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*HTTPResponse, error)
}

// Extractor turns an HTML body into a title, text and absolute links
type Extractor interface {
	Extract(body []byte, baseURL string) (*parser.ParseResult, error)
}

// RobotsChecker evaluates robots.txt rules
type RobotsChecker interface {
	IsAllowed(ctx context.Context, url string) (bool, error)
	CrawlDelay(host string) time.Duration
}
