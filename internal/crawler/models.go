package crawler

import "time"

// Page is the record kept for every successfully fetched HTML page.
// It is created once and never modified afterwards.
type Page struct {
	URL        string    // Normalized URL the page was requested under
	HTML       string    // Decoded response body
	Title      string    // HTML <title> tag content
	Text       string    // Plain-text rendering of the document
	Links      []string  // Normalized outbound links, sorted and de-duplicated
	StatusCode int       // HTTP status code
	FetchedAt  time.Time // Timestamp when fetched (UTC)

	// Anchors maps an outbound link to the first non-empty anchor text
	// pointing at it. Links without anchor text have no entry.
	Anchors map[string]string

	TTFB         time.Duration // Time to first byte
	DownloadTime time.Duration // Request start to end of body
}

// Error types recorded in CrawlError.ErrorType
const (
	ErrorTypeRobotsDisallowed = "robots_disallowed"
	ErrorTypeHostBlocked      = "host_blocked"
	ErrorTypeConnection       = "connection_failed"
	ErrorTypeForbidden        = "http_forbidden"
	ErrorTypeHTTP             = "http_error"
	ErrorTypeTimeout          = "timeout"
	ErrorTypeNetwork          = "network_error"
	ErrorTypeParse            = "parse_error"
	ErrorTypeInternal         = "internal_error"
)

// CrawlError represents crawling errors
type CrawlError struct {
	URL          string    // URL where error occurred
	ErrorType    string    // One of the ErrorType constants
	ErrorMessage string    // Detailed error message
	OccurredAt   time.Time // Error occurrence timestamp (UTC)
}

// CrawlStats represents crawling statistics
type CrawlStats struct {
	PagesStored  int
	Visited      int
	Pending      int
	Launched     int
	InFlight     int
	BlockedHosts int
	ErrorCount   int
	StartTime    time.Time
	Duration     time.Duration
}
