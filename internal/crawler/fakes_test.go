package crawler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/littlesearch/littlesearch/internal/config"
	"github.com/littlesearch/littlesearch/internal/parser"
)

func init() {
	// Disable slog output during testing
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeResponse describes what fakeFetcher returns for one URL
type fakeResponse struct {
	status      int
	contentType string
	body        string
	err         error
	delay       time.Duration
}

func htmlPage(body string) fakeResponse {
	return fakeResponse{status: 200, contentType: "text/html; charset=utf-8", body: body}
}

// fakeFetcher serves canned responses keyed by URL and records how many
// requests were in flight per host and in total
type fakeFetcher struct {
	mu         sync.Mutex
	responses  map[string]fakeResponse
	delay      time.Duration
	requests   []string
	active     map[string]int
	total      int
	maxTotal   int
	violations []string
}

func newFakeFetcher(responses map[string]fakeResponse) *fakeFetcher {
	return &fakeFetcher{
		responses: responses,
		active:    make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*HTTPResponse, error) {
	host := HostOf(url)

	f.mu.Lock()
	f.requests = append(f.requests, url)
	f.active[host]++
	if f.active[host] > 1 {
		f.violations = append(f.violations, host)
	}
	f.total++
	if f.total > f.maxTotal {
		f.maxTotal = f.total
	}
	resp, ok := f.responses[url]
	delay := f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[host]--
		f.total--
		f.mu.Unlock()
	}()

	if resp.delay > 0 {
		delay = resp.delay
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &TransportError{URL: url, Kind: ErrOther, Err: ctx.Err()}
		}
	}

	if !ok {
		return &HTTPResponse{StatusCode: 404, ContentType: "text/plain", FinalURL: url}, nil
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &HTTPResponse{
		StatusCode:  resp.status,
		ContentType: resp.contentType,
		Body:        []byte(resp.body),
		FinalURL:    url,
	}, nil
}

func (f *fakeFetcher) requestCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// fakeRobots disallows every URL containing one of the listed substrings
type fakeRobots struct {
	disallow []string
	delays   map[string]time.Duration
}

func (r *fakeRobots) IsAllowed(ctx context.Context, url string) (bool, error) {
	for _, d := range r.disallow {
		if strings.Contains(url, d) {
			return false, nil
		}
	}
	return true, nil
}

func (r *fakeRobots) CrawlDelay(host string) time.Duration {
	return r.delays[host]
}

// lateDelayRobots reports no Crawl-delay on its first lookup and delay
// afterwards, as when the first robots.txt fetch failed
type lateDelayRobots struct {
	calls atomic.Int32
	delay time.Duration
}

func (r *lateDelayRobots) IsAllowed(ctx context.Context, url string) (bool, error) {
	return true, nil
}

func (r *lateDelayRobots) CrawlDelay(host string) time.Duration {
	if r.calls.Add(1) == 1 {
		return 0
	}
	return r.delay
}

// panickyExtractor panics for one base URL and delegates otherwise
type panickyExtractor struct {
	panicOn string
	next    Extractor
}

func (e *panickyExtractor) Extract(body []byte, baseURL string) (*parser.ParseResult, error) {
	if baseURL == e.panicOn {
		panic("extractor exploded")
	}
	return e.next.Extract(body, baseURL)
}

func testConfig(start string) *config.CrawlConfig {
	cfg := config.DefaultConfig()
	cfg.StartURL = start
	cfg.RequestDelay = 0
	cfg.RequestTimeout = 5 * time.Second
	cfg.RespectRobots = false
	cfg.StatsInterval = 0
	return cfg
}

func hasError(errs []CrawlError, url, errorType string) bool {
	for _, e := range errs {
		if e.URL == url && e.ErrorType == errorType {
			return true
		}
	}
	return false
}
