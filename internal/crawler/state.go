package crawler

import (
	"sync"
	"time"
)

// crawlState is the single lock domain for everything fetch tasks share:
// the frontier, the page store, the in-flight host set and the error log.
type crawlState struct {
	mu       sync.Mutex
	frontier *Frontier
	pages    *PageStore
	inFlight map[string]struct{}
	launched int
	errors   []CrawlError
}

func newCrawlState() *crawlState {
	return &crawlState{
		frontier: NewFrontier(),
		pages:    NewPageStore(),
		inFlight: make(map[string]struct{}),
	}
}

func (s *crawlState) seed(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontier.Seed(url)
}

// dispatch picks the next URL on an idle host and marks the host in flight.
// limit caps the number of launched tasks; 0 means unlimited.
func (s *crawlState) dispatch(limit int) (host, url string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > 0 && s.launched >= limit {
		return "", "", false
	}

	host, url, ok = s.frontier.SelectNext(s.inFlight)
	if !ok {
		return "", "", false
	}
	s.inFlight[host] = struct{}{}
	s.launched++
	return host, url, true
}

// release frees host for the next dispatch
func (s *crawlState) release(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, host)
}

func (s *crawlState) isBlocked(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontier.IsBlocked(host)
}

func (s *crawlState) markVisited(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frontier.MarkVisited(url)
}

func (s *crawlState) blockHost(host string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontier.BlockHost(host)
}

// storePage records page, enqueues the in-scope links and marks the page
// visited in one critical section. It returns the number of new pending URLs.
func (s *crawlState) storePage(page *Page, follow []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pages.Add(page)
	added := s.frontier.EnqueueDiscovered(follow)
	s.frontier.MarkVisited(page.URL)
	return added
}

// retire marks url visited and enqueues follow in one critical section.
// It returns the number of new pending URLs.
func (s *crawlState) retire(url string, follow []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.frontier.EnqueueDiscovered(follow)
	s.frontier.MarkVisited(url)
	return added
}

func (s *crawlState) recordError(url, errorType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, CrawlError{
		URL:          url,
		ErrorType:    errorType,
		ErrorMessage: message,
		OccurredAt:   time.Now().UTC(),
	})
}

func (s *crawlState) snapshot(stats CrawlStats) CrawlStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats.PagesStored = s.pages.Len()
	stats.Visited = s.frontier.VisitedCount()
	stats.Pending = s.frontier.PendingCount()
	stats.Launched = s.launched
	stats.InFlight = len(s.inFlight)
	stats.BlockedHosts = len(s.frontier.blocked)
	stats.ErrorCount = len(s.errors)
	return stats
}
