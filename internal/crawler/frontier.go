package crawler

import "sort"

// Frontier tracks pending URLs per host together with the visited and
// blocked-host sets. It is not safe for concurrent use; the crawler
// accesses it only while holding the crawl state lock.
type Frontier struct {
	pending map[string]map[string]struct{} // host -> pending URLs
	claimed map[string]struct{}            // selected, not yet visited
	visited map[string]struct{}
	blocked map[string]struct{}
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		pending: make(map[string]map[string]struct{}),
		claimed: make(map[string]struct{}),
		visited: make(map[string]struct{}),
		blocked: make(map[string]struct{}),
	}
}

// Seed inserts the start URL into its host's pending set
func (f *Frontier) Seed(rawURL string) error {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	f.add(HostOf(u), u)
	return nil
}

// EnqueueDiscovered normalizes urls and adds the ones that are neither
// visited, claimed by a running task, nor on a blocked host. It returns
// the number of URLs that were newly added to the pending map.
func (f *Frontier) EnqueueDiscovered(urls []string) int {
	added := 0
	for _, raw := range urls {
		u, err := NormalizeURL(raw)
		if err != nil {
			continue
		}
		if _, seen := f.visited[u]; seen {
			continue
		}
		if _, taken := f.claimed[u]; taken {
			continue
		}
		host := HostOf(u)
		if _, blocked := f.blocked[host]; blocked {
			continue
		}
		if f.add(host, u) {
			added++
		}
	}
	return added
}

func (f *Frontier) add(host, u string) bool {
	urls, ok := f.pending[host]
	if !ok {
		urls = make(map[string]struct{})
		f.pending[host] = urls
	}
	if _, dup := urls[u]; dup {
		return false
	}
	urls[u] = struct{}{}
	return true
}

// SelectNext removes and returns a pending URL whose host is not in exclude.
// The URL stays claimed until MarkVisited, so rediscovery cannot queue it
// again. Host and URL order are arbitrary.
func (f *Frontier) SelectNext(exclude map[string]struct{}) (host, url string, ok bool) {
	for h, urls := range f.pending {
		if _, busy := exclude[h]; busy {
			continue
		}
		for u := range urls {
			delete(urls, u)
			f.claimed[u] = struct{}{}
			if len(urls) == 0 {
				delete(f.pending, h)
			}
			return h, u, true
		}
	}
	return "", "", false
}

// MarkVisited records url as dispatched; it is never enqueued again
func (f *Frontier) MarkVisited(url string) {
	delete(f.claimed, url)
	f.visited[url] = struct{}{}
}

// BlockHost suspends host for the rest of the run and drops its pending
// URLs. It returns how many pending URLs were discarded.
func (f *Frontier) BlockHost(host string) int {
	f.blocked[host] = struct{}{}
	dropped := len(f.pending[host])
	delete(f.pending, host)
	return dropped
}

// IsBlocked reports whether host is blocked
func (f *Frontier) IsBlocked(host string) bool {
	_, ok := f.blocked[host]
	return ok
}

// PendingCount returns the number of waiting URLs across all hosts
func (f *Frontier) PendingCount() int {
	n := 0
	for _, urls := range f.pending {
		n += len(urls)
	}
	return n
}

// VisitedCount returns the size of the visited set
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// BlockedHosts returns the blocked hosts in sorted order
func (f *Frontier) BlockedHosts() []string {
	hosts := make([]string, 0, len(f.blocked))
	for h := range f.blocked {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Visited returns the visited URLs in sorted order
func (f *Frontier) Visited() []string {
	urls := make([]string, 0, len(f.visited))
	for u := range f.visited {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}
