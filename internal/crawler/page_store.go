package crawler

import "sort"

// PageStore holds one Page per successfully fetched HTML URL. During a run
// it is guarded by the crawl state lock; the store returned by Run is no
// longer shared and may be read freely.
type PageStore struct {
	pages map[string]*Page
}

// NewPageStore creates an empty page store
func NewPageStore() *PageStore {
	return &PageStore{pages: make(map[string]*Page)}
}

// Add stores page unless its URL is already present
func (s *PageStore) Add(page *Page) bool {
	if _, exists := s.pages[page.URL]; exists {
		return false
	}
	s.pages[page.URL] = page
	return true
}

// Get returns the page stored under url
func (s *PageStore) Get(url string) (*Page, bool) {
	p, ok := s.pages[url]
	return p, ok
}

// Len returns the number of stored pages
func (s *PageStore) Len() int {
	return len(s.pages)
}

// URLs returns the stored URLs in sorted order
func (s *PageStore) URLs() []string {
	urls := make([]string, 0, len(s.pages))
	for u := range s.pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// All returns the stored pages ordered by URL
func (s *PageStore) All() []*Page {
	pages := make([]*Page, 0, len(s.pages))
	for _, u := range s.URLs() {
		pages = append(pages, s.pages[u])
	}
	return pages
}
