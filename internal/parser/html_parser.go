// Package parser provides HTML parsing and content extraction capabilities.
// It extracts the title, a plain-text rendering, and outbound links from HTML documents.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser extracts title, text and links from HTML
type HTMLParser struct {
	baseURL        *url.URL
	allowedSchemes []string
}

// ParseResult contains the parsed HTML data
type ParseResult struct {
	Title string
	Text  string
	Links []Link
}

// Link represents a parsed link
type Link struct {
	URL        string // Absolute, unnormalized
	AnchorText string // Collapsed text content of the anchor
}

// NewHTMLParserWithSchemes creates a new HTML parser with custom allowed schemes
func NewHTMLParserWithSchemes(baseURL string, allowedSchemes []string) (*HTMLParser, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if len(allowedSchemes) == 0 {
		allowedSchemes = []string{"https://", "http://"}
	}

	return &HTMLParser{
		baseURL:        parsedURL,
		allowedSchemes: allowedSchemes,
	}, nil
}

// Parse parses HTML content and extracts the title, the visible text and
// all followable links. Relative links are resolved against the base URL.
func (p *HTMLParser) Parse(htmlContent []byte) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &ParseResult{
		Title: collapseSpace(doc.Find("title").First().Text()),
		Links: []Link{},
	}

	var words []string
	for _, n := range doc.Nodes {
		words = collectText(n, words)
	}
	result.Text = strings.Join(words, " ")

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if link, ok := p.parseAnchor(s); ok {
			result.Links = append(result.Links, link)
		}
	})

	return result, nil
}

// parseAnchor extracts a link from an anchor element
func (p *HTMLParser) parseAnchor(s *goquery.Selection) (Link, bool) {
	href := strings.TrimSpace(s.AttrOr("href", ""))

	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return Link{}, false
	}

	// Early scheme validation before URL resolution
	if !p.isAllowedScheme(href) {
		return Link{}, false
	}

	absURL, err := p.resolveURL(href)
	if err != nil {
		return Link{}, false
	}

	if !p.isAllowedScheme(absURL) {
		return Link{}, false
	}

	return Link{
		URL:        absURL,
		AnchorText: collapseSpace(s.Text()),
	}, true
}

// resolveURL converts relative URLs to absolute URLs
func (p *HTMLParser) resolveURL(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}

	resolved := p.baseURL.ResolveReference(u)
	return resolved.String(), nil
}

// isAllowedScheme checks if the URL has an allowed scheme
func (p *HTMLParser) isAllowedScheme(href string) bool {
	if strings.Contains(href, "://") {
		for _, scheme := range p.allowedSchemes {
			if strings.HasPrefix(strings.ToLower(href), scheme) {
				return true
			}
		}
		return false
	}

	// tel:, mailto:, data: and friends
	if strings.Contains(href, ":") && !strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "?") && !strings.HasPrefix(href, "#") {
		for _, scheme := range p.allowedSchemes {
			if strings.HasPrefix(strings.ToLower(href), strings.TrimSuffix(scheme, "://")+":") {
				return true
			}
		}
		return false
	}

	// Relative URLs inherit the base URL's scheme
	return true
}

// collectText appends the whitespace-separated words of every text node
// under n, skipping elements whose content is never rendered.
func collectText(n *html.Node, words []string) []string {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return words
		}
	}

	if n.Type == html.TextNode {
		return append(words, strings.Fields(n.Data)...)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		words = collectText(c, words)
	}
	return words
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Extractor adapts HTMLParser to a stateless extraction capability
type Extractor struct {
	AllowedSchemes []string
}

// NewExtractor returns an Extractor that follows http and https links
func NewExtractor() *Extractor {
	return &Extractor{AllowedSchemes: []string{"https://", "http://"}}
}

// Extract parses body as HTML relative to baseURL
func (e *Extractor) Extract(body []byte, baseURL string) (*ParseResult, error) {
	p, err := NewHTMLParserWithSchemes(baseURL, e.AllowedSchemes)
	if err != nil {
		return nil, err
	}
	return p.Parse(body)
}
