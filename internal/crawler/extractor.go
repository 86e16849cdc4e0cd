package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/wikioutline/internal/model"
)

// Rules are the site-specific link classification rules.
type Rules struct {
	// ContentSelector selects the candidate anchors, in document order.
	ContentSelector string

	// HeadingSelector selects the element whose text titles a page.
	HeadingSelector string

	// NavigationSelector selects the navigation chrome.
	NavigationSelector string

	// ReferenceClass marks footnote anchors, on the anchor or its parent.
	ReferenceClass string

	// CitationMarkers are anchor text substrings that denote citations.
	CitationMarkers []string
}

// DefaultRules returns the rules for the MediaWiki skin of the SBN norms site.
func DefaultRules() Rules {
	return Rules{
		ContentSelector:    "#mw-content-text ul li a, #mw-content-text ol li a",
		HeadingSelector:    "#firstHeading",
		NavigationSelector: "#mw-navigation",
		ReferenceClass:     "reference",
		CitationMarkers:    []string{"par.", "cap."},
	}
}

// Extractor selects the child links of a page.
// It is stateless: the same markup and URL always yield the same list.
type Extractor struct {
	baseURL string
	scheme  string
	host    string
	rules   Rules
}

// NewExtractor creates an Extractor bound to baseURL. Only links whose host
// equals the base host are returned.
func NewExtractor(baseURL string, rules Rules) (*Extractor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidBaseURL, baseURL)
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	defaults := DefaultRules()
	if rules.ContentSelector == "" {
		rules.ContentSelector = defaults.ContentSelector
	}
	if rules.HeadingSelector == "" {
		rules.HeadingSelector = defaults.HeadingSelector
	}

	return &Extractor{
		baseURL: baseURL,
		scheme:  scheme,
		host:    u.Hostname(),
		rules:   rules,
	}, nil
}

// ExtractLinks returns the ordered child links of the page at currentURL.
// A URL that carries a fragment never has children.
func (e *Extractor) ExtractLinks(markup, currentURL string) ([]model.LinkCandidate, error) {
	doc, err := parseDocument(markup)
	if err != nil {
		return nil, err
	}
	return e.links(doc, currentURL), nil
}

// Heading returns the text of the page heading on one line, or "".
func (e *Extractor) Heading(markup string) string {
	doc, err := parseDocument(markup)
	if err != nil {
		return ""
	}
	return e.heading(doc)
}

func (e *Extractor) heading(doc *goquery.Document) string {
	return collapseSpace(doc.Find(e.rules.HeadingSelector).First().Text())
}

func (e *Extractor) links(doc *goquery.Document, currentURL string) []model.LinkCandidate {
	if strings.Contains(currentURL, "#") {
		return nil
	}

	var links []model.LinkCandidate
	doc.Find(e.rules.ContentSelector).Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		if e.isReference(s, text) {
			return
		}
		if strings.Contains(href, "#") && !strings.HasPrefix(href, "#") {
			return
		}
		if e.inNavigation(s) {
			return
		}

		resolved := e.resolve(href, currentURL)
		if !e.sameSite(resolved) {
			return
		}
		links = append(links, model.LinkCandidate{Title: text, URL: resolved})
	})

	return links
}

// isReference reports whether the anchor is a footnote or a citation.
func (e *Extractor) isReference(s *goquery.Selection, text string) bool {
	if e.rules.ReferenceClass != "" {
		if s.HasClass(e.rules.ReferenceClass) || s.Parent().HasClass(e.rules.ReferenceClass) {
			return true
		}
	}
	for _, marker := range e.rules.CitationMarkers {
		if marker != "" && strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func (e *Extractor) inNavigation(s *goquery.Selection) bool {
	if e.rules.NavigationSelector == "" {
		return false
	}
	return s.Closest(e.rules.NavigationSelector).Length() > 0
}

// resolve turns href into an absolute URL.
// Fragment-only hrefs are appended to the current page URL, protocol-relative
// hrefs take the scheme of the base URL, and site-relative hrefs are joined
// to the base URL with exactly one slash.
func (e *Extractor) resolve(href, currentURL string) string {
	if strings.HasPrefix(href, "#") {
		return currentURL + href
	}
	if u, err := url.Parse(href); err == nil {
		if u.IsAbs() {
			return href
		}
		if u.Host != "" {
			// Protocol-relative: //host/path
			return e.scheme + ":" + href
		}
	}
	return strings.TrimSuffix(e.baseURL, "/") + "/" + strings.TrimPrefix(href, "/")
}

// collapseSpace trims s and folds every run of whitespace, line breaks
// included, into a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (e *Extractor) sameSite(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), e.host)
}

func parseDocument(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
