package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RunConfig is one entry of the configuration file, or the defaults block.
// Zero values inherit from the enclosing level; MaxDepth and MaxLinks are
// pointers because zero is a meaningful value for both.
type RunConfig struct {
	// Title names the run and its outline file.
	Title string `yaml:"title,omitempty"`

	// StartURL is the first page to fetch.
	StartURL string `yaml:"startUrl,omitempty"`

	// PageTitle is the title recorded for the start page. Empty means
	// "use the page heading".
	PageTitle string `yaml:"pageTitle,omitempty"`

	// BaseURL resolves relative links and bounds the crawl to its host.
	BaseURL string `yaml:"baseUrl,omitempty"`

	// OutputDir overrides the output directory.
	OutputDir string `yaml:"outputDir,omitempty"`

	// MaxDepth overrides the maximum recursion depth.
	MaxDepth *int `yaml:"maxDepth,omitempty"`

	// MaxLinks overrides the global visit ceiling (0 = unbounded).
	MaxLinks *int `yaml:"maxLinks,omitempty"`

	// Delay overrides the pause before each request (e.g. "1500ms").
	Delay time.Duration `yaml:"delay,omitempty"`

	// Timeout overrides the request timeout (e.g. "10s").
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Cookie is an HTTP cookie sent with every request of the run.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request of the run.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Rules override the link classification rules.
	Rules RulesConfig `yaml:"rules,omitempty"`
}

// RulesConfig holds the site-specific link classification rules.
type RulesConfig struct {
	// ContentSelector selects the candidate anchors of the main content.
	ContentSelector string `yaml:"contentSelector,omitempty"`

	// HeadingSelector selects the element whose text titles a page.
	HeadingSelector string `yaml:"headingSelector,omitempty"`

	// NavigationSelector selects the navigation chrome; anchors inside it
	// are never children.
	NavigationSelector string `yaml:"navigationSelector,omitempty"`

	// ReferenceClass marks footnote anchors (on the anchor or its parent).
	ReferenceClass string `yaml:"referenceClass,omitempty"`

	// CitationMarkers are substrings of anchor text that denote citations.
	CitationMarkers []string `yaml:"citationMarkers,omitempty"`
}

// DefaultRules returns the rules for MediaWiki pages of the SBN norms site.
func DefaultRules() RulesConfig {
	return RulesConfig{
		ContentSelector:    "#mw-content-text ul li a, #mw-content-text ol li a",
		HeadingSelector:    "#firstHeading",
		NavigationSelector: "#mw-navigation",
		ReferenceClass:     "reference",
		CitationMarkers:    []string{"par.", "cap."},
	}
}

// Run is the fully resolved configuration of one crawl run.
type Run struct {
	Title       string
	StartURL    string
	PageTitle   string
	BaseURL     string
	OutputDir   string
	MaxDepth    int
	MaxLinks    int
	Delay       time.Duration
	Timeout     time.Duration
	UserAgent   string
	Cookie      string
	Headers     map[string]string
	MaxBodySize int64
	Rules       RulesConfig
}

// apply overrides r with the non-zero values of rc.
func (r *Run) apply(rc RunConfig) {
	if rc.Title != "" {
		r.Title = rc.Title
	}
	if rc.StartURL != "" {
		r.StartURL = rc.StartURL
	}
	if rc.PageTitle != "" {
		r.PageTitle = rc.PageTitle
	}
	if rc.BaseURL != "" {
		r.BaseURL = rc.BaseURL
	}
	if rc.OutputDir != "" {
		r.OutputDir = rc.OutputDir
	}
	if rc.MaxDepth != nil {
		r.MaxDepth = *rc.MaxDepth
	}
	if rc.MaxLinks != nil {
		r.MaxLinks = *rc.MaxLinks
	}
	if rc.Delay != 0 {
		r.Delay = rc.Delay
	}
	if rc.Timeout != 0 {
		r.Timeout = rc.Timeout
	}
	if rc.UserAgent != "" {
		r.UserAgent = rc.UserAgent
	}
	if rc.Cookie != "" {
		r.Cookie = rc.Cookie
	}
	if len(rc.Headers) > 0 {
		merged := make(map[string]string, len(r.Headers)+len(rc.Headers))
		for k, v := range r.Headers {
			merged[k] = v
		}
		for k, v := range rc.Headers {
			merged[k] = v
		}
		r.Headers = merged
	}
	r.Rules = r.Rules.merge(rc.Rules)
}

// merge overrides rc with the non-empty fields of override.
func (rc RulesConfig) merge(override RulesConfig) RulesConfig {
	if override.ContentSelector != "" {
		rc.ContentSelector = override.ContentSelector
	}
	if override.HeadingSelector != "" {
		rc.HeadingSelector = override.HeadingSelector
	}
	if override.NavigationSelector != "" {
		rc.NavigationSelector = override.NavigationSelector
	}
	if override.ReferenceClass != "" {
		rc.ReferenceClass = override.ReferenceClass
	}
	if len(override.CitationMarkers) > 0 {
		rc.CitationMarkers = override.CitationMarkers
	}
	return rc
}

// fillDerived sets the base URL and title from the start URL when they
// were not configured.
func (r *Run) fillDerived() {
	r.StartURL = strings.TrimSpace(r.StartURL)
	if r.BaseURL == "" {
		r.BaseURL = originOf(r.StartURL)
	}
	if strings.TrimSpace(r.Title) == "" {
		r.Title = DeriveTitle(r.StartURL)
	}
}

// Validate checks one resolved run.
func (r *Run) Validate() error {
	if !isAbsoluteHTTP(r.StartURL) {
		return fmt.Errorf("%w: %q", ErrInvalidStartURL, r.StartURL)
	}
	if !isAbsoluteHTTP(r.BaseURL) {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, r.BaseURL)
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if r.OutputDir == "" {
		return ErrEmptyOutputDir
	}
	if r.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if r.MaxLinks < 0 {
		return ErrInvalidMaxLinks
	}
	if r.Delay < 0 {
		return ErrInvalidDelay
	}
	if r.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// RunError reports which run of a list failed validation.
type RunError struct {
	Index int
	Title string
	Err   error
}

func (e *RunError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("run %d (%s): %v", e.Index+1, e.Title, e.Err)
	}
	return fmt.Sprintf("run %d: %v", e.Index+1, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// DeriveTitle builds a run title from a start URL: the MediaWiki "title"
// query parameter with underscores turned into spaces, else the last path
// segment, else the host.
func DeriveTitle(startURL string) string {
	u, err := url.Parse(startURL)
	if err != nil {
		return ""
	}
	if title := u.Query().Get("title"); title != "" {
		return strings.ReplaceAll(title, "_", " ")
	}
	if segment := strings.Trim(u.Path, "/"); segment != "" {
		if i := strings.LastIndex(segment, "/"); i >= 0 {
			segment = segment[i+1:]
		}
		if unescaped, err := url.PathUnescape(segment); err == nil {
			segment = unescaped
		}
		return strings.ReplaceAll(segment, "_", " ")
	}
	return u.Hostname()
}

// originOf returns scheme://host of rawURL, or "" when it cannot be parsed.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isAbsoluteHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
