package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "wikioutline"

	// DefaultMaxDepth bounds the recursion. Depth 0 is the start page.
	DefaultMaxDepth = 20

	// DefaultMaxLinks is the global visit ceiling. 0 means unbounded.
	DefaultMaxLinks = 0

	// DefaultDelay is the fixed pause before every request.
	DefaultDelay = 1 * time.Second

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (compatible; wikioutline/1.0)"

	// DefaultOutputDir is where outline files are written.
	DefaultOutputDir = "indexes"

	// DefaultConcurrency is the number of runs executed at once.
	// Each run is still strictly sequential.
	DefaultConcurrency = 1

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB
)

// Config holds the global options of one wikioutline invocation.
// It is populated from CLI flags and passed down explicitly; there is no
// package-level state.
type Config struct {
	// ConfigFilePath is the path of the YAML configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// File is the loaded configuration file, or nil when none was found.
	File *File

	// BaseURL is the site root used to resolve relative links.
	// Empty means "derive from the start URL".
	BaseURL string

	// OutputDir is the directory outline files are written to.
	OutputDir string

	// MaxDepth is the maximum recursion depth. 0 means only the start page.
	MaxDepth int

	// MaxLinks is the global visit ceiling per run. 0 means unbounded.
	MaxLinks int

	// Delay is the pause applied before every request.
	Delay time.Duration

	// Timeout bounds each request.
	Timeout time.Duration

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Set to 0 to use DefaultMaxBodySize.
	MaxBodySize int64

	// Concurrency is the number of runs crawled at the same time.
	Concurrency int

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log output to JSON.
	LogJSON bool

	// KeepGoing runs the remaining steps of a run after one of them failed.
	// The run is still reported as failed.
	KeepGoing bool

	// SaveToDB records runs and nodes in the SQLite database.
	SaveToDB bool

	// DBDir is the directory holding the SQLite database.
	DBDir string

	// SummaryFile is the path of the Markdown run summary. Empty disables it.
	SummaryFile string

	// MetricsFile is the path of the Prometheus textfile export.
	// Empty disables it.
	MetricsFile string

	// Runs are the crawl runs requested on the command line. When empty,
	// the runs of the configuration file are used.
	Runs []RunConfig
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:     "",
		OutputDir:   DefaultOutputDir,
		MaxDepth:    DefaultMaxDepth,
		MaxLinks:    DefaultMaxLinks,
		Delay:       DefaultDelay,
		Timeout:     DefaultTimeout,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		Concurrency: DefaultConcurrency,
	}
}

// XDGDataDir returns the XDG data directory for wikioutline.
// On Linux: ~/.local/share/wikioutline
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for wikioutline.
// On Linux: ~/.config/wikioutline
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the global options and returns the first problem found.
// It is called once after flag parsing, before any crawl starts.
func (c *Config) Validate() error {
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxLinks < 0 {
		return ErrInvalidMaxLinks
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if len(c.Runs) == 0 && (c.File == nil || len(c.File.Runs) == 0) {
		return ErrNoRun
	}
	return nil
}

// ResolveRuns merges the global options, the file defaults and every run
// entry into validated runs. Runs given on the command line take precedence
// over the runs of the configuration file.
func (c *Config) ResolveRuns() ([]Run, error) {
	entries := c.Runs
	var defaults RunConfig
	if c.File != nil {
		defaults = c.File.Defaults
		if len(entries) == 0 {
			entries = c.File.Runs
		}
	}
	if len(entries) == 0 {
		return nil, ErrNoRun
	}

	runs := make([]Run, 0, len(entries))
	for i, entry := range entries {
		run := c.baseRun()
		run.apply(defaults)
		run.apply(entry)
		run.fillDerived()
		if err := run.Validate(); err != nil {
			return nil, &RunError{Index: i, Title: run.Title, Err: err}
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// baseRun converts the global options into run settings.
func (c *Config) baseRun() Run {
	maxBodySize := c.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return Run{
		BaseURL:     c.BaseURL,
		OutputDir:   c.OutputDir,
		MaxDepth:    c.MaxDepth,
		MaxLinks:    c.MaxLinks,
		Delay:       c.Delay,
		Timeout:     c.Timeout,
		UserAgent:   c.UserAgent,
		MaxBodySize: maxBodySize,
		Rules:       DefaultRules(),
	}
}
