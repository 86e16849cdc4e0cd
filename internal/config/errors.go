package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate and Run.Validate; callers
// match them with errors.Is.
var (
	// ErrNoRun is returned when neither a start URL argument nor a
	// configuration file provides a crawl run.
	ErrNoRun = errors.New("no crawl run specified: provide a start URL or a config file with runs")

	// ErrInvalidMaxDepth is returned when the maximum depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxLinks is returned when the visit ceiling is negative.
	// Use 0 for an unbounded crawl.
	ErrInvalidMaxLinks = errors.New("invalid max links: must be non-negative (0 = unbounded)")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when the delay between requests is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidConcurrency is returned when the number of concurrent runs
	// is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidStartURL is returned when a run's start URL is not an
	// absolute http(s) URL.
	ErrInvalidStartURL = errors.New("invalid start URL: must be an absolute http or https URL")

	// ErrInvalidBaseURL is returned when a run's base URL has no scheme or host.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http or https URL")

	// ErrEmptyTitle is returned when a run has no title to name its outline.
	ErrEmptyTitle = errors.New("empty run title")

	// ErrEmptyOutputDir is returned when a run has no output directory.
	ErrEmptyOutputDir = errors.New("empty output directory")
)
