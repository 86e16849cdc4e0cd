package crawler

import "errors"

var (
	// ErrUnexpectedStatus is returned by HTTPFetcher for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrStartPageUnavailable is returned by Spider.Crawl when the start
	// page itself could not be fetched, so no tree was built.
	ErrStartPageUnavailable = errors.New("start page could not be fetched")

	// ErrInvalidBaseURL is returned by NewExtractor when the base URL has
	// no host to restrict the crawl to.
	ErrInvalidBaseURL = errors.New("invalid base URL")
)
