package model

import "time"

// RunStatus describes how a crawl run ended.
type RunStatus string

const (
	// RunStatusRunning marks a run that has started and not yet finished.
	// A run left in this state in the database was interrupted.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted marks a run that exhausted every reachable page
	// or stopped at the visit ceiling.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusCancelled marks a run stopped by a signal or context deadline.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusFailed marks a run that could not start or could not persist
	// its outline.
	RunStatusFailed RunStatus = "failed"
)

// RunResult is the outcome of one top-level crawl run.
type RunResult struct {
	// ID is the database identifier of the run, or zero when the run was
	// not recorded.
	ID int64 `json:"id,omitempty"`

	// Title is the title of the run; it also names the output file.
	Title string `json:"title"`

	// StartURL is the URL the crawl started from.
	StartURL string `json:"start_url"`

	// OutputPath is the path of the outline file.
	OutputPath string `json:"output_path"`

	// Status is how the run ended.
	Status RunStatus `json:"status"`

	// Visits is the number of fetch attempts.
	Visits int `json:"visits"`

	// FetchFailures is the number of fetch attempts that failed.
	FetchFailures int `json:"fetch_failures"`

	// NodesWritten is the number of outline lines written.
	NodesWritten int `json:"nodes_written"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended.
	FinishedAt time.Time `json:"finished_at"`

	// Root is the reconstructed tree. Nil when the start page could not be
	// fetched. Not persisted.
	Root *CrawlNode `json:"-"`

	// ErrorMessage holds the error that ended the run, if any.
	ErrorMessage string `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
