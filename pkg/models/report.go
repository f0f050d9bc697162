package models

import "time"

// Outcomes for a single pull request within a run.
const (
	OUTCOME_CREATED = "CREATED" // a new tracking ticket was created
	OUTCOME_TRACKED = "TRACKED" // an existing ticket was found and reconciled
	OUTCOME_SKIPPED = "SKIPPED" // an eligibility gate stopped processing
	OUTCOME_ERROR   = "ERROR"   // processing failed; next run retries
)

// PullRequestResult records what happened to one pull request.
type PullRequestResult struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Outcome  string `json:"outcome"`
	Category string `json:"category,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Ticket   string `json:"ticket,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// RepoReport aggregates the results for one scanned repository.
type RepoReport struct {
	Repo         string              `json:"repo"`
	Enabled      bool                `json:"enabled"`
	PullRequests []PullRequestResult `json:"pullRequests"`

	// Error is set when the repository could not be scanned at all, for
	// example when listing its pull requests failed.
	Error string `json:"error,omitempty"`
}

// RunReport is the summary of a whole run, exported as report.json when
// enabled and echoed to the log at the end of the run.
type RunReport struct {
	RunID     string       `json:"runId"`
	Mode      string       `json:"mode"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   time.Time    `json:"endedAt"`
	Repos     []RepoReport `json:"repos"`

	Processed int `json:"processed"`
	Created   int `json:"created"`
	Tracked   int `json:"tracked"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`

	// Halted is set when the run stopped early after reaching the creation
	// cap. A halt is a clean stop, not a failure.
	Halted string `json:"halted,omitempty"`
}

// Count folds one pull-request result into the run totals.
func (r *RunReport) Count(res PullRequestResult) {
	r.Processed++
	switch res.Outcome {
	case OUTCOME_CREATED:
		r.Created++
	case OUTCOME_TRACKED:
		r.Tracked++
	case OUTCOME_SKIPPED:
		r.Skipped++
	case OUTCOME_ERROR:
		r.Errors++
	}
}
