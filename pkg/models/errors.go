package models

import "errors"

// Error taxonomy for collaborator failures. The run controller matches these
// with errors.Is to decide whether a failure aborts the current pull request
// or is only logged; no failure aborts the whole run.
var (
	// ErrConfig signals malformed or missing repository configuration.
	// Non-fatal: the built-in defaults are used instead.
	ErrConfig = errors.New("repository config error")
	// ErrHost signals a source-host transport or API failure. Non-fatal:
	// the side effect is skipped and processing continues.
	ErrHost = errors.New("source host error")
	// ErrTracker signals a tracker transport or API failure on a
	// non-creating call. Non-fatal: the side effect is skipped.
	ErrTracker = errors.New("tracker error")
	// ErrCreation signals a failed ticket creation. Fatal to that pull
	// request's processing: no ticket or state is recorded for it.
	ErrCreation = errors.New("ticket creation failed")
)
