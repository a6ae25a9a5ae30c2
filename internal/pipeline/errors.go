package pipeline

import "errors"

var (
	// ErrAlreadyInProgress rejects re-entry while a remote step is outstanding.
	ErrAlreadyInProgress = errors.New("pipeline step already in progress")
	// ErrCompleted is returned for any mutation of a completed pipeline.
	ErrCompleted = errors.New("pipeline already completed")
	// ErrInsufficientInput means a report was requested with no assessments,
	// no concern and no symptoms.
	ErrInsufficientInput = errors.New("report requires a selection, a concern, or symptoms")
	ErrNoTriageOutcome   = errors.New("no triage outcome to accept")
	ErrNothingToRetry    = errors.New("no failed dispatch to retry")
	ErrNotFound          = errors.New("pipeline not found")
)
