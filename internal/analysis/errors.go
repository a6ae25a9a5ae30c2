package analysis

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidRecord = errors.New("invalid analysis record")
	ErrMismatch      = errors.New("stored selection differs from requested selection")
)

// WriteError is fatal to the current attempt. Writes are never retried
// because a new attempt needs a new id.
type WriteError struct {
	ID  uuid.UUID
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing analysis record %s: %v", e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type VerifyReason string

const (
	ReasonNotFound    VerifyReason = "not_found"
	ReasonUnavailable VerifyReason = "unavailable"
	ReasonMismatch    VerifyReason = "mismatch"
)

// VerifyError means the record just written could not be confirmed on
// read-back. It is never retryable.
type VerifyError struct {
	ID     uuid.UUID
	Reason VerifyReason
	Err    error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verifying analysis record %s: %s: %v", e.ID, e.Reason, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }
