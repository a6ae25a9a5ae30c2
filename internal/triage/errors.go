package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientInput means there was nothing to triage. No remote call is made.
	ErrInsufficientInput = errors.New("triage requires a selection, a concern, or symptoms")
	// ErrUnknownSpecialty is returned when accepting a specialty the outcome did not offer.
	ErrUnknownSpecialty = errors.New("specialty was not recommended by triage")
)

// Error wraps a remote or transport failure. Triage is advisory, so the
// caller stays in the select step and may retry or skip triage.
type Error struct {
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("triage failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
