package remote

import "errors"

// Sentinel errors for remote service failures.
var (
	ErrServiceUnreachable = errors.New("remote service unreachable")
	ErrServiceTimeout     = errors.New("remote service timeout")
	ErrServiceError       = errors.New("remote service error")
	ErrInvalidResponse    = errors.New("remote service returned invalid response")
)
