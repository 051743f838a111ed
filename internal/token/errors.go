package token

import (
	"errors"
	"fmt"
)

// Sentinel errors for the credential lifecycle. Callers branch on these with
// errors.Is; everything else is treated as a transport-level failure.
var (
	// ErrUnauthorized marks an API response of 401 or 403. It is the only
	// error class that triggers the recover-and-retry path in Do.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAuthInProgress is returned to a caller that requests interactive
	// acquisition while another one is already underway.
	ErrAuthInProgress = errors.New("interactive authentication already in progress")

	// ErrAuthExhausted means every acquisition stage failed. Fatal for the
	// current cycle, not for the process.
	ErrAuthExhausted = errors.New("authentication failed: all stages exhausted")

	// ErrUserCancelled means the user explicitly declined or dismissed an
	// interactive or manual flow. Distinct from failure so callers can
	// suppress redundant sign-in prompts.
	ErrUserCancelled = errors.New("authentication cancelled by user")

	// ErrValidationRejected means the server rejected a candidate token
	// during manual entry.
	ErrValidationRejected = errors.New("server rejected token")
)

// TransportError wraps a network-level failure during a token operation.
// It is retryable by falling through to the next acquisition stage, never
// by looping on the same one.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
