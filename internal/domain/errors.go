package domain

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// Failure sentinels for the assessment engine. Each wraps an errdefs
// classification so callers can branch with errdefs.IsNotFound and friends
// without importing this package's sentinels.
var (
	// ErrSessionNotFound is returned when no session exists for a workflow ID.
	ErrSessionNotFound = fmt.Errorf("no assessment session found for this workflow: %w", errdefs.ErrNotFound)

	// ErrQuestionNotFound is returned when a question ID has no progress row
	// in the target session.
	ErrQuestionNotFound = fmt.Errorf("question not found in this assessment: %w", errdefs.ErrNotFound)

	// ErrAlreadyCompleted is returned on resume of a completed session.
	// The session is never mutated in this case.
	ErrAlreadyCompleted = fmt.Errorf("assessment already completed: %w", errdefs.ErrConflict)
)

// InvalidState reports an operation that is illegal for the session's
// current state, e.g. pausing a completed session.
func InvalidState(op string, state SessionState) error {
	return fmt.Errorf("cannot %s a session in state %q: %w", op, state, errdefs.ErrConflict)
}

// MissingField reports a required answer field that was not supplied.
func MissingField(field string) error {
	return fmt.Errorf("missing required field %q: %w", field, errdefs.ErrInvalidArgument)
}

// OutOfRange reports an answer field outside its allowed range.
func OutOfRange(field string, value int) error {
	return fmt.Errorf("field %q out of range: %d: %w", field, value, errdefs.ErrInvalidArgument)
}

// TransientStore classifies a retryable storage failure.
func TransientStore(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, errdefs.ErrUnavailable)
}
