// Package apperr defines the error kinds shared across studyplanner packages.
//
// Concrete errors wrap one of these kinds so callers can branch with errors.Is
// without knowing which package produced the failure.
package apperr

import "errors"

// Error kinds.
var (
	// ErrNotFound reports a missing task, block, user or schedule entry.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState reports an operation that cannot run against the current state,
	// such as scheduling a task whose deadline already passed.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidInput reports malformed caller input, such as a timestamp without a zone.
	ErrInvalidInput = errors.New("invalid input")
)
