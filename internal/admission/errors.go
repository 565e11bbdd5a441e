package admission

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so the route layer can map them to
// transport status codes without string matching.
type Kind string

const (
	// KindValidation means a required request field was missing or malformed.
	KindValidation Kind = "validation"
	// KindNotFound means the referenced order or session does not exist in scope.
	KindNotFound Kind = "not_found"
	// KindPrecondition means the resource exists but is in the wrong state,
	// e.g. an unpaid order or a session that is no longer active.
	KindPrecondition Kind = "precondition_failed"
	// KindCapacity means the concurrency limit was reached with no reclaim match.
	KindCapacity Kind = "capacity"
)

// Error is the typed failure returned at the engine boundary. Store-level
// transient failures are not wrapped in it; they propagate as internal
// errors.
type Error struct {
	Kind    Kind
	Message string

	// Limit is set on capacity errors so callers can surface the numeric
	// restriction to the viewer.
	Limit int
}

func (e *Error) Error() string {
	return e.Message
}

func newValidationError(field string) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf("%s is required", field)}
}

func newNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func newPreconditionError(message string) *Error {
	return &Error{Kind: KindPrecondition, Message: message}
}

func newCapacityError(limit int) *Error {
	return &Error{
		Kind:    KindCapacity,
		Message: fmt.Sprintf("Maximum concurrent viewers (%d) reached for this link", limit),
		Limit:   limit,
	}
}

// KindOf returns the failure kind of err, or the empty string when err is
// not an engine error.
func KindOf(err error) Kind {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	return ""
}
