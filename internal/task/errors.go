package task

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation targets a task id that does
// not resolve, typically because the task was deleted concurrently.
var ErrNotFound = errors.New("task not found")

// ErrParentNotFound is returned when a create names a parent id that
// does not resolve.
var ErrParentNotFound = errors.New("parent task not found")

// ValidationError reports a missing or invalid field on a request.
// Validation failures never mutate state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
