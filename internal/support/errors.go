package support

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyResolved signals a resolution race lost, or resolving a
	// draft that is no longer pending. A no-op for persisted state.
	ErrAlreadyResolved = errors.New("support: approval already resolved")

	// ErrConflict signals a write that lost its optimistic-concurrency
	// race. Callers retry the whole operation from fresh state.
	ErrConflict = errors.New("support: write conflict")
)

// ValidationError is a caller fault: a missing or empty required field.
// Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "support: " + e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
