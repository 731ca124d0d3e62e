package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDate     = errors.New("missing required field")
	ErrMissingAmount   = errors.New("missing required field")
	ErrMissingCategory = errors.New("missing required field")
	ErrEmptyCategory   = errors.New("must not be empty")
	ErrInvalidAmount   = errors.New("must be a finite number")
)

// ValidationError reports a caller-supplied record that cannot be accepted.
// Index is the element position inside a bulk insert, -1 otherwise.
type ValidationError struct {
	Op    string
	Field string
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	field := e.Field
	if e.Index >= 0 {
		field = fmt.Sprintf("expenses[%d].%s", e.Index, e.Field)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", field, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
