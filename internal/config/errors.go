package config

import (
	"errors"
	"fmt"
)

// ErrConfigExists is returned by WriteSample when the target exists and
// overwriting was not requested.
var ErrConfigExists = errors.New("configuration file already exists")

// FieldError names the offending setting so the CLI can point at it.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}
