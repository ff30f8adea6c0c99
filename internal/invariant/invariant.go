// Package invariant reports programming-invariant violations.
//
// A violation is logged at Error level with a "bug" attribute and returned as
// an error wrapping ErrViolated. Callers refuse the operation and carry on;
// nothing here panics.
package invariant

import (
	"errors"
	"fmt"
)

// ErrViolated is wrapped by every invariant-violation error.
var ErrViolated = errors.New("invariant violated")

// Logger is the subset of a structured logger needed to report bugs.
type Logger interface {
	Error(msg string, args ...any)
}

// Errorf builds an error wrapping ErrViolated.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrViolated, fmt.Sprintf(format, args...))
}

// Report logs err as a bug and returns it unchanged.
func Report(log Logger, err error, attrs ...any) error {
	if log != nil {
		log.Error("BUG: "+err.Error(), append(attrs, "bug", true)...)
	}
	return err
}

// Is reports whether err is an invariant violation.
func Is(err error) bool {
	return errors.Is(err, ErrViolated)
}
