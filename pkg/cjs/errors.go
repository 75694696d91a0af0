package cjs

import (
	"errors"
	"fmt"
)

// ErrInternal is wrapped by every internal-consistency failure. Such a
// failure means the analyzer itself is broken; it never describes the
// analyzed source.
var ErrInternal = errors.New("internal analyzer error")

// InternalError carries the reason for an internal-consistency failure.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInternal.Error(), e.Reason)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

// fail aborts the current analysis. It is recovered in Analyze.
func fail(format string, args ...any) {
	panic(&InternalError{Reason: fmt.Sprintf(format, args...)})
}
