package engine

import (
	"errors"
	"fmt"
)

// ExitError reports that the engine's main returned a non-zero status.
type ExitError struct {
	Code int
	// Stderr holds a tail of the diagnostic stream when it was captured.
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("engine exited with status %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("engine exited with status %d", e.Code)
}

// dependencyUnavailableError signals a missing engine runtime (e.g. a build
// without the llama tag, or a missing binary).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing engine runtime.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}
