package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel behind Get's NotFoundError, matching
// spec.md §7's tool_not_found taxonomy entry.
var ErrNotFound = errors.New("tool_not_found")

// NotFoundError reports that a name has no registered ToolSpec.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool_not_found: %q", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
