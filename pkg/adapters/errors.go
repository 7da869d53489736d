package adapters

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store.Get for missing or soft-deleted entities
// and by Tickets.Get for unknown ids.
var ErrNotFound = errors.New("entity not found")

// ErrUnsupportedStatus is returned by Tickets.Transition when the target
// status has no equivalent in the tracker's workflow. Callers treat it as
// "tracker sync skipped", not as a failure.
var ErrUnsupportedStatus = errors.New("status not supported by tracker")

// NotConfiguredError reports a tool asking for an adapter that was not
// loaded at startup.
type NotConfiguredError struct {
	Adapter string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s not configured", e.Adapter)
}

// NotConfigured builds a NotConfiguredError for the named adapter.
func NotConfigured(adapter string) error {
	return &NotConfiguredError{Adapter: adapter}
}

// IsNotConfigured checks whether the error is a NotConfiguredError.
func IsNotConfigured(err error) bool {
	var nc *NotConfiguredError
	return errors.As(err, &nc)
}
