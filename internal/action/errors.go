package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidConfig       = errors.New("invalid action config")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrDuplicateIdentifier = errors.New("duplicate action identifier")
	ErrUnknownIdentifier   = errors.New("unknown action identifier")
	ErrNativeExecution     = errors.New("native execution failure")
	ErrActionFailure       = errors.New("action failure")

	// Launcher errors for actions started by name.
	ErrUnknownAction  = errors.New("unknown action name")
	ErrAlreadyRunning = errors.New("action already running")
	ErrNotRunning     = errors.New("launcher not running")
)

// StopErrors collects per-identifier stop failures of a bulk sweep.
type StopErrors map[ID]error

func (e StopErrors) Error() string {
	ids := e.IDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e[id]))
	}
	return fmt.Sprintf("stopping %d action(s) failed: %s", len(e), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e StopErrors) Unwrap() []error {
	ids := e.IDs()
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, e[id])
	}
	return errs
}

// IDs returns the failed identifiers in ascending order.
func (e StopErrors) IDs() []ID {
	ids := make([]ID, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OrNil returns nil for an empty set so callers can return it directly.
func (e StopErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
