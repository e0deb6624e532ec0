// Package action defines the types shared by every part of the foreground
// action supervisor: identifiers, the per-action notification config, the
// execution strategies and the error taxonomy.
package action

import (
	"context"
	"fmt"
	"strconv"
)

// ID identifies a live action within the process. Zero means "no action".
type ID uint64

// None is the reserved "no action" identifier.
const None ID = 0

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal identifier. Zero is rejected.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return None, fmt.Errorf("invalid action id %q: %w", s, err)
	}
	if n == 0 {
		return None, fmt.Errorf("invalid action id %q: zero is reserved", s)
	}
	return ID(n), nil
}

// Strategy is how an action's execution context is realized.
type Strategy int

const (
	// Unspecified lets the selector decide.
	Unspecified Strategy = iota
	// NativeHeadless registers a headless task, starts a native context and
	// runs the task inside it.
	NativeHeadless
	// NativeDirect starts a native context and runs the action in the calling
	// process.
	NativeDirect
	// InProcess runs the action directly without any OS-level context.
	InProcess
)

var strategyNames = map[Strategy]string{
	Unspecified:    "unspecified",
	NativeHeadless: "native-headless",
	NativeDirect:   "native-direct",
	InProcess:      "in-process",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "strategy(" + strconv.Itoa(int(s)) + ")"
}

// ParseStrategy accepts the names produced by String. Empty input yields Unspecified.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return Unspecified, nil
	}
	for k, v := range strategyNames {
		if v == s {
			return k, nil
		}
	}
	return Unspecified, fmt.Errorf("unknown strategy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Progress is the progress bar shown in the status notification.
type Progress struct {
	Current       int  `json:"current"`
	Max           int  `json:"max"`
	Indeterminate bool `json:"indeterminate"`
}

// Config describes the visible status of an action. It is treated as an
// immutable value: Update replaces it as a whole.
type Config struct {
	TaskName      string   `json:"taskName,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Color         string   `json:"color,omitempty"`
	Icon          string   `json:"icon,omitempty"`
	Progress      Progress `json:"progress"`
	DeepLink      string   `json:"deepLink,omitempty"`
	RunInStrategy Strategy `json:"runInStrategy,omitempty"`
}

// Validate checks the fields required by the chosen strategy.
func (c Config) Validate(s Strategy) error {
	if s == NativeHeadless && c.TaskName == "" {
		return fmt.Errorf("%w: task name is required for %s", ErrInvalidConfig, s)
	}
	if c.Progress.Max < 0 || c.Progress.Current < 0 {
		return fmt.Errorf("%w: progress must not be negative", ErrInvalidConfig)
	}
	if !c.Progress.Indeterminate && c.Progress.Max > 0 && c.Progress.Current > c.Progress.Max {
		return fmt.Errorf("%w: progress %d exceeds max %d", ErrInvalidConfig, c.Progress.Current, c.Progress.Max)
	}
	return nil
}

// Events holds the per-run lifecycle callbacks.
type Events struct {
	// OnIdentifier fires exactly once, synchronously, after the identifier is
	// acquired and before the action body starts.
	OnIdentifier func(ID)
}

// Settings are the per-invocation options of a run.
type Settings struct {
	Strategy Strategy
	Events   Events
}

// API is the handle passed to a running action.
type API interface {
	// ID returns the identifier of the running action.
	ID() ID
	// Strategy returns the strategy the action runs under.
	Strategy() Strategy
	// Update refreshes the visible status of this action.
	Update(ctx context.Context, cfg Config) error
}

// Func is a caller-supplied unit of long-running work.
type Func func(ctx context.Context, api API) error
