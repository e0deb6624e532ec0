// Package executor is the boundary to the native execution layer: the part
// that owns the OS-visible long-running context and its status notification.
//
// Two adapters are provided. HeadlessExecutor models a platform that starts a
// named headless task inside the context it creates. DirectExecutor models a
// platform that grants the calling process a limited background budget and
// warns when the budget is about to run out.
package executor

import (
	"context"
	"time"

	"fgaction/internal/action"
)

// NativeExecutor starts, refreshes and stops native execution contexts.
type NativeExecutor interface {
	// Start begins a visible long-running context and returns its identifier.
	Start(ctx context.Context, cfg action.Config) (action.ID, error)

	// Update refreshes the visible status of a live context in place.
	Update(ctx context.Context, id action.ID, cfg action.Config) error

	// Stop ends a context. Stopping an unknown identifier is not an error.
	Stop(ctx context.Context, id action.ID) error

	// StopAll ends every live context.
	StopAll(ctx context.Context) error

	// LiveIdentifiers returns the identifiers of the live contexts in ascending order.
	LiveIdentifiers() []action.ID

	// Expirations streams "execution budget is about to end" notices.
	Expirations() <-chan Expiration
}

// HeadlessHandler is invoked by the platform once it has started the context
// for a registered task. ctx is cancelled when the context is stopped.
type HeadlessHandler func(ctx context.Context, id action.ID, cfg action.Config)

// HeadlessDispatcher is implemented by executors that start named headless tasks.
type HeadlessDispatcher interface {
	RegisterHeadlessDispatch(taskName string, handler HeadlessHandler) error
}

// Expiration is a platform notice that a context's execution budget is ending.
type Expiration struct {
	ID     action.ID `json:"id"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Allocator hands out identifiers for new contexts.
type Allocator func() action.ID

// PermissionChecker reports whether the process may start a foreground
// context. A non-nil error means the permission was declined or is unavailable.
type PermissionChecker func(ctx context.Context) error

// expirationBuffer bounds undelivered expiration notices per executor.
const expirationBuffer = 64

var (
	_ NativeExecutor     = (*HeadlessExecutor)(nil)
	_ HeadlessDispatcher = (*HeadlessExecutor)(nil)
	_ NativeExecutor     = (*DirectExecutor)(nil)
)
