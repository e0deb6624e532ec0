package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fgaction/internal/action"
	"fgaction/internal/logger"
	"fgaction/internal/sender"
)

// HeadlessExecutor starts a native context per action and then runs the
// headless task registered under the action's task name inside it.
type HeadlessExecutor struct {
	*core
	permission PermissionChecker

	mu       sync.RWMutex
	dispatch map[string]HeadlessHandler
}

// NewHeadlessExecutor creates a headless adapter. perm may be nil, in which
// case the foreground permission is assumed granted.
func NewHeadlessExecutor(alloc Allocator, s sender.Sender, perm PermissionChecker) *HeadlessExecutor {
	return &HeadlessExecutor{
		core:       newCore(action.NativeHeadless, "headless", alloc, s),
		permission: perm,
		dispatch:   make(map[string]HeadlessHandler),
	}
}

// RegisterHeadlessDispatch binds taskName to handler, replacing any earlier binding.
func (e *HeadlessExecutor) RegisterHeadlessDispatch(taskName string, handler HeadlessHandler) error {
	if taskName == "" {
		return fmt.Errorf("%w: task name is required", action.ErrInvalidConfig)
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for task %q", action.ErrInvalidConfig, taskName)
	}

	e.mu.Lock()
	e.dispatch[taskName] = handler
	e.mu.Unlock()
	return nil
}

// Start creates the context and dispatches the registered task into it.
func (e *HeadlessExecutor) Start(ctx context.Context, cfg action.Config) (action.ID, error) {
	if err := cfg.Validate(action.NativeHeadless); err != nil {
		return action.None, err
	}

	e.mu.RLock()
	handler := e.dispatch[cfg.TaskName]
	e.mu.RUnlock()
	if handler == nil {
		return action.None, fmt.Errorf("%w: no headless task registered as %q", action.ErrInvalidConfig, cfg.TaskName)
	}

	if e.permission != nil {
		if err := e.permission(ctx); err != nil {
			return action.None, fmt.Errorf("%w: %v", action.ErrPermissionDenied, err)
		}
	}

	id := e.alloc()
	taskCtx, cancel := context.WithCancel(context.Background())
	nc := &nativeContext{
		id:        id,
		cfg:       cfg,
		startedAt: time.Now(),
		cancel:    cancel,
	}
	if err := e.open(ctx, nc); err != nil {
		cancel()
		return action.None, err
	}

	log := logger.WithAction(e.component, uint64(id))
	log.Info().Str("task", cfg.TaskName).Msg("Native context started, dispatching headless task")

	go handler(taskCtx, id, cfg)
	return id, nil
}
