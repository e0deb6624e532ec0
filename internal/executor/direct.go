package executor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"fgaction/internal/action"
	"fgaction/internal/logger"
	"fgaction/internal/sender"
)

// ReasonBudgetExhausted is the reason attached to budget timer expirations.
const ReasonBudgetExhausted = "background budget exhausted"

// DirectExecutor grants each action a background context with a limited
// execution budget. The action itself runs in the calling process; when the
// budget timer fires an Expiration is emitted and the context keeps running
// until it is stopped.
type DirectExecutor struct {
	*core
	clock  clock.Clock
	budget time.Duration
}

// NewDirectExecutor creates a direct adapter. A zero budget disables the timer.
func NewDirectExecutor(alloc Allocator, s sender.Sender, clk clock.Clock, budget time.Duration) *DirectExecutor {
	if clk == nil {
		clk = clock.New()
	}
	return &DirectExecutor{
		core:   newCore(action.NativeDirect, "direct", alloc, s),
		clock:  clk,
		budget: budget,
	}
}

// Start opens a context and arms its budget timer.
func (e *DirectExecutor) Start(ctx context.Context, cfg action.Config) (action.ID, error) {
	if err := cfg.Validate(action.NativeDirect); err != nil {
		return action.None, err
	}

	id := e.alloc()
	nc := &nativeContext{
		id:        id,
		cfg:       cfg,
		startedAt: e.clock.Now(),
	}
	if e.budget > 0 {
		nc.timer = e.clock.AfterFunc(e.budget, func() { e.expire(id) })
	}
	if err := e.open(ctx, nc); err != nil {
		if nc.timer != nil {
			nc.timer.Stop()
		}
		return action.None, err
	}

	log := logger.WithAction(e.component, uint64(id))
	log.Info().Dur("budget", e.budget).Msg("Native context started")
	return id, nil
}

func (e *DirectExecutor) expire(id action.ID) {
	nc, ok := e.table.get(id)
	if !ok {
		return
	}
	e.emit(Expiration{ID: id, Reason: ReasonBudgetExhausted, At: e.clock.Now()})

	log := logger.WithAction(e.component, uint64(id))
	if err := e.publish(context.Background(), sender.KindExpired, id, nc.cfg); err != nil {
		log.Warn().Err(err).Msg("Failed to publish expiration")
	}
}
