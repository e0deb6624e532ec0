package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"fgaction/internal/action"
	"fgaction/internal/logger"
	"fgaction/internal/sender"
)

// nativeContext is one live execution context.
type nativeContext struct {
	id        action.ID
	cfg       action.Config
	startedAt time.Time
	cancel    context.CancelFunc
	timer     *clock.Timer
}

// contextTable is the bookkeeping shared by both adapters.
type contextTable struct {
	mu   sync.Mutex
	live map[action.ID]*nativeContext
}

func newContextTable() *contextTable {
	return &contextTable{live: make(map[action.ID]*nativeContext)}
}

func (t *contextTable) add(nc *nativeContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.live[nc.id]; ok {
		return fmt.Errorf("%w: %s", action.ErrDuplicateIdentifier, nc.id)
	}
	t.live[nc.id] = nc
	return nil
}

func (t *contextTable) setConfig(id action.ID, cfg action.Config) (nativeContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nc, ok := t.live[id]
	if !ok {
		return nativeContext{}, false
	}
	nc.cfg = cfg
	return *nc, true
}

func (t *contextTable) get(id action.ID) (nativeContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nc, ok := t.live[id]
	if !ok {
		return nativeContext{}, false
	}
	return *nc, true
}

func (t *contextTable) remove(id action.ID) (*nativeContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nc, ok := t.live[id]
	if ok {
		delete(t.live, id)
	}
	return nc, ok
}

func (t *contextTable) ids() []action.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]action.ID, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// core implements the operations both adapters share.
type core struct {
	strategy    action.Strategy
	component   string
	alloc       Allocator
	sender      sender.Sender
	table       *contextTable
	expirations chan Expiration
}

func newCore(strategy action.Strategy, component string, alloc Allocator, s sender.Sender) *core {
	if s == nil {
		s = sender.NopSender{}
	}
	return &core{
		strategy:    strategy,
		component:   component,
		alloc:       alloc,
		sender:      s,
		table:       newContextTable(),
		expirations: make(chan Expiration, expirationBuffer),
	}
}

func (c *core) publish(ctx context.Context, kind sender.Kind, id action.ID, cfg action.Config) error {
	return c.sender.Send(ctx, sender.NewRecord(kind, id, c.strategy, cfg))
}

// open registers a new context and makes it visible.
func (c *core) open(ctx context.Context, nc *nativeContext) error {
	if err := c.table.add(nc); err != nil {
		return err
	}
	if err := c.publish(ctx, sender.KindStarted, nc.id, nc.cfg); err != nil {
		c.table.remove(nc.id)
		return fmt.Errorf("%w: publish start of %s: %v", action.ErrNativeExecution, nc.id, err)
	}
	return nil
}

// Update refreshes the visible status of a live context.
func (c *core) Update(ctx context.Context, id action.ID, cfg action.Config) error {
	if _, ok := c.table.setConfig(id, cfg); !ok {
		return fmt.Errorf("%w: %s", action.ErrUnknownIdentifier, id)
	}
	if err := c.publish(ctx, sender.KindUpdated, id, cfg); err != nil {
		return fmt.Errorf("%w: publish update of %s: %v", action.ErrNativeExecution, id, err)
	}
	return nil
}

// Stop ends a context. Unknown identifiers are logged and ignored.
func (c *core) Stop(ctx context.Context, id action.ID) error {
	log := logger.WithAction(c.component, uint64(id))
	nc, ok := c.table.remove(id)
	if !ok {
		log.Debug().Msg("Stop of unknown context ignored")
		return nil
	}
	if nc.timer != nil {
		nc.timer.Stop()
	}
	if nc.cancel != nil {
		nc.cancel()
	}

	log.Info().Dur("uptime", time.Since(nc.startedAt)).Msg("Native context stopped")

	if err := c.publish(ctx, sender.KindStopped, id, nc.cfg); err != nil {
		return fmt.Errorf("%w: publish stop of %s: %v", action.ErrNativeExecution, id, err)
	}
	return nil
}

// StopAll stops every live context and aggregates failures.
func (c *core) StopAll(ctx context.Context) error {
	failed := action.StopErrors{}
	for _, id := range c.table.ids() {
		if err := c.Stop(ctx, id); err != nil {
			failed[id] = err
		}
	}
	return failed.OrNil()
}

// LiveIdentifiers returns the live identifiers in ascending order.
func (c *core) LiveIdentifiers() []action.ID {
	return c.table.ids()
}

// Expirations streams expiration notices.
func (c *core) Expirations() <-chan Expiration {
	return c.expirations
}

// emit queues an expiration without blocking the platform callback.
func (c *core) emit(exp Expiration) {
	log := logger.WithAction(c.component, uint64(exp.ID))
	select {
	case c.expirations <- exp:
		log.Warn().Str("reason", exp.Reason).Msg("Execution budget ending")
	default:
		log.Error().Str("reason", exp.Reason).Msg("Expiration queue full, notice dropped")
	}
}
