// Package bridge delivers asynchronous platform events to callers and
// performs the registry-wide operations that cross the native boundary:
// bulk force stop and in-place status updates.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"fgaction/internal/action"
	"fgaction/internal/executor"
	"fgaction/internal/logger"
	"fgaction/internal/metrics"
	"fgaction/internal/registry"
	"fgaction/internal/sender"
)

// Listener receives expiration notices.
type Listener func(executor.Expiration)

// Source produces expiration notices from outside the executor, for example
// a companion process that knows when the OS is about to reclaim the context.
type Source interface {
	// Run pushes notices to out until ctx is cancelled.
	Run(ctx context.Context, out chan<- executor.Expiration) error
}

// Subscription is returned by SubscribeExpiration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel stops delivery. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Bridge fans expiration notices out to subscribers and sweeps the registry.
type Bridge struct {
	registry *registry.Registry
	exec     executor.NativeExecutor
	sender   sender.Sender
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	subs    map[uint64]Listener
	nextSub uint64

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sources []Source
}

// New creates a bridge over reg. exec may be nil when only in-process actions run.
func New(reg *registry.Registry, exec executor.NativeExecutor, s sender.Sender, m *metrics.Metrics) *Bridge {
	if s == nil {
		s = sender.NopSender{}
	}
	return &Bridge{
		registry: reg,
		exec:     exec,
		sender:   s,
		metrics:  m,
		subs:     make(map[uint64]Listener),
	}
}

// AddSource registers an additional notice source. Sources added after Start
// are picked up by the next Start.
func (b *Bridge) AddSource(src Source) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	b.sources = append(b.sources, src)
}

// SubscribeExpiration registers listener for expiration notices. Delivery is
// at-least-once and unordered with respect to other events.
func (b *Bridge) SubscribeExpiration(listener Listener) *Subscription {
	b.mu.Lock()
	b.nextSub++
	key := b.nextSub
	b.subs[key] = listener
	b.mu.Unlock()

	return &Subscription{cancel: func() {
		b.mu.Lock()
		delete(b.subs, key)
		b.mu.Unlock()
	}}
}

// Start pumps executor and source notices until Stop or ctx is done.
func (b *Bridge) Start(ctx context.Context) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)
	notices := make(chan executor.Expiration)

	if b.exec != nil {
		b.wg.Add(1)
		go b.forward(ctx, b.exec.Expirations(), notices)
	}
	for _, src := range b.sources {
		b.wg.Add(1)
		go b.runSource(ctx, src, notices)
	}

	b.wg.Add(1)
	go b.deliverLoop(ctx, notices)
}

// Stop halts delivery and waits for the pump goroutines.
func (b *Bridge) Stop() {
	b.runMu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	b.wg.Wait()
}

func (b *Bridge) forward(ctx context.Context, in <-chan executor.Expiration, out chan<- executor.Expiration) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case exp, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- exp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bridge) runSource(ctx context.Context, src Source, out chan<- executor.Expiration) {
	defer b.wg.Done()
	log := logger.WithComponent("bridge")
	if err := src.Run(ctx, out); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Expiration source stopped")
	}
}

func (b *Bridge) deliverLoop(ctx context.Context, in <-chan executor.Expiration) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case exp := <-in:
			b.Deliver(exp)
		}
	}
}

// Deliver hands exp to every current subscriber.
func (b *Bridge) Deliver(exp executor.Expiration) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.subs))
	for _, l := range b.subs {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	b.metrics.Expired()
	log := logger.WithAction("bridge", uint64(exp.ID))
	log.Info().Str("reason", exp.Reason).Int("listeners", len(listeners)).Msg("Delivering expiration notice")

	for _, l := range listeners {
		deliverOne(l, exp)
	}
}

func deliverOne(l Listener, exp executor.Expiration) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithAction("bridge", uint64(exp.ID))
			log.Error().Interface("panic", r).Msg("Expiration listener panicked")
		}
	}()
	l(exp)
}

// ForceStopAll stops and releases every live action. Individual failures do
// not abort the sweep; they are returned together as action.StopErrors.
func (b *Bridge) ForceStopAll(ctx context.Context) error {
	log := logger.WithComponent("bridge")
	snapshot := b.registry.Snapshot()
	log.Info().Int("live", len(snapshot)).Msg("Force stopping all actions")

	failed := action.StopErrors{}
	for _, live := range snapshot {
		la, ok := b.registry.Take(live.ID)
		if !ok {
			// Released by its own run in the meantime.
			continue
		}
		if err := b.stopOne(ctx, la); err != nil {
			failed[la.ID] = err
			b.metrics.StopFailed()
			log.Warn().Err(err).Uint64("action_id", uint64(la.ID)).Msg("Force stop failed")
		}
	}
	b.metrics.SetLive(b.registry.Len())
	return failed.OrNil()
}

func (b *Bridge) stopOne(ctx context.Context, la registry.LiveAction) error {
	if la.Strategy == action.InProcess || b.exec == nil {
		return b.sender.Send(ctx, sender.NewRecord(sender.KindStopped, la.ID, la.Strategy, la.Config))
	}
	return b.exec.Stop(ctx, la.ID)
}

// Update refreshes the visible status of a live action without changing its
// run state.
func (b *Bridge) Update(ctx context.Context, id action.ID, cfg action.Config) error {
	la, ok := b.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", action.ErrUnknownIdentifier, id)
	}
	if err := cfg.Validate(la.Strategy); err != nil {
		return err
	}

	if la.Strategy == action.InProcess || b.exec == nil {
		if err := b.sender.Send(ctx, sender.NewRecord(sender.KindUpdated, id, la.Strategy, cfg)); err != nil {
			return fmt.Errorf("%w: publish update of %s: %v", action.ErrNativeExecution, id, err)
		}
	} else if err := b.exec.Update(ctx, id, cfg); err != nil {
		return err
	}

	return b.registry.UpdateConfig(id, cfg)
}
