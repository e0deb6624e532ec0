// Package supervisor runs foreground actions end to end: it picks the
// execution strategy, acquires an identifier, invokes the action and
// guarantees the execution context is stopped however the action ends.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fgaction/internal/action"
	"fgaction/internal/bridge"
	"fgaction/internal/executor"
	"fgaction/internal/logger"
	"fgaction/internal/metrics"
	"fgaction/internal/registry"
	"fgaction/internal/sender"
	"fgaction/internal/strategy"
)

// Options configures a Supervisor.
type Options struct {
	Target strategy.Target
	// Override is the default strategy request for runs that do not ask for one.
	Override action.Strategy
	// Registry defaults to a fresh registry.
	Registry *registry.Registry
	// Executor is required for native strategies. Without it only in-process
	// runs are possible.
	Executor executor.NativeExecutor
	Sender   sender.Sender
	Metrics  *metrics.Metrics
	// AppState defaults to a StaticAppState.
	AppState AppStateSource
}

// dispatchWait is closed once the platform has started a headless task.
type dispatchWait struct {
	once sync.Once
	ch   chan struct{}
}

// Supervisor owns the runs of one process. Multiple supervisors may coexist.
type Supervisor struct {
	target   strategy.Target
	override action.Strategy
	registry *registry.Registry
	exec     executor.NativeExecutor
	sender   sender.Sender
	metrics  *metrics.Metrics
	appState AppStateSource
	bridge   *bridge.Bridge
	dispatch map[action.Strategy]strategyImpl

	// onSettled observes every run after its terminal transition.
	onSettled func(*run)

	mu         sync.Mutex
	runs       map[*run]struct{}
	dispatched map[action.ID]*dispatchWait
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		target:     opts.Target,
		override:   opts.Override,
		registry:   opts.Registry,
		exec:       opts.Executor,
		sender:     opts.Sender,
		metrics:    opts.Metrics,
		appState:   opts.AppState,
		runs:       make(map[*run]struct{}),
		dispatched: make(map[action.ID]*dispatchWait),
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.sender == nil {
		s.sender = sender.NopSender{}
	}
	if s.appState == nil {
		s.appState = StaticAppState(AppActive)
	}
	s.bridge = bridge.New(s.registry, s.exec, s.sender, s.metrics)
	s.dispatch = s.buildDispatch()
	return s
}

// Start begins delivering expiration notices.
func (s *Supervisor) Start(ctx context.Context) {
	s.bridge.Start(ctx)
}

// Shutdown force stops every live action and stops event delivery.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	err := s.ForceStopAll(ctx)
	s.bridge.Stop()
	return err
}

// AddExpirationSource attaches an external source of expiration notices.
func (s *Supervisor) AddExpirationSource(src bridge.Source) {
	s.bridge.AddSource(src)
}

// Decision reports the strategy runs without an explicit request get.
func (s *Supervisor) Decision() (strategy.Decision, error) {
	return strategy.Select(s.target, s.override)
}

// decide resolves the request of one run: settings first, then the config's
// own runInStrategy, then the supervisor default.
func (s *Supervisor) decide(cfg action.Config, settings action.Settings) (strategy.Decision, error) {
	req := settings.Strategy
	if req == action.Unspecified {
		req = cfg.RunInStrategy
	}
	if req == action.Unspecified {
		req = s.override
	}
	return strategy.Select(s.target, req)
}

// Update refreshes the visible status of a live action.
func (s *Supervisor) Update(ctx context.Context, id action.ID, cfg action.Config) error {
	if err := s.bridge.Update(ctx, id, cfg); err != nil {
		return err
	}
	s.mu.Lock()
	for r := range s.runs {
		if r.id == id {
			r.setConfig(cfg)
		}
	}
	s.mu.Unlock()
	return nil
}

// Stop ends the action holding id. The action's context is cancelled and
// Stop waits for its cleanup; if the action does not return before ctx is
// done, the native context is stopped without waiting. Stopping an id that
// is not live is a no-op.
func (s *Supervisor) Stop(ctx context.Context, id action.ID) error {
	log := logger.WithAction("supervisor", uint64(id))

	runs := s.runsFor(id)
	if len(runs) == 0 {
		if _, ok := s.registry.Lookup(id); !ok {
			log.Debug().Msg("Stop of unknown action ignored")
			return nil
		}
		log.Warn().Msg("Stopping live action without an owning run")
		return s.stopOrphan(ctx, id)
	}

	for _, r := range runs {
		r.cancel()
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			log.Warn().Msg("Action ignored cancellation, stopping its context without waiting")
			return s.stopOrphan(context.WithoutCancel(ctx), id)
		}
	}
	return nil
}

// stopOrphan stops id unless its run or a sweep already took it.
func (s *Supervisor) stopOrphan(ctx context.Context, id action.ID) error {
	la, ok := s.registry.Take(id)
	if !ok {
		return nil
	}
	s.metrics.SetLive(s.registry.Len())

	if la.Strategy == action.InProcess {
		if err := s.sender.Send(ctx, sender.NewRecord(sender.KindStopped, la.ID, la.Strategy, la.Config)); err != nil {
			return fmt.Errorf("%w: publish in-process stop of %s: %v", action.ErrNativeExecution, la.ID, err)
		}
		return nil
	}
	if s.exec == nil {
		return nil
	}
	if err := s.exec.Stop(ctx, la.ID); err != nil {
		s.metrics.StopFailed()
		return nativeError("stop", err)
	}
	return nil
}

// ForceStopAll stops every live action and cancels their runs. Individual
// failures are aggregated in the returned action.StopErrors.
func (s *Supervisor) ForceStopAll(ctx context.Context) error {
	err := s.bridge.ForceStopAll(ctx)
	if p, ok := s.dispatch[action.InProcess].(*inProcessStrategy); ok {
		p.reset()
	}

	s.mu.Lock()
	for r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()
	return err
}

// ListLiveIdentifiers returns the live identifiers in ascending order.
func (s *Supervisor) ListLiveIdentifiers() []action.ID {
	return s.registry.AllLive()
}

// Snapshot returns the live actions in identifier order.
func (s *Supervisor) Snapshot() []registry.LiveAction {
	return s.registry.Snapshot()
}

// SubscribeExpiration registers a listener for expiration notices.
func (s *Supervisor) SubscribeExpiration(l bridge.Listener) *bridge.Subscription {
	return s.bridge.SubscribeExpiration(l)
}

func (s *Supervisor) track(r *run) {
	s.mu.Lock()
	s.runs[r] = struct{}{}
	s.mu.Unlock()
	s.metrics.SetLive(s.registry.Len())
}

func (s *Supervisor) untrack(r *run) {
	s.mu.Lock()
	delete(s.runs, r)
	s.mu.Unlock()
	s.metrics.SetLive(s.registry.Len())
}

func (s *Supervisor) runsFor(id action.ID) []*run {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*run
	for r := range s.runs {
		if r.id == id {
			out = append(out, r)
		}
	}
	return out
}

// onHeadlessDispatch is the handler registered for every headless task name.
// A task whose context was already cancelled leaves no entry behind: its run
// clears the table only after stopping the context.
func (s *Supervisor) onHeadlessDispatch(ctx context.Context, id action.ID, _ action.Config) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	w := s.dispatchWaitLocked(id)
	s.mu.Unlock()
	w.once.Do(func() { close(w.ch) })
}

func (s *Supervisor) dispatchSignal(id action.ID) *dispatchWait {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchWaitLocked(id)
}

func (s *Supervisor) dispatchWaitLocked(id action.ID) *dispatchWait {
	w, ok := s.dispatched[id]
	if !ok {
		w = &dispatchWait{ch: make(chan struct{})}
		s.dispatched[id] = w
	}
	return w
}

func (s *Supervisor) clearDispatch(id action.ID) {
	s.mu.Lock()
	delete(s.dispatched, id)
	s.mu.Unlock()
}

func (s *Supervisor) strategyFor(st action.Strategy) (strategyImpl, error) {
	impl, ok := s.dispatch[st]
	if !ok {
		return nil, fmt.Errorf("%w: no executor for %s on %s", action.ErrUnsupportedPlatform, st, s.target)
	}
	return impl, nil
}

func since(t time.Time) float64 {
	return time.Since(t).Seconds()
}
