package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fgaction/internal/action"
	"fgaction/internal/executor"
	"fgaction/internal/sender"
)

// strategyImpl realizes one execution strategy for a run.
type strategyImpl interface {
	// acquire obtains and registers the identifier of the run.
	acquire(ctx context.Context, r *run) (action.ID, error)
	// enter runs between acquisition and the action body.
	enter(ctx context.Context, r *run) error
	// release takes the registry entry of the run and stops its execution
	// context. It is called once per run; when a stop or a sweep already took
	// the entry, the context has been stopped and release does nothing.
	release(ctx context.Context, r *run) error
}

func (s *Supervisor) buildDispatch() map[action.Strategy]strategyImpl {
	table := map[action.Strategy]strategyImpl{
		action.InProcess: &inProcessStrategy{s: s},
	}
	if s.exec != nil {
		table[action.NativeDirect] = &directStrategy{s: s}
		if d, ok := s.exec.(executor.HeadlessDispatcher); ok {
			table[action.NativeHeadless] = &headlessStrategy{s: s, dispatcher: d}
		}
	}
	return table
}

// nativeError classifies an executor failure. Errors already carrying a
// sentinel from the taxonomy pass through unchanged.
func nativeError(op string, err error) error {
	for _, known := range []error{
		action.ErrInvalidConfig,
		action.ErrPermissionDenied,
		action.ErrUnknownIdentifier,
		action.ErrDuplicateIdentifier,
		action.ErrNativeExecution,
		action.ErrUnsupportedPlatform,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", action.ErrNativeExecution, op, err)
}

// startNative starts a native context and registers it.
func (s *Supervisor) startNative(ctx context.Context, r *run) (action.ID, error) {
	id, err := s.exec.Start(ctx, r.config())
	if err != nil {
		return action.None, nativeError("start", err)
	}
	if err := s.registry.Register(id, s.exec, r.strategy, r.config()); err != nil {
		if errors.Is(err, action.ErrDuplicateIdentifier) {
			// Stopping by id would end the context of the action that
			// already holds it, so the new context is left running.
			r.log.Error().Err(err).Uint64("leaked_id", uint64(id)).
				Msg("Executor reused a live identifier, native context leaked")
			return action.None, err
		}
		if stopErr := s.exec.Stop(context.WithoutCancel(ctx), id); stopErr != nil {
			r.log.Error().Err(stopErr).Msg("Failed to stop context after registration failure")
		}
		s.clearDispatch(id)
		return action.None, err
	}
	return id, nil
}

// stopNative stops the context of r unless it was already taken.
func (s *Supervisor) stopNative(ctx context.Context, r *run) error {
	if _, ok := s.registry.Take(r.id); !ok {
		r.log.Debug().Msg("Context already stopped")
		return nil
	}
	return s.exec.Stop(ctx, r.id)
}

type headlessStrategy struct {
	s          *Supervisor
	dispatcher executor.HeadlessDispatcher
}

func (h *headlessStrategy) acquire(ctx context.Context, r *run) (action.ID, error) {
	if err := h.dispatcher.RegisterHeadlessDispatch(r.config().TaskName, h.s.onHeadlessDispatch); err != nil {
		return action.None, nativeError("register headless dispatch", err)
	}
	return h.s.startNative(ctx, r)
}

// enter waits until the platform has started the headless task and then
// subscribes to host application transitions for the rest of the run.
func (h *headlessStrategy) enter(ctx context.Context, r *run) error {
	select {
	case <-h.s.dispatchSignal(r.id).ch:
	case <-ctx.Done():
		return fmt.Errorf("%w: headless task %q was not started: %v", action.ErrNativeExecution, r.config().TaskName, ctx.Err())
	}

	r.unsubscribe = h.s.appState.Subscribe(func(state AppState) {
		h.s.metrics.AppStateChanged(state.String())
		r.log.Info().Str("app_state", state.String()).Msg("Host application state changed")
	})
	return nil
}

func (h *headlessStrategy) release(ctx context.Context, r *run) error {
	err := h.s.stopNative(ctx, r)
	h.s.clearDispatch(r.id)
	return err
}

type directStrategy struct {
	s *Supervisor
}

func (d *directStrategy) acquire(ctx context.Context, r *run) (action.ID, error) {
	return d.s.startNative(ctx, r)
}

func (d *directStrategy) enter(context.Context, *run) error { return nil }

func (d *directStrategy) release(ctx context.Context, r *run) error {
	return d.s.stopNative(ctx, r)
}

// inProcessStrategy has no OS-level context. All overlapping in-process runs
// share one identifier: the first run allocates it, the last one to finish
// releases it and the slot goes back to action.None. Overlapping runs are
// therefore not distinguishable by identifier.
type inProcessStrategy struct {
	s *Supervisor

	mu   sync.Mutex
	id   action.ID
	refs int
}

func (p *inProcessStrategy) acquire(ctx context.Context, r *run) (action.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs > 0 {
		p.refs++
		r.log.Warn().Uint64("shared_id", uint64(p.id)).Int("overlapping", p.refs).
			Msg("Overlapping in-process run shares the live identifier")
		return p.id, nil
	}

	id := p.s.registry.Allocate()
	if err := p.s.registry.Register(id, nil, action.InProcess, r.config()); err != nil {
		return action.None, err
	}
	if err := p.s.sender.Send(ctx, sender.NewRecord(sender.KindStarted, id, action.InProcess, r.config())); err != nil {
		r.log.Warn().Err(err).Msg("Failed to publish in-process start")
	}
	p.id = id
	p.refs = 1
	return id, nil
}

func (p *inProcessStrategy) enter(context.Context, *run) error { return nil }

func (p *inProcessStrategy) release(ctx context.Context, r *run) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs == 0 || p.id != r.id {
		// Already swept by a force stop.
		return nil
	}
	p.refs--
	if p.refs > 0 {
		return nil
	}

	id := p.id
	p.id = action.None
	la, ok := p.s.registry.Take(id)
	if !ok {
		return nil
	}
	if err := p.s.sender.Send(ctx, sender.NewRecord(sender.KindStopped, id, action.InProcess, la.Config)); err != nil {
		return fmt.Errorf("%w: publish in-process stop of %s: %v", action.ErrNativeExecution, id, err)
	}
	return nil
}

// reset forgets the shared identifier after a force stop released it.
func (p *inProcessStrategy) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = action.None
	p.refs = 0
}
