package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"fgaction/internal/action"
	"fgaction/internal/logger"
	"fgaction/internal/metrics"
)

// Run states.
const (
	StateIdle      = "idle"
	StateAcquiring = "acquiring"
	StateRunning   = "running"
	StateStopping  = "stopping"
	StateStopped   = "stopped"
	StateFailed    = "failed"
)

// Run events.
const (
	eventAcquire = "acquire"
	eventStart   = "start"
	eventSettle  = "settle"
	eventFinish  = "finish"
	eventFail    = "fail"
)

// run is one invocation of an action.
type run struct {
	sup      *Supervisor
	machine  *fsm.FSM
	strategy action.Strategy
	id       action.ID
	log      zerolog.Logger

	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()

	mu  sync.Mutex
	cfg action.Config
}

func newRun(s *Supervisor, cfg action.Config) *run {
	r := &run{
		sup:  s,
		cfg:  cfg,
		done: make(chan struct{}),
		log:  logger.WithComponent("supervisor"),
	}
	r.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventAcquire, Src: []string{StateIdle}, Dst: StateAcquiring},
			{Name: eventStart, Src: []string{StateAcquiring}, Dst: StateRunning},
			{Name: eventSettle, Src: []string{StateAcquiring, StateRunning}, Dst: StateStopping},
			{Name: eventFinish, Src: []string{StateStopping}, Dst: StateStopped},
			{Name: eventFail, Src: []string{StateAcquiring, StateStopping}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				r.log.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("Run state changed")
			},
		},
	)
	return r
}

// transition fires event on a detached context: a run's bookkeeping
// transitions must complete even after the caller has gone away.
func (r *run) transition(event string) {
	if err := r.machine.Event(context.Background(), event); err != nil {
		r.log.Error().Err(err).Str("event", event).Str("state", r.machine.Current()).Msg("Invalid run transition")
	}
}

func (r *run) config() action.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

func (r *run) setConfig(cfg action.Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// runAPI is the handle passed to the action body.
type runAPI struct {
	r *run
}

func (a runAPI) ID() action.ID              { return a.r.id }
func (a runAPI) Strategy() action.Strategy { return a.r.strategy }

func (a runAPI) Update(ctx context.Context, cfg action.Config) error {
	return a.r.sup.Update(ctx, a.r.id, cfg)
}

// Run executes fn as a foreground action and returns once its execution
// context has been stopped. The returned error is the action's own error when
// it failed; a failure to stop the context is only returned when the action
// itself succeeded.
func (s *Supervisor) Run(ctx context.Context, fn action.Func, cfg action.Config, settings action.Settings) error {
	r := newRun(s, cfg)
	defer close(r.done)
	started := time.Now()

	r.transition(eventAcquire)

	dec, err := s.decide(cfg, settings)
	if err != nil {
		return r.reject(err)
	}
	r.strategy = dec.Strategy
	if dec.Forced {
		r.log.Warn().Str("strategy", dec.Strategy.String()).Str("reason", dec.Reason).Msg("Native execution unavailable, falling back")
	}
	if err := cfg.Validate(dec.Strategy); err != nil {
		return r.reject(err)
	}
	impl, err := s.strategyFor(dec.Strategy)
	if err != nil {
		return r.reject(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel = cancel

	id, err := impl.acquire(runCtx, r)
	if err != nil {
		return r.reject(err)
	}
	r.id = id
	r.log = logger.WithAction("supervisor", uint64(id))
	s.track(r)

	var actionErr error
	if err := impl.enter(runCtx, r); err != nil {
		actionErr = err
	} else {
		r.transition(eventStart)
		r.log.Info().Str("strategy", r.strategy.String()).Str("task", cfg.TaskName).Msg("Action started")
		actionErr = r.invoke(runCtx, fn, settings.Events.OnIdentifier)
	}

	return r.settle(ctx, impl, actionErr, started)
}

// reject ends a run that never obtained an identifier.
func (r *run) reject(err error) error {
	r.transition(eventFail)
	r.sup.metrics.RunFinished(r.strategy.String(), metrics.OutcomeRejected, 0)
	r.log.Warn().Err(err).Msg("Action rejected")
	if r.sup.onSettled != nil {
		r.sup.onSettled(r)
	}
	return err
}

// invoke fires onIdentifier and then the action body. Panics are converted
// into action failures.
func (r *run) invoke(ctx context.Context, fn action.Func, onIdentifier func(action.ID)) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Action panicked")
			err = fmt.Errorf("%w: panic: %v", action.ErrActionFailure, p)
		}
	}()

	if onIdentifier != nil {
		onIdentifier(r.id)
	}
	if err := fn(ctx, runAPI{r: r}); err != nil {
		return fmt.Errorf("%w: %w", action.ErrActionFailure, err)
	}
	return nil
}

// settle performs the Stopping transition: the context is stopped exactly
// once and the registry entry released regardless of the outcome.
func (r *run) settle(ctx context.Context, impl strategyImpl, actionErr error, started time.Time) error {
	s := r.sup
	r.transition(eventSettle)

	if r.unsubscribe != nil {
		r.unsubscribe()
	}

	stopCtx := context.WithoutCancel(ctx)
	stopErr := impl.release(stopCtx, r)
	s.untrack(r)
	if s.onSettled != nil {
		defer s.onSettled(r)
	}

	if stopErr != nil {
		s.metrics.StopFailed()
		stopErr = nativeError("stop", stopErr)
	}

	switch {
	case actionErr != nil:
		if stopErr != nil {
			r.log.Warn().Err(stopErr).Msg("Stop failed after action failure")
		}
		r.transition(eventFail)
		s.metrics.RunFinished(r.strategy.String(), metrics.OutcomeFailed, since(started))
		r.log.Error().Err(actionErr).Msg("Action failed")
		return actionErr
	case stopErr != nil:
		r.transition(eventFinish)
		s.metrics.RunFinished(r.strategy.String(), metrics.OutcomeFailed, since(started))
		r.log.Error().Err(stopErr).Msg("Action finished but its context failed to stop")
		return stopErr
	default:
		r.transition(eventFinish)
		s.metrics.RunFinished(r.strategy.String(), metrics.OutcomeSucceeded, since(started))
		r.log.Info().Msg("Action finished")
		return nil
	}
}
