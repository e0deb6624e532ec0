// Package scheduler launches the configured actions through the supervisor,
// once at startup and then on their interval.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"fgaction/internal/action"
	"fgaction/internal/command"
	"fgaction/internal/config"
	"fgaction/internal/logger"
)

// Runner runs one foreground action to completion.
type Runner interface {
	Run(ctx context.Context, fn action.Func, cfg action.Config, settings action.Settings) error
}

// Scheduler manages the configured actions.
type Scheduler struct {
	runner   Runner
	defaults config.NotificationConfig
	clock    clock.Clock

	mu      sync.Mutex
	specs   map[string]config.ActionSpec
	loops   map[string]bool
	busy    map[string]bool
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler for specs. A nil clk uses the wall clock.
func New(runner Runner, defaults config.NotificationConfig, specs []config.ActionSpec, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	s := &Scheduler{
		runner:   runner,
		defaults: defaults,
		clock:    clk,
		loops:    make(map[string]bool),
		busy:     make(map[string]bool),
	}
	s.specs = index(specs)
	return s
}

func index(specs []config.ActionSpec) map[string]config.ActionSpec {
	m := make(map[string]config.ActionSpec, len(specs))
	for _, spec := range specs {
		m[spec.Name] = spec
	}
	return m
}

// Start launches every configured action.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	log := logger.WithComponent("scheduler")
	log.Info().Int("actions", len(s.specs)).Msg("Starting scheduler")

	for _, name := range s.namesLocked() {
		s.startLoopLocked(name)
	}
	return nil
}

// Stop cancels every running action and waits for them to settle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	log := logger.WithComponent("scheduler")
	log.Info().Msg("Stopping scheduler, waiting for actions to finish")

	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Names returns the configured action names in sorted order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked()
}

func (s *Scheduler) namesLocked() []string {
	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger runs the named action once, outside its interval.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return action.ErrNotRunning
	}
	if _, ok := s.specs[name]; !ok {
		return fmt.Errorf("%w: %s", action.ErrUnknownAction, name)
	}
	if s.busy[name] {
		return fmt.Errorf("%w: %s", action.ErrAlreadyRunning, name)
	}

	s.busy[name] = true
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, name)
	}()
	return nil
}

// Reload replaces the configured actions. Running actions finish with their
// old settings; later launches use the new ones. Removed actions stop
// repeating and new ones are launched immediately.
func (s *Scheduler) Reload(specs []config.ActionSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = index(specs)

	log := logger.WithComponent("scheduler")
	log.Info().Int("actions", len(s.specs)).Msg("Reloaded actions")

	if !s.running {
		return
	}
	for _, name := range s.namesLocked() {
		if !s.loops[name] {
			s.startLoopLocked(name)
		}
	}
}

func (s *Scheduler) startLoopLocked(name string) {
	s.loops[name] = true
	s.wg.Add(1)
	go s.runLoop(s.ctx, name)
}

func (s *Scheduler) lookup(name string) (config.ActionSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[name]
	return spec, ok
}

func (s *Scheduler) runLoop(ctx context.Context, name string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.loops, name)
		s.mu.Unlock()
	}()

	log := logger.WithComponent("scheduler")

	s.launch(ctx, name)

	spec, ok := s.lookup(name)
	if !ok || spec.Interval <= 0 {
		return
	}

	interval := spec.Interval
	ticker := s.clock.Ticker(interval)
	defer func() { ticker.Stop() }()

	log.Info().Str("action", name).Dur("interval", interval).Msg("Repeating action")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("action", name).Msg("Action loop stopped")
			return
		case <-ticker.C:
			spec, ok := s.lookup(name)
			if !ok || spec.Interval <= 0 {
				log.Info().Str("action", name).Msg("Action no longer repeats")
				return
			}
			if spec.Interval != interval {
				ticker.Stop()
				interval = spec.Interval
				ticker = s.clock.Ticker(interval)
				log.Info().Str("action", name).Dur("interval", interval).Msg("Action interval changed")
			}
			s.launch(ctx, name)
		}
	}
}

// launch runs the action unless a previous launch is still in flight.
func (s *Scheduler) launch(ctx context.Context, name string) {
	s.mu.Lock()
	if s.busy[name] {
		s.mu.Unlock()
		log := logger.WithComponent("scheduler")
		log.Warn().Str("action", name).Msg("Previous run still in progress, skipping")
		return
	}
	s.busy[name] = true
	s.mu.Unlock()

	s.execute(ctx, name)
}

// execute runs the action; the caller has marked it busy.
func (s *Scheduler) execute(ctx context.Context, name string) {
	defer func() {
		s.mu.Lock()
		delete(s.busy, name)
		s.mu.Unlock()
	}()

	log := logger.WithComponent("scheduler")

	spec, ok := s.lookup(name)
	if !ok {
		return
	}
	cmd := command.New(spec, s.defaults)
	settings, err := cmd.Settings()
	if err != nil {
		log.Error().Err(err).Str("action", name).Msg("Invalid action settings")
		return
	}
	settings.Events.OnIdentifier = func(id action.ID) {
		log.Info().Str("action", name).Uint64("action_id", uint64(id)).Msg("Action acquired identifier")
	}

	start := s.clock.Now()
	err = s.runner.Run(ctx, cmd.Func(), cmd.Config(), settings)
	elapsed := s.clock.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			log.Info().Str("action", name).Dur("duration", elapsed).Msg("Action cancelled")
			return
		}
		log.Error().Err(err).Str("action", name).Dur("duration", elapsed).Msg("Action failed")
		return
	}
	log.Info().Str("action", name).Dur("duration", elapsed).Msg("Action completed")
}

// RunOnce runs one configured action through runner and returns its error.
func RunOnce(ctx context.Context, runner Runner, spec config.ActionSpec, defaults config.NotificationConfig) error {
	cmd := command.New(spec, defaults)
	settings, err := cmd.Settings()
	if err != nil {
		return err
	}
	return runner.Run(ctx, cmd.Func(), cmd.Config(), settings)
}
