package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"fgaction/internal/action"
	"fgaction/internal/config"
	"fgaction/internal/logger"
)

func init() {
	_ = logger.Init(logger.Config{Level: "disabled"})
}

// mockRunner records runs instead of supervising them.
type mockRunner struct {
	mu      sync.Mutex
	calls   map[string]*int32
	configs []action.Config
	block   chan struct{}
	err     error
}

func newMockRunner() *mockRunner {
	return &mockRunner{calls: make(map[string]*int32)}
}

func (m *mockRunner) Run(ctx context.Context, fn action.Func, cfg action.Config, settings action.Settings) error {
	m.mu.Lock()
	c, ok := m.calls[cfg.Title]
	if !ok {
		c = new(int32)
		m.calls[cfg.Title] = c
	}
	m.configs = append(m.configs, cfg)
	block := m.block
	m.mu.Unlock()

	atomic.AddInt32(c, 1)
	if settings.Events.OnIdentifier != nil {
		settings.Events.OnIdentifier(1)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockRunner) count(title string) int32 {
	m.mu.Lock()
	c, ok := m.calls[title]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt32(c)
}

func spec(name string, interval time.Duration) config.ActionSpec {
	return config.ActionSpec{Name: name, Command: "true", Title: name, Interval: interval}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_StartStop(t *testing.T) {
	runner := newMockRunner()
	s := New(runner, config.NotificationConfig{}, []config.ActionSpec{spec("once", 0)}, clock.NewMock())

	if s.IsRunning() {
		t.Error("scheduler should not be running before Start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler should be running after Start")
	}
	waitFor(t, func() bool { return runner.count("once") == 1 })

	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler should not be running after Stop")
	}
	s.Stop()
}

func TestScheduler_DoubleStart(t *testing.T) {
	runner := newMockRunner()
	s := New(runner, config.NotificationConfig{}, []config.ActionSpec{spec("once", 0)}, clock.NewMock())

	_ = s.Start(context.Background())
	_ = s.Start(context.Background())
	waitFor(t, func() bool { return runner.count("once") >= 1 })
	s.Stop()

	if got := runner.count("once"); got != 1 {
		t.Errorf("expected a single launch, got %d", got)
	}
}

func TestScheduler_RepeatsOnInterval(t *testing.T) {
	mock := clock.NewMock()
	runner := newMockRunner()
	s := New(runner, config.NotificationConfig{}, []config.ActionSpec{spec("tick", time.Minute)}, mock)

	_ = s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool {
		mock.Add(time.Minute)
		return runner.count("tick") >= 3
	})
}

func TestScheduler_SkipsWhileBusy(t *testing.T) {
	mock := clock.NewMock()
	runner := newMockRunner()
	runner.block = make(chan struct{})
	s := New(runner, config.NotificationConfig{}, []config.ActionSpec{spec("slow", time.Second)}, mock)

	_ = s.Start(context.Background())
	waitFor(t, func() bool { return runner.count("slow") == 1 })

	if err := s.Trigger("slow"); !errors.Is(err, action.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	s.Stop()
	if got := runner.count("slow"); got != 1 {
		t.Errorf("expected one run while busy, got %d", got)
	}
}

func TestScheduler_Trigger(t *testing.T) {
	runner := newMockRunner()
	s := New(runner, config.NotificationConfig{TaskName: "fgaction"}, []config.ActionSpec{spec("manual", 0)}, clock.NewMock())

	if err := s.Trigger("manual"); !errors.Is(err, action.ErrNotRunning) {
		t.Errorf("expected ErrNotRunning before Start, got %v", err)
	}

	_ = s.Start(context.Background())
	defer s.Stop()
	waitFor(t, func() bool { return runner.count("manual") == 1 })

	waitFor(t, func() bool { return s.Trigger("manual") == nil })
	waitFor(t, func() bool { return runner.count("manual") == 2 })

	if err := s.Trigger("nope"); !errors.Is(err, action.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.configs[0].TaskName != "fgaction" {
		t.Errorf("expected default task name, got %q", runner.configs[0].TaskName)
	}
}

func TestScheduler_InvalidStrategyNotRun(t *testing.T) {
	runner := newMockRunner()
	bad := spec("bad", 0)
	bad.Strategy = "teleport"
	s := New(runner, config.NotificationConfig{}, []config.ActionSpec{bad, spec("good", 0)}, clock.NewMock())

	_ = s.Start(context.Background())
	waitFor(t, func() bool { return runner.count("good") == 1 })
	s.Stop()

	if got := runner.count("bad"); got != 0 {
		t.Errorf("invalid action should not run, got %d", got)
	}
}

func TestScheduler_Reload(t *testing.T) {
	mock := clock.NewMock()
	runner := newMockRunner()
	s := New(runner, config.NotificationConfig{}, []config.ActionSpec{spec("old", time.Minute)}, mock)

	_ = s.Start(context.Background())
	defer s.Stop()
	waitFor(t, func() bool { return runner.count("old") == 1 })

	s.Reload([]config.ActionSpec{spec("new", 0)})
	waitFor(t, func() bool { return runner.count("new") == 1 })

	if names := s.Names(); len(names) != 1 || names[0] != "new" {
		t.Errorf("unexpected names after reload: %v", names)
	}

	// The old loop exits on its next tick instead of launching again.
	mock.Add(time.Minute)
	mock.Add(time.Minute)
	if got := runner.count("old"); got != 1 {
		t.Errorf("removed action launched again: %d", got)
	}
}

func TestScheduler_RunnerErrorLogged(t *testing.T) {
	runner := newMockRunner()
	runner.err = action.ErrActionFailure
	s := New(runner, config.NotificationConfig{}, []config.ActionSpec{spec("fails", 0)}, nil)

	_ = s.Start(context.Background())
	waitFor(t, func() bool { return runner.count("fails") == 1 })
	s.Stop()
}

func TestRunOnce(t *testing.T) {
	runner := newMockRunner()
	runner.err = errors.New("boom")
	if err := RunOnce(context.Background(), runner, spec("adhoc", 0), config.NotificationConfig{}); err == nil || err.Error() != "boom" {
		t.Errorf("expected runner error, got %v", err)
	}

	bad := spec("bad", 0)
	bad.Strategy = "teleport"
	if err := RunOnce(context.Background(), runner, bad, config.NotificationConfig{}); !errors.Is(err, action.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
