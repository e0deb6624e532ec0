package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fgaction/internal/action"
	"fgaction/internal/config"
	"fgaction/internal/logger"
)

func init() {
	_ = logger.Init(logger.Config{Level: "disabled"})
}

type recordingAPI struct {
	mu      sync.Mutex
	updates []action.Config
}

func (a *recordingAPI) ID() action.ID              { return 7 }
func (a *recordingAPI) Strategy() action.Strategy { return action.InProcess }
func (a *recordingAPI) Update(_ context.Context, cfg action.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, cfg)
	return nil
}

func (a *recordingAPI) snapshot() []action.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]action.Config(nil), a.updates...)
}

var defaults = config.NotificationConfig{TaskName: "fgaction", Title: "Working", Color: "#000000"}

func shell(name, script string) *Command {
	return New(config.ActionSpec{Name: name, Command: "sh", Args: []string{"-c", script}}, defaults)
}

func TestConfig_FallsBackToDefaults(t *testing.T) {
	c := New(config.ActionSpec{Name: "sync", Command: "true", Title: "Syncing"}, defaults)
	cfg := c.Config()

	assert.Equal(t, "fgaction", cfg.TaskName)
	assert.Equal(t, "Syncing", cfg.Title)
	assert.Equal(t, "#000000", cfg.Color)
	assert.True(t, cfg.Progress.Indeterminate)
	assert.NoError(t, cfg.Validate(action.NativeHeadless))

	bare := New(config.ActionSpec{Name: "bare", Command: "true"}, config.NotificationConfig{})
	assert.Equal(t, "bare", bare.Config().Title)
}

func TestSettings(t *testing.T) {
	s, err := New(config.ActionSpec{Name: "a", Command: "true", Strategy: "in-process"}, defaults).Settings()
	require.NoError(t, err)
	assert.Equal(t, action.InProcess, s.Strategy)

	_, err = New(config.ActionSpec{Name: "a", Command: "true", Strategy: "warp"}, defaults).Settings()
	assert.ErrorIs(t, err, action.ErrInvalidConfig)
}

func TestRun_ReportsOutputAsProgress(t *testing.T) {
	api := &recordingAPI{}
	err := shell("echo", "echo first; echo second; echo oops >&2").Func()(context.Background(), api)
	require.NoError(t, err)

	updates := api.snapshot()
	require.NotEmpty(t, updates)
	assert.Equal(t, 1, updates[0].Progress.Current)
	assert.True(t, updates[0].Progress.Indeterminate)
	assert.NotEmpty(t, updates[0].Description)
	assert.Equal(t, "Working", updates[0].Title)
}

func TestRun_NonZeroExit(t *testing.T) {
	err := shell("fail", "exit 3").Func()(context.Background(), &recordingAPI{})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "fail", exitErr.Name)
}

func TestRun_MissingBinary(t *testing.T) {
	c := New(config.ActionSpec{Name: "ghost", Command: "/nonexistent/fgaction-ghost"}, defaults)
	err := c.Func()(context.Background(), &recordingAPI{})
	assert.Error(t, err)
}

func TestRun_CancelKillsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := New(config.ActionSpec{Name: "sleep", Command: "sleep", Args: []string{"30"}}, defaults)
	go func() { done <- c.Func()(ctx, &recordingAPI{}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("process was not killed on cancellation")
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))

	// "é" is two bytes; cutting inside it drops the whole rune.
	got := truncate("caféx", 4)
	assert.Equal(t, "caf", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "café", truncate("caféx", 5))
}

func TestRun_GrandchildHoldingOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- shell("nested", "sleep 30").Func()(ctx, &recordingAPI{}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("run blocked on output held by a grandchild")
	}
}

func TestLineWriter(t *testing.T) {
	var got []string
	w := &lineWriter{emit: func(s string) { got = append(got, s) }}

	_, _ = w.Write([]byte("one\r\ntw"))
	_, _ = w.Write([]byte("o\nthree"))
	w.flush()
	w.flush()

	assert.Equal(t, []string{"one", "two", "three"}, got)
}
