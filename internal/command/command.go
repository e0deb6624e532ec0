// Package command turns a configured ActionSpec into an action.Func that runs
// an external process and reports its output as action progress.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fgaction/internal/action"
	"fgaction/internal/config"
	"fgaction/internal/logger"
)

// minUpdateInterval throttles status refreshes driven by process output.
const minUpdateInterval = 500 * time.Millisecond

// maxDescription caps the output line shown as the status description.
const maxDescription = 120

// waitDelay bounds how long output may stay open after the process is killed.
const waitDelay = 2 * time.Second

// maxLine caps a buffered partial line.
const maxLine = 64 * 1024

// ExitError reports a process that exited with a non-zero status.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Name, e.Code)
}

// Command is one configured external action.
type Command struct {
	spec     config.ActionSpec
	defaults config.NotificationConfig
}

// New creates a Command from spec. Empty notification fields of spec fall
// back to defaults.
func New(spec config.ActionSpec, defaults config.NotificationConfig) *Command {
	return &Command{spec: spec, defaults: defaults}
}

// Name returns the configured action name.
func (c *Command) Name() string { return c.spec.Name }

// Settings returns the run settings requested by the spec.
func (c *Command) Settings() (action.Settings, error) {
	st, err := action.ParseStrategy(c.spec.Strategy)
	if err != nil {
		return action.Settings{}, fmt.Errorf("%w: action %q: %v", action.ErrInvalidConfig, c.spec.Name, err)
	}
	return action.Settings{Strategy: st}, nil
}

// Config returns the initial visible status of the action.
func (c *Command) Config() action.Config {
	cfg := action.Config{
		TaskName:    pick(c.spec.TaskName, c.defaults.TaskName),
		Title:       pick(c.spec.Title, c.defaults.Title),
		Description: pick(c.spec.Description, c.defaults.Description),
		Color:       c.defaults.Color,
		Icon:        c.defaults.Icon,
		Progress:    action.Progress{Indeterminate: true},
	}
	if cfg.Title == "" {
		cfg.Title = c.spec.Name
	}
	return cfg
}

// Func returns the action body. The process is killed when ctx is cancelled.
func (c *Command) Func() action.Func {
	return func(ctx context.Context, api action.API) error {
		return c.run(ctx, api)
	}
}

func (c *Command) run(ctx context.Context, api action.API) error {
	log := logger.WithAction("command", uint64(api.ID()))

	cmd := exec.CommandContext(ctx, c.spec.Command, c.spec.Args...)
	cmd.Env = append(os.Environ(), c.spec.Env...)
	cmd.WaitDelay = waitDelay

	p := &progress{api: api, base: c.Config()}
	stdout := &lineWriter{emit: func(line string) {
		log.Debug().Str("stream", "stdout").Msg(line)
		p.observe(ctx, line)
	}}
	stderr := &lineWriter{emit: func(line string) {
		log.Warn().Str("stream", "stderr").Msg(line)
		p.observe(ctx, line)
	}}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", c.spec.Name, err)
	}
	log.Info().
		Str("name", c.spec.Name).
		Str("command", c.spec.Command).
		Int("pid", cmd.Process.Pid).
		Msg("Command started")

	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()
	lines := p.count()

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Info().Str("name", c.spec.Name).Int("lines", lines).Msg("Command cancelled")
		return ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		log.Warn().Str("name", c.spec.Name).Int("code", exitErr.ExitCode()).Int("lines", lines).Msg("Command failed")
		return &ExitError{Name: c.spec.Name, Code: exitErr.ExitCode()}
	}
	if waitErr != nil {
		return waitErr
	}

	log.Info().Str("name", c.spec.Name).Int("lines", lines).Msg("Command finished")
	return nil
}

// lineWriter splits process output into lines. exec writes to each
// lineWriter from a single goroutine.
type lineWriter struct {
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.emit(string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// flush emits a trailing line without a newline.
func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

// progress turns output lines into throttled status updates.
type progress struct {
	api  action.API
	base action.Config

	mu         sync.Mutex
	lines      int
	lastUpdate time.Time
}

func (p *progress) observe(ctx context.Context, line string) {
	p.mu.Lock()
	p.lines++
	now := time.Now()
	if !p.lastUpdate.IsZero() && now.Sub(p.lastUpdate) < minUpdateInterval {
		p.mu.Unlock()
		return
	}
	p.lastUpdate = now
	cfg := p.base
	cfg.Description = truncate(strings.TrimSpace(line), maxDescription)
	cfg.Progress = action.Progress{Current: p.lines, Indeterminate: true}
	p.mu.Unlock()

	if err := p.api.Update(ctx, cfg); err != nil {
		log := logger.WithAction("command", uint64(p.api.ID()))
		log.Debug().Err(err).Msg("Failed to update status from output")
	}
}

func (p *progress) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
