// Package service hosts the daemon as a systemd unit or a Windows service.
package service

import (
	"context"
	"sync"
	"time"
)

// Service runs the daemon until the host asks it to stop.
type Service interface {
	// Run blocks until the run function returns or the service is stopped.
	Run(ctx context.Context) error

	// Stop requests the service to stop.
	Stop() error

	// IsService reports whether the process was started by a service manager.
	IsService() bool
}

// RunFunc is the daemon body. It must return once ctx is cancelled.
type RunFunc func(ctx context.Context) error

// Options configures a Service.
type Options struct {
	// Name is the service name registered with the service manager.
	Name string
	// StopTimeout bounds how long a stop request waits for RunFunc.
	StopTimeout time.Duration
	// OnReload is called on SIGHUP or a Windows parameter change.
	OnReload func()
}

const defaultStopTimeout = 30 * time.Second

var timeAfter = time.After

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "fgaction"
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}
	return o
}

// canceller cancels the run context at most once.
type canceller struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func (c *canceller) bind(ctx context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, c.cancel = context.WithCancel(ctx)
	return ctx
}

func (c *canceller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil && !c.stopped {
		c.stopped = true
		c.cancel()
	}
	return nil
}

func (o Options) reload() {
	if o.OnReload != nil {
		o.OnReload()
	}
}
