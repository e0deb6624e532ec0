//go:build !windows

package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fgaction/internal/logger"
)

// unixService runs under systemd or interactively on Unix systems.
type unixService struct {
	canceller
	opts    Options
	runFunc RunFunc
}

// NewService creates the platform service for runFunc.
func NewService(opts Options, runFunc RunFunc) Service {
	return &unixService{opts: opts.withDefaults(), runFunc: runFunc}
}

// Run starts runFunc and translates signals: SIGINT/SIGTERM stop, SIGHUP reloads.
func (s *unixService) Run(ctx context.Context) error {
	log := logger.WithComponent("unix-service")

	ctx = s.bind(ctx)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	done := make(chan error, 1)
	go func() {
		done <- s.runFunc(ctx)
	}()

	log.Info().Str("service", s.opts.Name).Msg("Service started")

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				log.Info().Msg("Received SIGHUP, reloading")
				s.opts.reload()
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			s.Stop()
			return s.awaitStop(done, sigChan)

		case err := <-done:
			return err
		}
	}
}

// awaitStop waits for runFunc after a stop request. A second signal or the
// stop timeout abandons the wait.
func (s *unixService) awaitStop(done <-chan error, sigChan <-chan os.Signal) error {
	log := logger.WithComponent("unix-service")
	for {
		select {
		case err := <-done:
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				continue
			}
			log.Warn().Str("signal", sig.String()).Msg("Received second signal, forcing exit")
			return nil
		case <-timeAfter(s.opts.StopTimeout):
			log.Warn().Dur("timeout", s.opts.StopTimeout).Msg("Timeout waiting for service to stop")
			return nil
		}
	}
}

// IsService reports whether stdin is not a terminal, which is the case under systemd.
func (s *unixService) IsService() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) == 0
}
