//go:build windows

package service

import (
	"context"
	"time"

	"golang.org/x/sys/windows/svc"

	"fgaction/internal/logger"
)

// windowsService runs under the Service Control Manager or interactively.
type windowsService struct {
	canceller
	opts    Options
	runFunc RunFunc
}

// NewService creates the platform service for runFunc.
func NewService(opts Options, runFunc RunFunc) Service {
	return &windowsService{opts: opts.withDefaults(), runFunc: runFunc}
}

// Run starts the service.
func (s *windowsService) Run(ctx context.Context) error {
	if !s.IsService() {
		return s.runFunc(s.bind(ctx))
	}
	return svc.Run(s.opts.Name, s)
}

// IsService reports whether the process was started by the SCM.
func (s *windowsService) IsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Execute implements svc.Handler.
func (s *windowsService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (svcSpecificEC bool, exitCode uint32) {
	log := logger.WithComponent("windows-service")

	const accepted = svc.AcceptStop | svc.AcceptShutdown | svc.AcceptParamChange

	changes <- svc.Status{State: svc.StartPending}

	ctx := s.bind(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.runFunc(ctx)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	log.Info().Str("service", s.opts.Name).Msg("Windows service started")

	for {
		select {
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
				time.Sleep(100 * time.Millisecond)
				changes <- c.CurrentStatus

			case svc.ParamChange:
				log.Info().Msg("Received parameter change, reloading")
				s.opts.reload()

			case svc.Stop, svc.Shutdown:
				log.Info().Msg("Received stop request from service control manager")
				changes <- svc.Status{State: svc.StopPending}
				s.Stop()

				select {
				case <-done:
				case <-time.After(s.opts.StopTimeout):
					log.Warn().Dur("timeout", s.opts.StopTimeout).Msg("Timeout waiting for service to stop")
				}

				changes <- svc.Status{State: svc.Stopped}
				return false, 0

			default:
				log.Warn().Int("cmd", int(c.Cmd)).Msg("Unexpected service control command")
			}

		case err := <-done:
			changes <- svc.Status{State: svc.Stopped}
			if err != nil {
				log.Error().Err(err).Msg("Service run function exited with error")
				return true, 1
			}
			return false, 0
		}
	}
}
