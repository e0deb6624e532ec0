package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"fgaction/internal/logger"
)

// Server runs the control API on a TCP address.
type Server struct {
	srv *http.Server
}

// NewServer creates a Server for h on addr.
func NewServer(addr string, h *Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	log := logger.WithComponent("api")

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	log.Info().Str("address", ln.Addr().String()).Msg("Control API listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	log.Info().Msg("Control API stopped")
	return nil
}
