// Package api exposes the supervisor over a small HTTP control API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"fgaction/internal/action"
	"fgaction/internal/logger"
	"fgaction/internal/registry"
)

// Controller is the part of the supervisor the API drives.
type Controller interface {
	Snapshot() []registry.LiveAction
	Update(ctx context.Context, id action.ID, cfg action.Config) error
	Stop(ctx context.Context, id action.ID) error
	ForceStopAll(ctx context.Context) error
}

// Launcher starts configured actions by name. Trigger reports
// action.ErrUnknownAction, action.ErrAlreadyRunning or action.ErrNotRunning.
type Launcher interface {
	Trigger(name string) error
	Names() []string
}

// LiveAction is the wire form of a registry entry.
type LiveAction struct {
	ID        action.ID       `json:"id"`
	Strategy  action.Strategy `json:"strategy"`
	Config    action.Config   `json:"config"`
	StartedAt time.Time       `json:"startedAt"`
}

// StopFailure is one entry of a failed bulk stop.
type StopFailure struct {
	ID    action.ID `json:"id"`
	Error string    `json:"error"`
}

// Handler serves the control API.
type Handler struct {
	ctrl     Controller
	launcher Launcher
	metrics  http.Handler
	timeout  time.Duration
}

// NewHandler creates a Handler. launcher and metrics may be nil.
func NewHandler(ctrl Controller, launcher Launcher, metrics http.Handler) *Handler {
	return &Handler{ctrl: ctrl, launcher: launcher, metrics: metrics, timeout: 10 * time.Second}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	r.HandleFunc("/actions", h.ListActions).Methods("GET")
	r.HandleFunc("/actions", h.StopAll).Methods("DELETE")
	r.HandleFunc("/actions/{id:[0-9]+}", h.UpdateAction).Methods("PUT")
	r.HandleFunc("/actions/{id:[0-9]+}", h.StopAction).Methods("DELETE")

	r.HandleFunc("/launch", h.ListLaunchable).Methods("GET")
	r.HandleFunc("/launch/{name}", h.Launch).Methods("POST")

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// NewRouter returns a router with every route registered and request logging.
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)
	h.RegisterRoutes(r)
	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"live":   len(h.ctrl.Snapshot()),
	})
}

// ListActions returns the live actions.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	snap := h.ctrl.Snapshot()
	out := make([]LiveAction, 0, len(snap))
	for _, la := range snap {
		out = append(out, LiveAction{ID: la.ID, Strategy: la.Strategy, Config: la.Config, StartedAt: la.StartedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateAction replaces the visible status of a live action.
func (h *Handler) UpdateAction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var cfg action.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.ctrl.Update(ctx, id, cfg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopAction stops one live action. Unknown ids succeed.
func (h *Handler) StopAction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.ctrl.Stop(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopAll force stops every live action. Partial failures are reported
// with 207 and one entry per failed identifier.
func (h *Handler) StopAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.ctrl.ForceStopAll(ctx)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var stopErrs action.StopErrors
	if !errors.As(err, &stopErrs) {
		writeError(w, err)
		return
	}
	failures := make([]StopFailure, 0, len(stopErrs))
	for _, id := range stopErrs.IDs() {
		failures = append(failures, StopFailure{ID: id, Error: stopErrs[id].Error()})
	}
	writeJSON(w, http.StatusMultiStatus, map[string]interface{}{"failures": failures})
}

// ListLaunchable returns the names of the configured actions.
func (h *Handler) ListLaunchable(w http.ResponseWriter, r *http.Request) {
	if h.launcher == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, h.launcher.Names())
}

// Launch starts a configured action by name.
func (h *Handler) Launch(w http.ResponseWriter, r *http.Request) {
	if h.launcher == nil {
		http.Error(w, "No configured actions", http.StatusNotFound)
		return
	}
	name := mux.Vars(r)["name"]
	if err := h.launcher.Trigger(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"name": name})
}

func parseID(w http.ResponseWriter, r *http.Request) (action.ID, bool) {
	id, err := action.ParseID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return action.None, false
	}
	return id, true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, action.ErrUnknownIdentifier), errors.Is(err, action.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, action.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, action.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, action.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, action.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, action.ErrUnsupportedPlatform):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("api")
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log := logger.WithComponent("api")
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}
