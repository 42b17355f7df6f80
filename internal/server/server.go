// Package server exposes the session controller over HTTP: a status
// endpoint, the toggle action, a WebSocket event stream, health probes and
// Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundbench/voiceloop/internal/health"
	"github.com/soundbench/voiceloop/internal/observe"
	"github.com/soundbench/voiceloop/internal/pipeline"
	"github.com/soundbench/voiceloop/internal/session"
)

// Controller is the part of the session controller the server needs.
type Controller interface {
	Toggle() error
	Snapshot() session.StatusEvent
	Subscribe() (<-chan session.StatusEvent, func())
}

// Server routes HTTP requests to the session controller.
type Server struct {
	ctrl    Controller
	health  *health.Handler
	metrics *observe.Metrics
}

// New builds a Server. metrics may be nil, in which case the process-wide
// default is used.
func New(ctrl Controller, h *health.Handler, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{ctrl: ctrl, health: h, metrics: metrics}
}

// Handler returns the full route table:
//
//	GET  /status   — current session status as JSON
//	POST /toggle   — start recording when idle, stop-and-play when recording
//	GET  /events   — WebSocket stream of status events
//	GET  /healthz  — liveness
//	GET  /readyz   — readiness (device probes)
//	GET  /metrics  — Prometheus exposition
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /toggle", s.handleToggle)
	mux.HandleFunc("GET /events", s.handleEvents)
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// toggleResponse is the JSON body returned from the toggle endpoint.
type toggleResponse struct {
	Status session.StatusEvent `json:"status"`
	Error  string              `json:"error,omitempty"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Toggle()
	if err != nil {
		observe.Logger(r.Context()).Warn("toggle rejected", "err", err)
		writeJSON(w, toggleStatusCode(err), toggleResponse{
			Status: s.ctrl.Snapshot(),
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Status: s.ctrl.Snapshot()})
}

// toggleStatusCode maps controller errors onto HTTP status codes. Wrong-state
// commands are conflicts; device problems are service-side failures.
func toggleStatusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrNotIdle), errors.Is(err, session.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, session.ErrPrecondition):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrCaptureStart), errors.Is(err, pipeline.ErrPlaybackStart):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	events, cancel := s.ctrl.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "controller closed")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				slog.Debug("event subscriber dropped", "err", err)
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response failed", "err", err)
	}
}

var _ Controller = (*session.Controller)(nil)
