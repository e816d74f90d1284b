// Package server exposes the echotype HTTP API.
//
// Routes:
//
//   - POST /v1/compare — score a submission against a clip's transcript.
//   - POST /v1/transcripts/{clip_id}/invalidate — drop the cached transcript.
//   - GET /healthz, GET /readyz — probes (see [health]).
//   - GET /metrics — Prometheus exposition.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hverberg/echotype/internal/health"
	"github.com/hverberg/echotype/internal/observe"
	"github.com/hverberg/echotype/internal/practice"
	"github.com/hverberg/echotype/internal/transcript"
)

// maxRequestBytes bounds the request body read by the compare handler. The
// submission itself is limited separately by the practice service.
const maxRequestBytes = 1 << 20

// Server routes HTTP requests to the practice service.
type Server struct {
	svc     *practice.Service
	health  *health.Handler
	metrics *observe.Metrics
}

// New creates a [Server]. healthHandler and metrics may be nil.
func New(svc *practice.Service, healthHandler *health.Handler, metrics *observe.Metrics) *Server {
	if healthHandler == nil {
		healthHandler = health.New()
	}
	return &Server{svc: svc, health: healthHandler, metrics: metrics}
}

// Handler returns the fully wired [http.Handler] including observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/compare", s.handleCompare)
	mux.HandleFunc("POST /v1/transcripts/{clip_id}/invalidate", s.handleInvalidate)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// compareRequest is the JSON body of POST /v1/compare.
type compareRequest struct {
	ClipID transcript.ClipID `json:"clip_id"`
	Text   string            `json:"text"`
}

// errorResponse is the JSON body of all non-2xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	report, err := s.svc.Compare(r.Context(), req.ClipID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	clipID := transcript.ClipID(r.PathValue("clip_id"))

	if err := s.svc.Invalidate(r.Context(), clipID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps service errors to HTTP status codes. Fetch failures keep
// their kind visible in the response body so clients can distinguish a clip
// without captions from a broken source.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var fe *transcript.FetchError
	switch {
	case errors.Is(err, practice.ErrEmptyClipID), errors.Is(err, practice.ErrSubmissionTooLong):
		status = http.StatusBadRequest
	case errors.As(err, &fe):
		switch fe.Kind {
		case transcript.KindNoTranscript:
			status = http.StatusNotFound
		case transcript.KindTimeout:
			status = http.StatusGatewayTimeout
		case transcript.KindUnavailable:
			status = http.StatusBadGateway
		}
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
