package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vietddude/triage/internal/classification/engine"
	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

const (
	// maxBody bounds request payloads.
	maxBody = 4 << 20
	// defaultAuditLimit applies when an audit request names no limit.
	defaultAuditLimit = 50
)

// Classifier is the engine surface exposed over HTTP.
type Classifier interface {
	Classify(ctx context.Context, req engine.Request) (*domain.ClassificationResult, error)
	ReportOutcome(ctx context.Context, outcome domain.RecoveryOutcome) error
	History(ctx context.Context, sessionID string, n int) ([]*domain.ClassificationResult, error)
}

// Server provides HTTP endpoints for health monitoring and classification.
type Server struct {
	monitor    *Monitor
	classifier Classifier
	audit      storage.AuditReader
	server     *http.Server
	log        *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAuditTrail exposes the audit events of a session.
func WithAuditTrail(a storage.AuditReader) ServerOption {
	return func(s *Server) { s.audit = a }
}

// NewServer creates a new server. classifier may be nil to expose only
// health and metrics.
func NewServer(monitor *Monitor, classifier Classifier, port int, log *slog.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		monitor:    monitor,
		classifier: classifier,
		log:        log,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	if classifier != nil {
		mux.HandleFunc("POST /v1/classify", s.handleClassify)
		mux.HandleFunc("POST /v1/outcomes", s.handleOutcome)
		mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)
	}
	if s.audit != nil {
		mux.HandleFunc("GET /v1/sessions/{id}/audit", s.handleAudit)
	}

	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	res, err := s.classifier.Classify(ctx, req)
	if err != nil {
		s.log.Warn("Classification request failed", "session", req.SessionID, "error", err)
	}
	if res == nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, statusFor(err), res)
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome domain.RecoveryOutcome
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&outcome); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.classifier.ReportOutcome(r.Context(), outcome); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.classifier.History(r.Context(), r.PathValue("id"), n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []*domain.ClassificationResult{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	n, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if n == 0 {
		n = defaultAuditLimit
	}

	events, err := s.audit.Recent(r.Context(), r.PathValue("id"), n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// parseLimit reads the optional limit query parameter; 0 means unset.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
