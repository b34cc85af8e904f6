// Package engine sequences detection, severity scoring, root cause analysis and
// routing for one classification request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/triage/internal/classification/detector"
	"github.com/vietddude/triage/internal/classification/metrics"
	"github.com/vietddude/triage/internal/classification/rootcause"
	"github.com/vietddude/triage/internal/classification/routing"
	"github.com/vietddude/triage/internal/classification/severity"
	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

var (
	// ErrBudgetExceeded is the cancellation cause when the wall-clock budget runs out.
	ErrBudgetExceeded = errors.New("classification budget exceeded")

	// ErrStagePanic wraps a panic recovered inside a stage.
	ErrStagePanic = errors.New("stage panicked")
)

// resultNamespace seeds classification ids.
var resultNamespace = uuid.MustParse("3d6c1f0a-7e2b-4c58-b1a9-5f0e2d7c9b14")

// Request is one classification request.
type Request struct {
	SessionID             string                     `json:"session_id"`
	SubjectID             string                     `json:"subject_id,omitempty"`
	ErrorSource           string                     `json:"error_source,omitempty"`
	Snapshot              *domain.Snapshot           `json:"snapshot,omitempty"`
	Context               *domain.SituationalContext `json:"context,omitempty"`
	ForceReclassification bool                       `json:"force_reclassification,omitempty"`
}

// Config holds engine settings.
type Config struct {
	// Budget bounds the wall-clock time of one Classify call.
	Budget time.Duration `yaml:"budget"`
	// HistoryDepth is how many previous classifications feed root cause analysis.
	HistoryDepth int `yaml:"history_depth"`
	// BatchWorkers bounds concurrent requests in ClassifyBatch.
	BatchWorkers  int                     `yaml:"batch_workers"`
	Detector      detector.Config         `yaml:",inline"`
	BusinessHours rootcause.BusinessHours `yaml:"business_hours"`
	// Capabilities and Scoring are top-level config sections.
	Capabilities routing.Capabilities  `yaml:"-"`
	Scoring      severity.ScoringTable `yaml:"-"`
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		Budget:        5 * time.Second,
		HistoryDepth:  10,
		BatchWorkers:  8,
		Detector:      detector.DefaultConfig(),
		BusinessHours: rootcause.BusinessHours{Start: 9, End: 18},
		Scoring:       severity.DefaultTable(),
	}
}

// Engine is safe for concurrent use. It holds no per-request state.
type Engine struct {
	detector *detector.Detector
	analyzer *severity.Analyzer
	finder   *rootcause.Finder
	router   *routing.Router
	history  storage.HistoryStore
	audit    storage.AuditSink
	observer Observer
	cfg      Config
	now      func() time.Time
	tracer   trace.Tracer
	log      *slog.Logger
}

// Observer is notified of every finished classification.
type Observer interface {
	Observe(res *domain.ClassificationResult)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithAuditSink sets where classification events are recorded.
func WithAuditSink(a storage.AuditSink) Option {
	return func(e *Engine) { e.audit = a }
}

// WithObserver registers o for finished classifications.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New wires the four stages around the given stores.
func New(
	sessions storage.SessionStore,
	history storage.HistoryStore,
	cfg Config,
	opts ...Option,
) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = def.HistoryDepth
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = def.BatchWorkers
	}

	e := &Engine{
		history: history,
		cfg:     cfg,
		now:     time.Now,
		tracer:  otel.Tracer("github.com/vietddude/triage/engine"),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	analyzer, err := severity.NewAnalyzer(cfg.Scoring, e.log)
	if err != nil {
		return nil, fmt.Errorf("failed to build severity analyzer: %w", err)
	}
	e.analyzer = analyzer
	e.detector = detector.New(sessions, cfg.Detector,
		detector.WithClock(e.now),
		detector.WithLogger(e.log),
	)
	e.finder = rootcause.NewFinder(cfg.BusinessHours, e.log)
	e.router = routing.NewRouter(e.log)
	return e, nil
}

// Classify runs the pipeline for one request. It always returns a result;
// the error is non-nil only when the request could not be classified at all
// (unknown session, invalid request, caller cancellation).
func (e *Engine) Classify(ctx context.Context, req Request) (*domain.ClassificationResult, error) {
	ctx, span := e.tracer.Start(ctx, "classify",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)),
	)
	defer span.End()

	res, err := e.classify(ctx, req)
	span.SetAttributes(
		attribute.String("classification.id", res.ID),
		attribute.String("classification.status", string(res.Status)),
		attribute.String("classification.severity", string(res.GlobalSeverity)),
		attribute.String("classification.strategy", string(res.RecoveryStrategy)),
		attribute.Bool("classification.escalate", res.EscalationRequired),
		attribute.Int("classification.errors", len(res.Errors)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

func (e *Engine) classify(ctx context.Context, req Request) (*domain.ClassificationResult, error) {
	start := e.now().UTC()
	res := &domain.ClassificationResult{
		SessionID:   req.SessionID,
		SubjectID:   req.SubjectID,
		ErrorSource: req.ErrorSource,
		Status:      domain.StatusCompleted,
	}

	fp, err := Fingerprint(req)
	if err != nil {
		e.warn(res, "fingerprint", err)
	}
	res.Fingerprint = fp
	res.ClassifiedAt = start
	res.ID = uuid.NewSHA1(resultNamespace,
		[]byte(req.SessionID+"|"+fp+"|"+start.Format(time.RFC3339Nano))).String()

	if req.SessionID == "" {
		err := fmt.Errorf("%w: session_id is required", domain.ErrInvalidRequest)
		return e.finishFailed(ctx, res, err), err
	}

	if ctx.Err() != nil {
		return (&pipelineRun{engine: e, parent: ctx, req: req, res: res}).abort()
	}

	if !req.ForceReclassification && fp != "" {
		if prev := e.reusable(ctx, req.SessionID, fp); prev != nil {
			e.log.Info("Reusing previous classification",
				"session", req.SessionID,
				"classification", prev.ID,
			)
			metrics.ClassificationsTotal.WithLabelValues("reused").Inc()
			return prev, nil
		}
	}

	bctx, cancel := context.WithTimeoutCause(ctx, e.cfg.Budget, ErrBudgetExceeded)
	defer cancel()

	history, outcomes := e.loadHistory(bctx, res, req.SessionID)
	run := &pipelineRun{engine: e, ctx: bctx, parent: ctx, req: req, res: res}

	// 1. Detect
	records, ok := run.detect()
	if !ok {
		return run.abort()
	}

	// 2. Severity
	sevReport := run.analyze(records)
	if run.cancelled() {
		return run.abort()
	}

	// 3. Root cause
	rcReport := run.findRootCause(records, history, outcomes)
	if run.cancelled() {
		return run.abort()
	}

	// 4. Route
	routeReport := run.route(e.classifiedErrors(records, sevReport, req.Context))
	if run.cancelled() {
		return run.abort()
	}

	run.consolidate(records, sevReport, rcReport, routeReport, outcomes)
	if run.degraded {
		res.Status = domain.StatusDegraded
	}
	if run.detectFailed {
		// Nothing was detected because detection never ran to completion.
		res.GlobalSeverity = domain.MaxSeverity(res.GlobalSeverity, domain.SeverityHigh)
		res.RecoveryStrategy = domain.StrategyManualIntervention
		res.EscalationRequired = true
		res.ImmediateActions = appendUnique(res.ImmediateActions,
			"Review the session manually: error detection did not complete")
	}
	if run.budgetHit {
		res.EscalationRequired = true
		res.ImmediateActions = appendUnique(res.ImmediateActions,
			"Review the partial classification: the time budget was exceeded")
	}
	res.Success = true

	e.persist(ctx, res)
	return res, nil
}

// History returns the session's recent classifications, newest first.
func (e *Engine) History(ctx context.Context, sessionID string, n int) ([]*domain.ClassificationResult, error) {
	if n <= 0 {
		n = e.cfg.HistoryDepth
	}
	return e.history.Recent(ctx, sessionID, n)
}

// ReportOutcome records what a downstream executor or specialist achieved.
func (e *Engine) ReportOutcome(ctx context.Context, outcome domain.RecoveryOutcome) error {
	if outcome.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrInvalidRequest)
	}
	if outcome.ReportedAt.IsZero() {
		outcome.ReportedAt = e.now().UTC()
	}
	if err := e.history.RecordOutcome(ctx, &outcome); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	metrics.RecoveryOutcomes.WithLabelValues(
		string(outcome.Strategy), fmt.Sprintf("%t", outcome.Success),
	).Inc()
	e.log.Info("Recovery outcome recorded",
		"session", outcome.SessionID,
		"classification", outcome.ClassificationID,
		"strategy", outcome.Strategy,
		"success", outcome.Success,
	)
	return nil
}

// reusable returns the latest history entry when it was computed from the
// same evidence.
func (e *Engine) reusable(ctx context.Context, sessionID, fp string) *domain.ClassificationResult {
	recent, err := e.history.Recent(ctx, sessionID, 1)
	if err != nil || len(recent) == 0 {
		return nil
	}
	prev := recent[0]
	if prev.Fingerprint != fp || prev.Status != domain.StatusCompleted {
		return nil
	}
	return prev
}

func (e *Engine) loadHistory(
	ctx context.Context,
	res *domain.ClassificationResult,
	sessionID string,
) ([]*domain.ClassificationResult, []*domain.RecoveryOutcome) {
	history, err := e.history.Recent(ctx, sessionID, e.cfg.HistoryDepth)
	if err != nil {
		e.warn(res, "history", err)
		history = nil
	}
	outcomes, err := e.history.Outcomes(ctx, sessionID, e.cfg.HistoryDepth)
	if err != nil {
		e.warn(res, "outcomes", err)
		outcomes = nil
	}
	return history, outcomes
}

// persist appends the result to the session history and the audit trail.
// Persistence failures are logged; the caller still gets the result.
func (e *Engine) persist(ctx context.Context, res *domain.ClassificationResult) {
	pctx := context.WithoutCancel(ctx)
	if res.Status == domain.StatusCompleted || res.Status == domain.StatusDegraded {
		if err := e.history.Append(pctx, res.SessionID, res); err != nil {
			e.log.Warn("Failed to append classification history",
				"session", res.SessionID,
				"error", err,
			)
		}
	}
	e.record(pctx, res)

	metrics.ClassificationsTotal.WithLabelValues(string(res.Status)).Inc()
	if res.EscalationRequired {
		metrics.Escalations.WithLabelValues(string(res.GlobalSeverity)).Inc()
	}
	e.log.Info("Classification complete",
		"session", res.SessionID,
		"status", res.Status,
		"errors", len(res.Errors),
		"severity", res.GlobalSeverity,
		"strategy", res.RecoveryStrategy,
		"escalate", res.EscalationRequired,
	)
}

func (e *Engine) record(ctx context.Context, res *domain.ClassificationResult) {
	if e.observer != nil {
		e.observer.Observe(res)
	}
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, domain.NewAuditEvent(res)); err != nil {
		e.log.Warn("Failed to record audit event",
			"classification", res.ID,
			"error", err,
		)
	}
}

// finishFailed turns res into the fail-safe result for an unclassifiable request.
func (e *Engine) finishFailed(
	ctx context.Context,
	res *domain.ClassificationResult,
	err error,
) *domain.ClassificationResult {
	res.Success = false
	res.Status = domain.StatusFailed
	res.Error = err.Error()
	res.GlobalSeverity = domain.SeverityHigh
	res.RecoveryStrategy = domain.StrategyManualIntervention
	res.EscalationRequired = true
	res.ClassificationConfidence = 0
	res.ImmediateActions = []string{"Investigate the session manually: automatic classification failed"}
	emptyLists(res)
	e.persist(ctx, res)
	return res
}

func (e *Engine) warn(res *domain.ClassificationResult, stage string, err error) {
	msg := fmt.Sprintf("%s: %v", stage, err)
	res.Warnings = append(res.Warnings, msg)
	e.log.Warn("Classification stage degraded",
		"session", res.SessionID,
		"stage", stage,
		"error", err,
	)
}

func emptyLists(res *domain.ClassificationResult) {
	if res.Errors == nil {
		res.Errors = []domain.ErrorRecord{}
	}
	if res.Severities == nil {
		res.Severities = []domain.SeverityAssessment{}
	}
	if res.RootCauses == nil {
		res.RootCauses = []domain.RootCauseAnalysis{}
	}
	if res.Routing == nil {
		res.Routing = []domain.RoutingDecision{}
	}
	if res.ImmediateActions == nil {
		res.ImmediateActions = []string{}
	}
	if res.PreventiveMeasures == nil {
		res.PreventiveMeasures = []string{}
	}
	if res.RoutingSummary.HandlerDistribution == nil {
		res.RoutingSummary = routing.Consolidate(res.Routing)
	}
}
