package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/triage/internal/classification/metrics"
	"github.com/vietddude/triage/internal/classification/rootcause"
	"github.com/vietddude/triage/internal/classification/routing"
	"github.com/vietddude/triage/internal/classification/severity"
	"github.com/vietddude/triage/internal/core/domain"
)

const (
	stageDetect    = "detect"
	stageSeverity  = "severity"
	stageRootCause = "root_cause"
	stageRouting   = "routing"
)

// fallbackConfidence is assigned to severity verdicts produced without analysis.
const fallbackConfidence = 0.5

// pipelineRun is the state of one Classify call.
type pipelineRun struct {
	engine *Engine
	// ctx carries the budget; parent is the caller's context.
	ctx    context.Context
	parent context.Context
	req    Request
	res    *domain.ClassificationResult

	degraded     bool
	detectFailed bool
	budgetHit    bool
	failure      error
	confidences  []float64
}

// cancelled reports whether the caller gave up on the request.
func (p *pipelineRun) cancelled() bool {
	return p.parent.Err() != nil
}

// abort finishes a run that cannot produce a classification.
func (p *pipelineRun) abort() (*domain.ClassificationResult, error) {
	e := p.engine
	if p.failure != nil {
		return e.finishFailed(p.parent, p.res, p.failure), p.failure
	}

	cause := context.Cause(p.parent)
	res := p.res
	res.Success = false
	res.Status = domain.StatusCancelled
	res.Error = cause.Error()
	res.GlobalSeverity = domain.SeverityHigh
	res.RecoveryStrategy = domain.StrategyManualIntervention
	res.EscalationRequired = true
	res.ClassificationConfidence = 0
	res.ImmediateActions = []string{"Re-run classification: the request was cancelled before completion"}
	emptyLists(res)
	e.record(context.WithoutCancel(p.parent), res)
	metrics.ClassificationsTotal.WithLabelValues(string(res.Status)).Inc()

	e.log.Warn("Classification cancelled",
		"session", res.SessionID,
		"error", cause,
	)
	return res, fmt.Errorf("classify %s: %w", res.SessionID, cause)
}

// exec runs fn as the named stage inside its own span. A panic in fn is
// returned as an error wrapping ErrStagePanic.
func (p *pipelineRun) exec(name string, fn func(context.Context) error) error {
	if p.ctx.Err() != nil {
		return context.Cause(p.ctx)
	}

	ctx, span := p.engine.tracer.Start(p.ctx, "classify."+name,
		trace.WithAttributes(attribute.String("session.id", p.req.SessionID)),
	)
	defer span.End()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrStagePanic, r)
			}
		}()
		return fn(ctx)
	}()
	metrics.StageLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// degrade records that a stage fell back to its default output.
func (p *pipelineRun) degrade(name string, err error) {
	p.degraded = true
	if errors.Is(err, ErrBudgetExceeded) || errors.Is(context.Cause(p.ctx), ErrBudgetExceeded) {
		p.budgetHit = true
	}
	metrics.StageFailures.WithLabelValues(name).Inc()
	p.engine.warn(p.res, name, err)
}

func (p *pipelineRun) detect() ([]domain.ErrorRecord, bool) {
	var records []domain.ErrorRecord
	err := p.exec(stageDetect, func(ctx context.Context) error {
		recs, _, err := p.engine.detector.Detect(ctx, p.req.SessionID, p.req.Snapshot)
		if err != nil {
			return err
		}
		for _, r := range recs {
			metrics.ErrorsDetected.WithLabelValues(string(r.Source), string(r.Type)).Inc()
		}
		records = recs
		return nil
	})
	switch {
	case err == nil:
		return records, true
	case p.cancelled():
		return nil, false
	case errors.Is(err, domain.ErrSessionNotFound):
		p.failure = err
		return nil, false
	}
	p.degrade(stageDetect, err)
	p.detectFailed = true
	return nil, true
}

func (p *pipelineRun) analyze(records []domain.ErrorRecord) *severity.Report {
	var report *severity.Report
	err := p.exec(stageSeverity, func(ctx context.Context) error {
		r, err := p.engine.analyzer.Analyze(ctx, records, p.req.Context)
		report = r
		return err
	})
	if err == nil {
		if len(records) > 0 {
			p.confidences = append(p.confidences, report.Confidence)
		}
		return report
	}
	if !p.cancelled() {
		p.degrade(stageSeverity, err)
	}
	return defaultSeverity(records)
}

func (p *pipelineRun) findRootCause(
	records []domain.ErrorRecord,
	history []*domain.ClassificationResult,
	outcomes []*domain.RecoveryOutcome,
) *rootcause.Report {
	rc := rootcause.Context{
		Now:           p.res.ClassifiedAt,
		BusinessHours: p.engine.cfg.BusinessHours,
		Outcomes:      outcomes,
	}
	if p.req.Snapshot != nil && !p.req.Snapshot.CapturedAt.IsZero() {
		rc.Now = p.req.Snapshot.CapturedAt
	}
	if p.req.Context != nil {
		rc.SystemLoad = p.req.Context.SystemLoad
	}

	var report *rootcause.Report
	err := p.exec(stageRootCause, func(ctx context.Context) error {
		r, err := p.engine.finder.Analyze(ctx, records, rc, history)
		report = r
		return err
	})
	if err == nil {
		if len(records) > 0 {
			p.confidences = append(p.confidences, report.Confidence)
		}
		return report
	}
	if !p.cancelled() {
		p.degrade(stageRootCause, err)
	}
	return rootcause.GenericReport(records)
}

func (p *pipelineRun) route(errs []routing.ClassifiedError) *routing.Report {
	var report *routing.Report
	err := p.exec(stageRouting, func(ctx context.Context) error {
		r, err := p.engine.router.Route(ctx, errs, p.engine.cfg.Capabilities)
		report = r
		return err
	})
	if err == nil {
		if len(errs) > 0 {
			p.confidences = append(p.confidences, report.Confidence)
		}
		return report
	}
	if !p.cancelled() {
		p.degrade(stageRouting, err)
	}
	return routing.FallbackReport(errs)
}

// defaultSeverity rates every record at least medium without consulting the
// scoring table.
func defaultSeverity(records []domain.ErrorRecord) *severity.Report {
	report := &severity.Report{
		Assessments: make([]domain.SeverityAssessment, 0, len(records)),
		Global:      domain.SeverityLow,
	}
	for _, r := range records {
		base := severity.BaseSeverity(r.Type)
		contextual := domain.MaxSeverity(base, domain.SeverityMedium)
		report.Assessments = append(report.Assessments, domain.SeverityAssessment{
			ErrorID:            r.ID,
			BaseSeverity:       base,
			ContextualSeverity: contextual,
			Confidence:         fallbackConfidence,
		})
		report.Global = domain.MaxSeverity(report.Global, contextual)
	}
	report.Recommendations = severity.Recommendations(report.Global, len(records))
	return report
}

// classifiedErrors pairs each record with its contextual severity and any
// strategy pinned by the record or the caller.
func (e *Engine) classifiedErrors(
	records []domain.ErrorRecord,
	sev *severity.Report,
	situation *domain.SituationalContext,
) []routing.ClassifiedError {
	bySeverity := make(map[string]domain.Severity, len(sev.Assessments))
	for _, a := range sev.Assessments {
		bySeverity[a.ErrorID] = a.ContextualSeverity
	}

	var pinned domain.RecoveryStrategy
	if situation != nil {
		if s, ok := domain.ParseRecoveryStrategy(situation.RecoveryStrategy); ok {
			pinned = s
		}
	}

	out := make([]routing.ClassifiedError, 0, len(records))
	for _, r := range records {
		ce := routing.ClassifiedError{Record: r, Severity: domain.SeverityMedium, Strategy: pinned}
		if s, ok := bySeverity[r.ID]; ok {
			ce.Severity = s
		}
		if v, ok := r.ContextString("recovery_strategy"); ok {
			if s, ok := domain.ParseRecoveryStrategy(v); ok {
				ce.Strategy = s
			}
		}
		out = append(out, ce)
	}
	return out
}
