// Package routing decides who resolves each classified error and how the case
// escalates if nobody acknowledges it.
package routing

import (
	"context"
	"log/slog"
	"slices"

	"github.com/vietddude/triage/internal/core/domain"
)

// ClassifiedError is a record with its severity verdict attached.
type ClassifiedError struct {
	Record   domain.ErrorRecord
	Severity domain.Severity
	// Strategy is optional; when set it takes precedence over the category table.
	Strategy domain.RecoveryStrategy
}

// Capabilities describes what the downstream side can currently execute.
type Capabilities struct {
	// ManualOnly routes everything to people, e.g. during an executor outage.
	ManualOnly bool `yaml:"manual_only" json:"manual_only"`
	// DisabledHandlers lists handler ids that must not be selected.
	DisabledHandlers []string `yaml:"disabled_handlers" json:"disabled_handlers"`
}

func (c Capabilities) allows(h domain.Handler) bool {
	if c.ManualOnly && h.Type == domain.HandlerAutomatedRecovery {
		return false
	}
	return !slices.Contains(c.DisabledHandlers, h.ID)
}

// Report is the router output for one batch.
type Report struct {
	Decisions  []domain.RoutingDecision `json:"decisions"`
	Summary    domain.RoutingSummary    `json:"summary"`
	Confidence float64                  `json:"confidence"`
}

// Router maps classified errors to handlers.
type Router struct {
	log *slog.Logger
}

// NewRouter creates a router.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log}
}

// Route produces one decision per error, in input order.
func (r *Router) Route(
	ctx context.Context,
	errs []ClassifiedError,
	caps Capabilities,
) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Decisions: make([]domain.RoutingDecision, 0, len(errs))}
	var confSum float64
	for i := range errs {
		d := r.decide(&errs[i], caps)
		confSum += d.EstimatedResolution.Confidence
		report.Decisions = append(report.Decisions, d)
	}
	if len(errs) > 0 {
		report.Confidence = confSum / float64(len(errs))
	}
	report.Summary = Consolidate(report.Decisions)

	r.log.Debug("Routing complete",
		"decisions", len(report.Decisions),
		"coordination", report.Summary.CoordinationRequired,
	)
	return report, nil
}

func (r *Router) decide(ce *ClassifiedError, caps Capabilities) domain.RoutingDecision {
	category := ce.Record.Category()
	primary := r.primaryHandler(ce, category, caps)

	d := domain.RoutingDecision{
		ErrorID:             ce.Record.ID,
		PrimaryHandler:      primary,
		SecondaryHandlers:   secondaryHandlers(ce.Severity),
		EscalationPath:      escalationLadder(ce.Severity),
		Priority:            Priority(ce.Severity, category),
		EstimatedResolution: Estimate(primary.Type, ce.Severity),
	}
	if primary.Type == domain.HandlerAutomatedRecovery {
		d.RetryPolicy = DefaultBackoff(ce.Severity).Policy()
	}
	return d
}

func (r *Router) primaryHandler(
	ce *ClassifiedError,
	category domain.ErrorCategory,
	caps Capabilities,
) domain.Handler {
	h, ok := strategyHandler(ce.Strategy)
	if !ok {
		h, ok = categoryHandler(category)
	}
	if !ok {
		return genericHandler()
	}
	if caps.allows(h) {
		return h
	}

	fb := humanFallback(category)
	if !caps.allows(fb) {
		fb = genericHandler()
	}
	r.log.Info("Handler unavailable, falling back",
		"error_id", ce.Record.ID,
		"handler", h.ID,
		"fallback", fb.ID,
	)
	return fb
}

func secondaryHandlers(sev domain.Severity) []domain.Handler {
	hs := []domain.Handler{{Type: domain.HandlerAutomatedRecovery, ID: HandlerAuditLog}}
	if sev.AtLeast(domain.SeverityCritical) {
		hs = append(hs, domain.Handler{Type: domain.HandlerAutomatedRecovery, ID: HandlerMonitoring})
	}
	if sev.AtLeast(domain.SeverityHigh) {
		hs = append(hs, domain.Handler{Type: domain.HandlerAutomatedRecovery, ID: HandlerNotification})
	}
	return hs
}

// Priority is the severity rank adjusted by category, clamped to [1,5].
func Priority(sev domain.Severity, c domain.ErrorCategory) int {
	p := basePriority(sev) + categoryPriorityDelta(c)
	if sev == domain.SeverityEmergency {
		p = 1
	}
	return max(1, min(p, 5))
}

// Estimate scales the handler-type interval by severity.
func Estimate(t domain.HandlerType, sev domain.Severity) domain.ResolutionEstimate {
	minM, avgM, maxM, conf := baseInterval(t)
	m := severityMultiplier(sev)
	return domain.ResolutionEstimate{
		MinMinutes: minM * m,
		AvgMinutes: avgM * m,
		MaxMinutes: maxM * m,
		Confidence: conf,
	}
}

// Consolidate summarizes decisions. Automated items are assumed to run in
// parallel, human items one after another.
func Consolidate(decisions []domain.RoutingDecision) domain.RoutingSummary {
	sum := domain.RoutingSummary{
		HandlerDistribution:  make(map[domain.HandlerType]int),
		PriorityDistribution: make(map[int]int),
	}
	var urgent int
	var parallel, sequential float64
	for _, d := range decisions {
		sum.HandlerDistribution[d.PrimaryHandler.Type]++
		sum.PriorityDistribution[d.Priority]++
		if d.Priority <= 2 {
			urgent++
		}
		switch d.PrimaryHandler.Type {
		case domain.HandlerAutomatedRecovery:
			parallel = max(parallel, d.EstimatedResolution.AvgMinutes)
		case domain.HandlerHumanSpecialist:
			sequential += d.EstimatedResolution.AvgMinutes
		}
	}
	sum.CoordinationRequired = urgent > 1
	sum.TotalEstimatedMins = parallel + sequential
	return sum
}

// FallbackReport routes every error to a human specialist. It is used when
// routing itself fails.
func FallbackReport(errs []ClassifiedError) *Report {
	report := &Report{}
	for _, ce := range errs {
		h := genericHandler()
		report.Decisions = append(report.Decisions, domain.RoutingDecision{
			ErrorID:             ce.Record.ID,
			PrimaryHandler:      h,
			SecondaryHandlers:   secondaryHandlers(ce.Severity),
			EscalationPath:      escalationLadder(ce.Severity),
			Priority:            Priority(ce.Severity, ce.Record.Category()),
			EstimatedResolution: Estimate(h.Type, ce.Severity),
		})
	}
	report.Summary = Consolidate(report.Decisions)
	return report
}
