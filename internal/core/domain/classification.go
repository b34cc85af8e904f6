package domain

import (
	"maps"
	"slices"
	"time"
)

// Impact describes what a fault affects, one short label per dimension.
type Impact struct {
	Pipeline string `json:"pipeline"`
	Business string `json:"business"`
	User     string `json:"user"`
	System   string `json:"system"`
}

// SeverityAssessment is the severity verdict for one error record.
type SeverityAssessment struct {
	ErrorID            string   `json:"error_id"`
	BaseSeverity       Severity `json:"base_severity"`
	ContextualSeverity Severity `json:"contextual_severity"`
	Confidence         float64  `json:"confidence"`
	Impact             Impact   `json:"impact"`
	Adjustments        []string `json:"adjustments,omitempty"`
}

// GroupKey identifies a root cause group.
type GroupKey struct {
	Source ErrorSource `json:"source"`
	Type   ErrorType   `json:"type"`
}

// RootCauseAnalysis is the inferred cause of one group of related records.
type RootCauseAnalysis struct {
	Group               GroupKey `json:"group"`
	ErrorIDs            []string `json:"error_ids"`
	PrimaryCause        string   `json:"primary_cause"`
	ContributingFactors []string `json:"contributing_factors"`
	Evidence            []string `json:"evidence"`
	ConfidenceLevel     float64  `json:"confidence_level"`
	Recommendations     []string `json:"recommendations"`
}

// RootCauseSummary aggregates every group of one classification.
type RootCauseSummary struct {
	MostFrequentCause string   `json:"most_frequent_cause,omitempty"`
	TopFactors        []string `json:"top_factors,omitempty"`
	SystemicIssue     bool     `json:"systemic_issue"`
	GroupCount        int      `json:"group_count"`
}

// Handler is a recovery mechanism or specialist role.
type Handler struct {
	Type         HandlerType `json:"type"`
	ID           string      `json:"id"`
	Capabilities []string    `json:"capabilities,omitempty"`
}

// EscalationStep is one rung of an escalation ladder.
type EscalationStep struct {
	Level          int    `json:"level"`
	TargetRole     string `json:"target_role"`
	TimeoutMinutes int    `json:"timeout_minutes"`
}

// ResolutionEstimate is the expected time to resolve, in minutes.
type ResolutionEstimate struct {
	MinMinutes float64 `json:"min_minutes"`
	MaxMinutes float64 `json:"max_minutes"`
	AvgMinutes float64 `json:"avg_minutes"`
	Confidence float64 `json:"confidence"`
}

// RetryPolicy is the backoff schedule suggested to automated executors.
type RetryPolicy struct {
	MaxAttempts  int             `json:"max_attempts"`
	InitialDelay time.Duration   `json:"initial_delay"`
	MaxDelay     time.Duration   `json:"max_delay"`
	Schedule     []time.Duration `json:"schedule"`
}

// RoutingDecision says who handles one error, and how fast it escalates.
type RoutingDecision struct {
	ErrorID             string             `json:"error_id"`
	PrimaryHandler      Handler            `json:"primary_handler"`
	SecondaryHandlers   []Handler          `json:"secondary_handlers"`
	EscalationPath      []EscalationStep   `json:"escalation_path"`
	Priority            int                `json:"priority"`
	EstimatedResolution ResolutionEstimate `json:"estimated_resolution"`
	RetryPolicy         *RetryPolicy       `json:"retry_policy,omitempty"`
}

// RoutingSummary consolidates the decisions of one classification.
type RoutingSummary struct {
	HandlerDistribution  map[HandlerType]int `json:"handler_distribution"`
	PriorityDistribution map[int]int         `json:"priority_distribution"`
	CoordinationRequired bool                `json:"coordination_required"`
	TotalEstimatedMins   float64             `json:"total_estimated_minutes"`
}

// ClassificationStatus describes how far the pipeline got.
type ClassificationStatus string

const (
	StatusCompleted ClassificationStatus = "completed"
	StatusDegraded  ClassificationStatus = "degraded"
	StatusCancelled ClassificationStatus = "cancelled"
	StatusFailed    ClassificationStatus = "failed"
)

// ClassificationResult is the consolidated output of one Classify call.
type ClassificationResult struct {
	ID                       string               `json:"id"`
	SessionID                string               `json:"session_id"`
	SubjectID                string               `json:"subject_id,omitempty"`
	ErrorSource              string               `json:"error_source,omitempty"`
	Success                  bool                 `json:"success"`
	Status                   ClassificationStatus `json:"status"`
	Error                    string               `json:"error,omitempty"`
	Errors                   []ErrorRecord        `json:"errors"`
	Severities               []SeverityAssessment `json:"severities"`
	RootCauses               []RootCauseAnalysis  `json:"root_causes"`
	RootCauseSummary         RootCauseSummary     `json:"root_cause_summary"`
	Routing                  []RoutingDecision    `json:"routing"`
	RoutingSummary           RoutingSummary       `json:"routing_summary"`
	GlobalSeverity           Severity             `json:"global_severity"`
	RecoveryStrategy         RecoveryStrategy     `json:"recovery_strategy"`
	EscalationRequired       bool                 `json:"escalation_required"`
	ImmediateActions         []string             `json:"immediate_actions"`
	PreventiveMeasures       []string             `json:"preventive_measures"`
	ClassificationConfidence float64              `json:"classification_confidence"`
	Warnings                 []string             `json:"warnings,omitempty"`
	Fingerprint              string               `json:"fingerprint,omitempty"`
	ClassifiedAt             time.Time            `json:"classified_at"`
}

// DominantTypes returns the error types present in the result.
func (r *ClassificationResult) DominantTypes() []ErrorType {
	seen := make(map[ErrorType]bool)
	var out []ErrorType
	for _, e := range r.Errors {
		if !seen[e.Type] {
			seen[e.Type] = true
			out = append(out, e.Type)
		}
	}
	return out
}

// Clone returns a deep copy of r. Nil and empty slices keep their identity.
func (r *ClassificationResult) Clone() *ClassificationResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Errors = slices.Clone(r.Errors)
	for i := range c.Errors {
		c.Errors[i].Context = maps.Clone(c.Errors[i].Context)
	}
	c.Severities = slices.Clone(r.Severities)
	for i := range c.Severities {
		c.Severities[i].Adjustments = slices.Clone(c.Severities[i].Adjustments)
	}
	c.RootCauses = slices.Clone(r.RootCauses)
	for i := range c.RootCauses {
		g := &c.RootCauses[i]
		g.ErrorIDs = slices.Clone(g.ErrorIDs)
		g.ContributingFactors = slices.Clone(g.ContributingFactors)
		g.Evidence = slices.Clone(g.Evidence)
		g.Recommendations = slices.Clone(g.Recommendations)
	}
	c.RootCauseSummary.TopFactors = slices.Clone(r.RootCauseSummary.TopFactors)
	c.Routing = slices.Clone(r.Routing)
	for i := range c.Routing {
		c.Routing[i] = c.Routing[i].clone()
	}
	c.RoutingSummary.HandlerDistribution = maps.Clone(r.RoutingSummary.HandlerDistribution)
	c.RoutingSummary.PriorityDistribution = maps.Clone(r.RoutingSummary.PriorityDistribution)
	c.ImmediateActions = slices.Clone(r.ImmediateActions)
	c.PreventiveMeasures = slices.Clone(r.PreventiveMeasures)
	c.Warnings = slices.Clone(r.Warnings)
	return &c
}

func (d RoutingDecision) clone() RoutingDecision {
	d.PrimaryHandler.Capabilities = slices.Clone(d.PrimaryHandler.Capabilities)
	d.SecondaryHandlers = slices.Clone(d.SecondaryHandlers)
	for i := range d.SecondaryHandlers {
		d.SecondaryHandlers[i].Capabilities = slices.Clone(d.SecondaryHandlers[i].Capabilities)
	}
	d.EscalationPath = slices.Clone(d.EscalationPath)
	if d.RetryPolicy != nil {
		p := *d.RetryPolicy
		p.Schedule = slices.Clone(p.Schedule)
		d.RetryPolicy = &p
	}
	return d
}

// RecoveryOutcome is the report an automated executor or specialist sends
// back after acting on a classification.
type RecoveryOutcome struct {
	SessionID        string           `json:"session_id"`
	ClassificationID string           `json:"classification_id"`
	Strategy         RecoveryStrategy `json:"strategy"`
	HandlerID        string           `json:"handler_id,omitempty"`
	ErrorType        ErrorType        `json:"error_type,omitempty"`
	Success          bool             `json:"success"`
	Detail           string           `json:"detail,omitempty"`
	ReportedAt       time.Time        `json:"reported_at"`
}

// AuditEvent is emitted for every classification for compliance logging.
type AuditEvent struct {
	ClassificationID   string               `json:"classification_id"`
	SessionID          string               `json:"session_id"`
	SubjectID          string               `json:"subject_id,omitempty"`
	Status             ClassificationStatus `json:"status"`
	GlobalSeverity     Severity             `json:"global_severity"`
	RecoveryStrategy   RecoveryStrategy     `json:"recovery_strategy"`
	EscalationRequired bool                 `json:"escalation_required"`
	ErrorCount         int                  `json:"error_count"`
	Actions            []string             `json:"actions,omitempty"`
	Warnings           []string             `json:"warnings,omitempty"`
	OccurredAt         time.Time            `json:"occurred_at"`
}

// NewAuditEvent summarizes r for the audit trail.
func NewAuditEvent(r *ClassificationResult) AuditEvent {
	return AuditEvent{
		ClassificationID:   r.ID,
		SessionID:          r.SessionID,
		SubjectID:          r.SubjectID,
		Status:             r.Status,
		GlobalSeverity:     r.GlobalSeverity,
		RecoveryStrategy:   r.RecoveryStrategy,
		EscalationRequired: r.EscalationRequired,
		ErrorCount:         len(r.Errors),
		Actions:            r.ImmediateActions,
		Warnings:           r.Warnings,
		OccurredAt:         r.ClassifiedAt,
	}
}
