// Package severity assigns base and contextual severity to error records.
package severity

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/vietddude/triage/internal/core/domain"
)

// Report is the analyzer output for one batch.
type Report struct {
	Assessments     []domain.SeverityAssessment `json:"assessments"`
	Global          domain.Severity             `json:"global"`
	Confidence      float64                     `json:"confidence"`
	Recommendations []string                    `json:"recommendations"`
}

// Analyzer scores error records against a ScoringTable.
type Analyzer struct {
	table ScoringTable
	log   *slog.Logger
}

// NewAnalyzer validates table and returns an analyzer using it.
func NewAnalyzer(table ScoringTable, log *slog.Logger) (*Analyzer, error) {
	table = table.withDefaults()
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{table: table, log: log}, nil
}

// Table returns the active scoring table.
func (a *Analyzer) Table() ScoringTable {
	return a.table
}

// Analyze scores every record and aggregates the session severity.
func (a *Analyzer) Analyze(
	ctx context.Context,
	records []domain.ErrorRecord,
	situation *domain.SituationalContext,
) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		Assessments: make([]domain.SeverityAssessment, 0, len(records)),
		Global:      domain.SeverityLow,
	}
	var confSum float64
	for i := range records {
		as := a.assess(&records[i], situation)
		report.Assessments = append(report.Assessments, as)
		report.Global = domain.MaxSeverity(report.Global, as.ContextualSeverity)
		confSum += as.Confidence
	}
	if len(records) > 0 {
		report.Confidence = confSum / float64(len(records))
	}
	report.Recommendations = Recommendations(report.Global, len(records))

	a.log.Debug("Severity analysis complete",
		"errors", len(records),
		"global", report.Global,
		"table", a.table.Version,
	)
	return report, nil
}

func (a *Analyzer) assess(
	r *domain.ErrorRecord,
	situation *domain.SituationalContext,
) domain.SeverityAssessment {
	base := BaseSeverity(r.Type)
	score := float64(base.Rank())
	var adjustments []string

	if !situation.IsZero() {
		for _, adj := range []struct {
			name  string
			value string
			table map[string]float64
		}{
			{"subject_priority", situation.SubjectPriority, a.table.SubjectPriority},
			{"business_impact", situation.BusinessImpact, a.table.BusinessImpact},
			{"time_sensitivity", situation.TimeSensitivity, a.table.TimeSensitivity},
		} {
			if w := lookup(adj.table, adj.value); w > 0 {
				score += w
				adjustments = append(adjustments, fmt.Sprintf("%s=%s:+%g", adj.name, adj.value, w))
			}
		}
	}

	contextual := base
	if len(adjustments) > 0 {
		contextual = domain.MaxSeverity(base, domain.SeverityFromRank(roundHalfUp(score)))
	}

	conf := *a.table.BaseConfidence
	if situation.IsZero() {
		conf -= *a.table.NoContextPenalty
	}
	if wellKnown(r.Type) {
		conf += *a.table.KnownTypeBonus
	}

	return domain.SeverityAssessment{
		ErrorID:            r.ID,
		BaseSeverity:       base,
		ContextualSeverity: contextual,
		Confidence:         clamp01(conf),
		Impact:             impactOf(r, contextual, situation),
		Adjustments:        adjustments,
	}
}

// roundHalfUp rounds to the nearest rank, ties toward the more severe one.
func roundHalfUp(score float64) int {
	return int(math.Floor(score + 0.5))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func impactOf(
	r *domain.ErrorRecord,
	sev domain.Severity,
	situation *domain.SituationalContext,
) domain.Impact {
	imp := domain.Impact{
		Pipeline: "minimal",
		Business: "low",
		User:     "none",
		System:   "normal",
	}

	switch r.Type.Category() {
	case domain.CategoryPipeline:
		imp.Pipeline = "blocked"
	case domain.CategoryWorker, domain.CategorySLA:
		imp.Pipeline = "delayed"
	case domain.CategoryQuality, domain.CategoryValidation:
		imp.Pipeline = "degraded"
	case domain.CategorySystemError, domain.CategoryExternal, domain.CategoryConfiguration:
		imp.Pipeline = "at_risk"
	case domain.CategorySecurity, domain.CategoryOther:
	}

	if sev.AtLeast(domain.SeverityCritical) {
		imp.Business = "high"
	} else if sev.AtLeast(domain.SeverityHigh) {
		imp.Business = "medium"
	}
	if situation != nil && situation.BusinessImpact != "" {
		imp.Business = situation.BusinessImpact
	}

	if sev.AtLeast(domain.SeverityHigh) {
		imp.User = "delayed_outcome"
	}
	if situation != nil && situation.SubjectPriority == "executive" {
		imp.User = "executive_visible"
	}

	if situation != nil && situation.SystemLoad > 0.8 {
		imp.System = "overloaded"
	} else if r.Type == domain.TypeResourceExhaustion || r.Type == domain.TypeSystemError {
		imp.System = "strained"
	}
	return imp
}

// Recommendations returns the templated actions for a severity tier.
func Recommendations(global domain.Severity, count int) []string {
	if count == 0 {
		return nil
	}
	switch global {
	case domain.SeverityEmergency:
		return []string{
			"Activate incident response",
			"Notify executive stakeholders immediately",
			"Freeze further pipeline progression for the session",
		}
	case domain.SeverityCritical:
		return []string{
			"Page the on-call team lead",
			"Assign a dedicated specialist to the session",
		}
	case domain.SeverityHigh:
		return []string{
			"Prioritize resolution within the current shift",
			"Monitor affected stages closely",
		}
	case domain.SeverityMedium:
		return []string{"Schedule review during normal operations"}
	case domain.SeverityLow:
		return []string{"Track for trend analysis"}
	}
	return nil
}
