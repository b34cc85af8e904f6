package engine

import (
	"fmt"
	"slices"

	"github.com/vietddude/triage/internal/classification/metrics"
	"github.com/vietddude/triage/internal/classification/rootcause"
	"github.com/vietddude/triage/internal/classification/routing"
	"github.com/vietddude/triage/internal/classification/severity"
	"github.com/vietddude/triage/internal/core/domain"
)

// escalationCount is the record count above which a session always escalates.
const escalationCount = 3

// defaultConfidence is used when no stage reported a confidence.
const defaultConfidence = 0.7

var genericPreventive = []string{
	"Review monitoring thresholds for the affected stage",
	"Record the incident for trend analysis",
}

// consolidate fills the session-level fields of the result from the stage outputs.
func (p *pipelineRun) consolidate(
	records []domain.ErrorRecord,
	sev *severity.Report,
	rc *rootcause.Report,
	route *routing.Report,
	outcomes []*domain.RecoveryOutcome,
) {
	res := p.res
	res.Errors = records
	res.Severities = sev.Assessments
	res.RootCauses = rc.Groups
	res.RootCauseSummary = rc.Summary
	res.Routing = route.Decisions
	res.RoutingSummary = route.Summary
	res.GlobalSeverity = sev.Global
	if res.GlobalSeverity == "" {
		res.GlobalSeverity = domain.SeverityLow
	}

	res.RecoveryStrategy = p.strategy(records, sev.Global, route, outcomes)
	res.EscalationRequired = escalationRequired(records, sev.Global)
	res.ImmediateActions = immediateActions(records, sev.Global)
	res.PreventiveMeasures = preventiveMeasures(records, rc)

	res.ClassificationConfidence = defaultConfidence
	if len(p.confidences) > 0 {
		var sum float64
		for _, c := range p.confidences {
			sum += c
		}
		res.ClassificationConfidence = min(max(sum/float64(len(p.confidences)), 0), 1)
	}
	emptyLists(res)
}

// strategy applies the severity rule, then the dominant-type rule, then the
// router's verdict. When the severity and type rules disagree the more
// escalated strategy wins.
func (p *pipelineRun) strategy(
	records []domain.ErrorRecord,
	global domain.Severity,
	route *routing.Report,
	outcomes []*domain.RecoveryOutcome,
) domain.RecoveryStrategy {
	if len(records) == 0 {
		return domain.StrategyNoAction
	}

	dominant := dominantType(records)
	candidate, ok := typeStrategy(dominant)
	if p.req.Context != nil {
		if pinned, pok := domain.ParseRecoveryStrategy(p.req.Context.RecoveryStrategy); pok {
			candidate, ok = pinned, true
		}
	}
	if !ok {
		candidate = routerStrategy(route)
	}

	chosen := candidate
	if bySeverity, sok := severityStrategy(global); sok {
		chosen = bySeverity
		if ok && candidate != bySeverity {
			if candidate.Escalation() > bySeverity.Escalation() {
				chosen = candidate
			}
			metrics.StrategyConflicts.Inc()
			p.res.Warnings = append(p.res.Warnings, fmt.Sprintf(
				"strategy: severity rule chose %s, %s rule chose %s; using %s",
				bySeverity, dominant, candidate, chosen))
			p.engine.log.Warn("Recovery strategy rules disagree",
				"session", p.req.SessionID,
				"severity_rule", bySeverity,
				"type_rule", candidate,
				"chosen", chosen,
			)
		}
	}

	if chosen == domain.StrategyAutomaticRetry && rootcause.LastRetryFailed(outcomes, dominant) {
		p.res.Warnings = append(p.res.Warnings, fmt.Sprintf(
			"strategy: last automatic retry for %s failed; using %s",
			dominant, domain.StrategyManualIntervention))
		chosen = domain.StrategyManualIntervention
	}
	return chosen
}

func severityStrategy(s domain.Severity) (domain.RecoveryStrategy, bool) {
	switch s {
	case domain.SeverityEmergency:
		return domain.StrategyEscalationRequired, true
	case domain.SeverityCritical:
		return domain.StrategyHumanHandoff, true
	case domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		return "", false
	}
	return "", false
}

func typeStrategy(t domain.ErrorType) (domain.RecoveryStrategy, bool) {
	switch t {
	case domain.TypeTimeout, domain.TypeWorkerFailure, domain.TypeExcessiveErrors,
		domain.TypeProcessingError, domain.TypeConnectivityError, domain.TypeDependencyFailure:
		return domain.StrategyAutomaticRetry, true
	case domain.TypeSLABreach:
		return domain.StrategyEscalationRequired, true
	case domain.TypeQualityFailure, domain.TypeManualReview, domain.TypeValidationFailure,
		domain.TypePipelineBlocked, domain.TypeAuthenticationError:
		return domain.StrategyManualIntervention, true
	case domain.TypeSystemError, domain.TypeResourceExhaustion:
		return domain.StrategySystemRestart, true
	case domain.TypeConfigurationError:
		return domain.StrategyRollbackRecovery, true
	case domain.TypeSLAAtRisk, domain.TypeUnknown:
		return "", false
	}
	return "", false
}

// routerStrategy follows the majority primary handler type.
func routerStrategy(route *routing.Report) domain.RecoveryStrategy {
	dist := route.Summary.HandlerDistribution
	if dist[domain.HandlerAutomatedRecovery] > dist[domain.HandlerHumanSpecialist] {
		return domain.StrategyAutomaticRetry
	}
	return domain.StrategyManualIntervention
}

// dominantType is the most frequent type; ties go to the first seen.
func dominantType(records []domain.ErrorRecord) domain.ErrorType {
	counts := make(map[domain.ErrorType]int)
	var best domain.ErrorType
	for _, r := range records {
		counts[r.Type]++
		if best == "" || counts[r.Type] > counts[best] {
			best = r.Type
		}
	}
	return best
}

func escalationRequired(records []domain.ErrorRecord, global domain.Severity) bool {
	if global.AtLeast(domain.SeverityCritical) || len(records) > escalationCount {
		return true
	}
	for i := range records {
		if records[i].MentionsEscalation() {
			return true
		}
	}
	return false
}

func immediateActions(records []domain.ErrorRecord, global domain.Severity) []string {
	if len(records) == 0 {
		return []string{}
	}

	var actions []string
	switch global {
	case domain.SeverityEmergency:
		actions = append(actions,
			"Page the incident commander",
			"Pause automated processing for the session")
	case domain.SeverityCritical:
		actions = append(actions,
			"Notify the on-call team lead",
			"Open an incident ticket")
	case domain.SeverityHigh:
		actions = append(actions, "Assign a senior engineer to the session")
	case domain.SeverityMedium, domain.SeverityLow:
	}

	for _, r := range records {
		actions = appendUnique(actions, typeAction(r.Type))
	}
	return actions
}

func typeAction(t domain.ErrorType) string {
	switch t {
	case domain.TypePipelineBlocked:
		return "Identify and clear the blocking stage dependency"
	case domain.TypeWorkerFailure:
		return "Restart the failed worker and capture its error log"
	case domain.TypeTimeout:
		return "Check stalled workers and retry the stuck task"
	case domain.TypeSLABreach:
		return "Notify stakeholders of the SLA breach and re-plan the timeline"
	case domain.TypeSLAAtRisk:
		return "Reprioritize the at-risk stage"
	case domain.TypeQualityFailure:
		return "Send the rejected output back for quality review"
	case domain.TypeManualReview:
		return "Assign a reviewer to the pending quality gate"
	case domain.TypeExcessiveErrors:
		return "Inspect the worker's recent errors for a common pattern"
	case domain.TypeValidationFailure:
		return "Correct the invalid input data"
	case domain.TypeSystemError, domain.TypeResourceExhaustion:
		return "Check host resources and restart the affected service"
	case domain.TypeDependencyFailure, domain.TypeConnectivityError:
		return "Verify the external dependency is reachable"
	case domain.TypeAuthenticationError:
		return "Rotate or refresh the failing credentials"
	case domain.TypeConfigurationError:
		return "Compare the active configuration with the last known good version"
	case domain.TypeProcessingError, domain.TypeUnknown:
		return "Investigate the reported fault"
	}
	return "Investigate the reported fault"
}

func preventiveMeasures(records []domain.ErrorRecord, rc *rootcause.Report) []string {
	if len(records) == 0 {
		return []string{}
	}
	var measures []string
	for _, g := range rc.Groups {
		for _, rec := range g.Recommendations {
			measures = appendUnique(measures, rec)
		}
	}
	if len(measures) == 0 {
		return slices.Clone(genericPreventive)
	}
	return measures
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
