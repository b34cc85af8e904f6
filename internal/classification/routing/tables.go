package routing

import "github.com/vietddude/triage/internal/core/domain"

// Handler ids known to the downstream executors.
const (
	HandlerRetryExecutor     = "retry-executor"
	HandlerRestartExecutor   = "restart-executor"
	HandlerRollbackExecutor  = "rollback-executor"
	HandlerCircuitBreaker    = "circuit-breaker"
	HandlerOperations        = "operations-specialist"
	HandlerHandoff           = "handoff-specialist"
	HandlerEscalation        = "escalation-manager"
	HandlerPipelineEngineer  = "pipeline-engineer"
	HandlerSLACoordinator    = "sla-coordinator"
	HandlerQualityReviewer   = "quality-reviewer"
	HandlerSecurity          = "security-specialist"
	HandlerPlatformEngineer  = "platform-engineer"
	HandlerDataSteward       = "data-steward"
	HandlerGeneralSpecialist = "general-specialist"

	HandlerAuditLog     = "audit-log"
	HandlerMonitoring   = "monitoring"
	HandlerNotification = "stakeholder-notification"
)

func automated(id string, caps ...string) domain.Handler {
	return domain.Handler{Type: domain.HandlerAutomatedRecovery, ID: id, Capabilities: caps}
}

func human(id string, caps ...string) domain.Handler {
	return domain.Handler{Type: domain.HandlerHumanSpecialist, ID: id, Capabilities: caps}
}

// strategyHandler maps an attached recovery strategy to its handler.
func strategyHandler(s domain.RecoveryStrategy) (domain.Handler, bool) {
	switch s {
	case domain.StrategyAutomaticRetry:
		return automated(HandlerRetryExecutor, "retry", "backoff"), true
	case domain.StrategySystemRestart:
		return automated(HandlerRestartExecutor, "restart", "health_check"), true
	case domain.StrategyRollbackRecovery:
		return automated(HandlerRollbackExecutor, "rollback", "state_restore"), true
	case domain.StrategyManualIntervention:
		return human(HandlerOperations, "diagnosis", "manual_fix"), true
	case domain.StrategyHumanHandoff:
		return human(HandlerHandoff, "case_ownership", "manual_fix"), true
	case domain.StrategyEscalationRequired:
		return human(HandlerEscalation, "escalation", "coordination"), true
	case domain.StrategyNoAction:
		return domain.Handler{}, false
	}
	return domain.Handler{}, false
}

// categoryHandler maps an error category to its default handler.
func categoryHandler(c domain.ErrorCategory) (domain.Handler, bool) {
	switch c {
	case domain.CategoryWorker:
		return automated(HandlerRetryExecutor, "retry", "backoff"), true
	case domain.CategorySystemError:
		return automated(HandlerRestartExecutor, "restart", "health_check"), true
	case domain.CategoryExternal:
		return automated(HandlerCircuitBreaker, "circuit_breaker", "retry"), true
	case domain.CategoryPipeline:
		return human(HandlerPipelineEngineer, "dependency_resolution"), true
	case domain.CategorySLA:
		return human(HandlerSLACoordinator, "prioritization", "capacity"), true
	case domain.CategoryQuality:
		return human(HandlerQualityReviewer, "quality_review"), true
	case domain.CategorySecurity:
		return human(HandlerSecurity, "credentials", "access_control"), true
	case domain.CategoryConfiguration:
		return human(HandlerPlatformEngineer, "configuration"), true
	case domain.CategoryValidation:
		return human(HandlerDataSteward, "data_correction"), true
	case domain.CategoryOther:
		return domain.Handler{}, false
	}
	return domain.Handler{}, false
}

// humanFallback is the specialist used when an automated handler is unavailable.
func humanFallback(c domain.ErrorCategory) domain.Handler {
	switch c {
	case domain.CategoryWorker, domain.CategorySystemError, domain.CategoryExternal:
		return human(HandlerPlatformEngineer, "diagnosis", "manual_fix")
	}
	return genericHandler()
}

func genericHandler() domain.Handler {
	return human(HandlerGeneralSpecialist, "triage")
}

// escalationLadder is keyed by severity.
func escalationLadder(sev domain.Severity) []domain.EscalationStep {
	switch sev {
	case domain.SeverityEmergency:
		return []domain.EscalationStep{
			{Level: 1, TargetRole: "incident-commander", TimeoutMinutes: 5},
			{Level: 2, TargetRole: "executive-office", TimeoutMinutes: 15},
			{Level: 3, TargetRole: "executive-team", TimeoutMinutes: 30},
		}
	case domain.SeverityCritical:
		return []domain.EscalationStep{
			{Level: 1, TargetRole: "team-lead", TimeoutMinutes: 15},
			{Level: 2, TargetRole: "manager", TimeoutMinutes: 30},
			{Level: 3, TargetRole: "senior-management", TimeoutMinutes: 60},
		}
	case domain.SeverityHigh:
		return []domain.EscalationStep{
			{Level: 1, TargetRole: "senior-engineer", TimeoutMinutes: 30},
			{Level: 2, TargetRole: "team-lead", TimeoutMinutes: 60},
		}
	case domain.SeverityMedium, domain.SeverityLow:
		return []domain.EscalationStep{}
	}
	return []domain.EscalationStep{}
}

// basePriority is the severity-derived rank, 1 most urgent.
func basePriority(sev domain.Severity) int {
	switch sev {
	case domain.SeverityEmergency, domain.SeverityCritical:
		return 1
	case domain.SeverityHigh:
		return 2
	case domain.SeverityMedium:
		return 3
	case domain.SeverityLow:
		return 4
	}
	return 3
}

func categoryPriorityDelta(c domain.ErrorCategory) int {
	switch c {
	case domain.CategorySecurity, domain.CategorySystemError:
		return -1
	case domain.CategoryQuality:
		return 1
	}
	return 0
}

// baseInterval is min/avg/max minutes per handler type.
func baseInterval(t domain.HandlerType) (minM, avgM, maxM, conf float64) {
	switch t {
	case domain.HandlerAutomatedRecovery:
		return 5, 15, 30, 0.8
	case domain.HandlerHumanSpecialist:
		return 30, 90, 240, 0.6
	}
	return 30, 90, 240, 0.5
}

func severityMultiplier(sev domain.Severity) float64 {
	switch sev {
	case domain.SeverityEmergency:
		return 0.5
	case domain.SeverityCritical:
		return 0.75
	case domain.SeverityHigh:
		return 1.0
	case domain.SeverityMedium:
		return 1.5
	case domain.SeverityLow:
		return 2.0
	}
	return 1.0
}
