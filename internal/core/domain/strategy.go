package domain

// RecoveryStrategy is the session-level plan handed to downstream executors.
type RecoveryStrategy string

const (
	StrategyAutomaticRetry     RecoveryStrategy = "automatic_retry"
	StrategyManualIntervention RecoveryStrategy = "manual_intervention"
	StrategyEscalationRequired RecoveryStrategy = "escalation_required"
	StrategyRollbackRecovery   RecoveryStrategy = "rollback_recovery"
	StrategyHumanHandoff       RecoveryStrategy = "human_handoff"
	StrategySystemRestart      RecoveryStrategy = "system_restart"
	StrategyNoAction           RecoveryStrategy = "no_action"
)

// ParseRecoveryStrategy returns the strategy and whether s named one.
func ParseRecoveryStrategy(s string) (RecoveryStrategy, bool) {
	switch st := RecoveryStrategy(normalize(s)); st {
	case StrategyAutomaticRetry, StrategyManualIntervention, StrategyEscalationRequired,
		StrategyRollbackRecovery, StrategyHumanHandoff, StrategySystemRestart, StrategyNoAction:
		return st, true
	}
	return "", false
}

// Escalation orders strategies by how much human attention they pull in.
// Higher values win when two rules disagree.
func (s RecoveryStrategy) Escalation() int {
	switch s {
	case StrategyNoAction:
		return 0
	case StrategyAutomaticRetry:
		return 1
	case StrategySystemRestart:
		return 2
	case StrategyRollbackRecovery:
		return 3
	case StrategyManualIntervention:
		return 4
	case StrategyHumanHandoff:
		return 5
	case StrategyEscalationRequired:
		return 6
	}
	return 0
}

// HandlerType distinguishes machine recovery from people.
type HandlerType string

const (
	HandlerAutomatedRecovery HandlerType = "automated_recovery"
	HandlerHumanSpecialist   HandlerType = "human_specialist"
)
