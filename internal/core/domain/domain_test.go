package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrorSource(t *testing.T) {
	tests := []struct {
		in   string
		want ErrorSource
	}{
		{"sla-timer", SourceSLATimer},
		{"Direct Worker", SourceDirectWorker},
		{"external_system", SourceExternalSystem},
		{"pager", SourceUnknown},
		{"", SourceUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseErrorSource(tt.in), tt.in)
	}
}

func TestParseErrorType(t *testing.T) {
	assert.Equal(t, TypeSLABreach, ParseErrorType("sla-breach"))
	assert.Equal(t, TypeSLABreach, ParseErrorType("time_breach"))
	assert.Equal(t, TypeQualityFailure, ParseErrorType("quality_breach"))
	assert.Equal(t, TypeSLAAtRisk, ParseErrorType("at_risk"))
	assert.Equal(t, TypeUnknown, ParseErrorType("gremlins"))

	for _, typ := range ErrorTypes {
		assert.True(t, typ.Known(), typ)
		assert.NotEmpty(t, typ.Category(), typ)
	}
	assert.False(t, TypeUnknown.Known())
	assert.Equal(t, CategoryOther, TypeUnknown.Category())
}

func TestSeverityOrdering(t *testing.T) {
	for i, s := range Severities {
		assert.Equal(t, i+1, s.Rank())
		assert.Equal(t, s, SeverityFromRank(i+1))
	}
	assert.Equal(t, SeverityLow, SeverityFromRank(-3))
	assert.Equal(t, SeverityEmergency, SeverityFromRank(9))

	assert.Equal(t, SeverityEmergency, MaxSeverity(SeverityCritical, SeverityEmergency))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityHigh, SeverityLow))
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))

	sev, err := ParseSeverity("CRITICAL")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, sev)

	_, err = ParseSeverity("breached")
	assert.Error(t, err)
}

func TestRecoveryStrategyEscalation(t *testing.T) {
	order := []RecoveryStrategy{
		StrategyNoAction,
		StrategyAutomaticRetry,
		StrategySystemRestart,
		StrategyRollbackRecovery,
		StrategyManualIntervention,
		StrategyHumanHandoff,
		StrategyEscalationRequired,
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Escalation(), order[i-1].Escalation(), order[i])
	}

	s, ok := ParseRecoveryStrategy("human-handoff")
	assert.True(t, ok)
	assert.Equal(t, StrategyHumanHandoff, s)

	_, ok = ParseRecoveryStrategy("pray")
	assert.False(t, ok)
}

func TestErrorRecord_ContextHelpers(t *testing.T) {
	r := ErrorRecord{
		Description: "worker crashed",
		Context: map[string]any{
			"agent_id":    "agent-7",
			"error_count": float64(4),
			"empty":       "",
		},
	}

	v, ok := r.ContextString("agent_id")
	assert.True(t, ok)
	assert.Equal(t, "agent-7", v)

	v, ok = r.ContextString("error_count")
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	_, ok = r.ContextString("empty")
	assert.False(t, ok)
	_, ok = r.ContextString("missing")
	assert.False(t, ok)

	assert.False(t, r.MentionsEscalation())
	r.Context["note"] = "Escalate to the on-call lead"
	assert.True(t, r.MentionsEscalation())
}

func TestClassificationResult_JSONRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	in := &ClassificationResult{
		ID:        "c-1",
		SessionID: "s-1",
		SubjectID: "emp-1",
		Success:   true,
		Status:    StatusCompleted,
		Errors: []ErrorRecord{{
			ID:          "e-1",
			Source:      SourceDirectWorker,
			Type:        TypeTimeout,
			Severity:    SeverityHigh,
			Description: "worker stalled",
			Timestamp:   at,
			Context:     map[string]any{"agent_id": "a-1", "duration": 42.5, "retried": true},
		}},
		Severities: []SeverityAssessment{{
			ErrorID:            "e-1",
			BaseSeverity:       SeverityHigh,
			ContextualSeverity: SeverityCritical,
			Confidence:         0.9,
			Impact:             Impact{Pipeline: "delayed", Business: "high", User: "executive_visible", System: "normal"},
			Adjustments:        []string{"subject_priority=executive:+1"},
		}},
		RootCauses: []RootCauseAnalysis{{
			Group:           GroupKey{Source: SourceDirectWorker, Type: TypeTimeout},
			ErrorIDs:        []string{"e-1"},
			PrimaryCause:    "Operation timeout",
			Evidence:        []string{"agent_id: a-1"},
			ConfidenceLevel: 0.8,
			Recommendations: []string{"Review worker timeouts"},
		}},
		RootCauseSummary: RootCauseSummary{MostFrequentCause: "Operation timeout", GroupCount: 1},
		Routing: []RoutingDecision{{
			ErrorID:           "e-1",
			PrimaryHandler:    Handler{Type: HandlerAutomatedRecovery, ID: "retry-executor", Capabilities: []string{"retry"}},
			SecondaryHandlers: []Handler{{Type: HandlerAutomatedRecovery, ID: "audit-log"}},
			EscalationPath:    []EscalationStep{{Level: 1, TargetRole: "team-lead", TimeoutMinutes: 15}},
			Priority:          1,
			EstimatedResolution: ResolutionEstimate{
				MinMinutes: 3.75, MaxMinutes: 22.5, AvgMinutes: 11.25, Confidence: 0.8,
			},
			RetryPolicy: &RetryPolicy{
				MaxAttempts:  2,
				InitialDelay: 30 * time.Second,
				MaxDelay:     10 * time.Minute,
				Schedule:     []time.Duration{30 * time.Second, time.Minute},
			},
		}},
		RoutingSummary: RoutingSummary{
			HandlerDistribution:  map[HandlerType]int{HandlerAutomatedRecovery: 1},
			PriorityDistribution: map[int]int{1: 1},
			TotalEstimatedMins:   11.25,
		},
		GlobalSeverity:           SeverityCritical,
		RecoveryStrategy:         StrategyHumanHandoff,
		EscalationRequired:       true,
		ImmediateActions:         []string{"Notify the on-call team lead"},
		PreventiveMeasures:       []string{"Review worker timeouts"},
		ClassificationConfidence: 0.85,
		Warnings:                 []string{"strategy: conflict"},
		Fingerprint:              "00ff",
		ClassifiedAt:             at,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ClassificationResult
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, &out)

	// Field names are stable snake_case.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"session_id", "global_severity", "recovery_strategy", "escalation_required",
		"immediate_actions", "preventive_measures", "classification_confidence",
	} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "human_handoff", raw["recovery_strategy"])
}

func TestNewAuditEvent(t *testing.T) {
	res := &ClassificationResult{
		ID:                 "c-9",
		SessionID:          "s-9",
		Status:             StatusDegraded,
		GlobalSeverity:     SeverityHigh,
		RecoveryStrategy:   StrategyManualIntervention,
		EscalationRequired: true,
		Errors:             make([]ErrorRecord, 2),
		ImmediateActions:   []string{"act"},
	}
	ev := NewAuditEvent(res)
	assert.Equal(t, "c-9", ev.ClassificationID)
	assert.Equal(t, 2, ev.ErrorCount)
	assert.Equal(t, StatusDegraded, ev.Status)
	assert.Equal(t, []string{"act"}, ev.Actions)
}
