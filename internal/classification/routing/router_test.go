package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/triage/internal/core/domain"
)

func classified(id string, typ domain.ErrorType, sev domain.Severity) ClassifiedError {
	return ClassifiedError{
		Record:   domain.ErrorRecord{ID: id, Type: typ},
		Severity: sev,
	}
}

func TestRoute_CategoryHandlers(t *testing.T) {
	r := NewRouter(nil)
	errs := []ClassifiedError{
		classified("e1", domain.TypeTimeout, domain.SeverityHigh),
		classified("e2", domain.TypePipelineBlocked, domain.SeverityCritical),
		classified("e3", domain.TypeUnknown, domain.SeverityLow),
		classified("e4", domain.TypeDependencyFailure, domain.SeverityMedium),
	}

	report, err := r.Route(context.Background(), errs, Capabilities{})
	require.NoError(t, err)
	require.Len(t, report.Decisions, 4)

	want := []string{HandlerRetryExecutor, HandlerPipelineEngineer, HandlerGeneralSpecialist, HandlerCircuitBreaker}
	for i, d := range report.Decisions {
		assert.Equal(t, errs[i].Record.ID, d.ErrorID)
		assert.Equal(t, want[i], d.PrimaryHandler.ID)
		assert.GreaterOrEqual(t, d.Priority, 1)
		assert.LessOrEqual(t, d.Priority, 5)
	}

	retry := report.Decisions[0]
	require.NotNil(t, retry.RetryPolicy)
	assert.Equal(t, 3, retry.RetryPolicy.MaxAttempts)
	assert.Equal(t, []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute}, retry.RetryPolicy.Schedule)
	assert.Nil(t, report.Decisions[1].RetryPolicy)

	assert.Len(t, report.Decisions[1].EscalationPath, 3)
	assert.Empty(t, report.Decisions[2].EscalationPath)
}

func TestRoute_StrategyOverridesCategory(t *testing.T) {
	r := NewRouter(nil)
	ce := classified("e1", domain.TypeTimeout, domain.SeverityCritical)
	ce.Strategy = domain.StrategyEscalationRequired

	report, err := r.Route(context.Background(), []ClassifiedError{ce}, Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, HandlerEscalation, report.Decisions[0].PrimaryHandler.ID)
	assert.Equal(t, domain.HandlerHumanSpecialist, report.Decisions[0].PrimaryHandler.Type)
}

func TestRoute_CapabilitiesFallback(t *testing.T) {
	r := NewRouter(nil)
	errs := []ClassifiedError{classified("e1", domain.TypeTimeout, domain.SeverityHigh)}

	report, err := r.Route(context.Background(), errs, Capabilities{ManualOnly: true})
	require.NoError(t, err)
	d := report.Decisions[0]
	assert.Equal(t, HandlerPlatformEngineer, d.PrimaryHandler.ID)
	assert.Equal(t, domain.HandlerHumanSpecialist, d.PrimaryHandler.Type)
	assert.Nil(t, d.RetryPolicy)

	report, err = r.Route(context.Background(), errs, Capabilities{
		DisabledHandlers: []string{HandlerRetryExecutor, HandlerPlatformEngineer},
	})
	require.NoError(t, err)
	assert.Equal(t, HandlerGeneralSpecialist, report.Decisions[0].PrimaryHandler.ID)
}

func TestPriority(t *testing.T) {
	tests := []struct {
		sev  domain.Severity
		cat  domain.ErrorCategory
		want int
	}{
		{domain.SeverityEmergency, domain.CategoryQuality, 1},
		{domain.SeverityCritical, domain.CategorySecurity, 1},
		{domain.SeverityHigh, domain.CategoryWorker, 2},
		{domain.SeverityHigh, domain.CategorySystemError, 1},
		{domain.SeverityMedium, domain.CategoryQuality, 4},
		{domain.SeverityLow, domain.CategoryQuality, 5},
		{domain.SeverityLow, domain.CategoryOther, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Priority(tt.sev, tt.cat), "%s/%s", tt.sev, tt.cat)
	}
}

func TestEstimate(t *testing.T) {
	est := Estimate(domain.HandlerAutomatedRecovery, domain.SeverityCritical)
	assert.InDelta(t, 3.75, est.MinMinutes, 1e-9)
	assert.InDelta(t, 11.25, est.AvgMinutes, 1e-9)
	assert.InDelta(t, 22.5, est.MaxMinutes, 1e-9)
	assert.InDelta(t, 0.8, est.Confidence, 1e-9)

	est = Estimate(domain.HandlerHumanSpecialist, domain.SeverityLow)
	assert.InDelta(t, 180.0, est.AvgMinutes, 1e-9)
}

func TestConsolidate(t *testing.T) {
	decisions := []domain.RoutingDecision{
		{PrimaryHandler: domain.Handler{Type: domain.HandlerAutomatedRecovery}, Priority: 1,
			EstimatedResolution: domain.ResolutionEstimate{AvgMinutes: 15}},
		{PrimaryHandler: domain.Handler{Type: domain.HandlerAutomatedRecovery}, Priority: 2,
			EstimatedResolution: domain.ResolutionEstimate{AvgMinutes: 11.25}},
		{PrimaryHandler: domain.Handler{Type: domain.HandlerHumanSpecialist}, Priority: 3,
			EstimatedResolution: domain.ResolutionEstimate{AvgMinutes: 90}},
		{PrimaryHandler: domain.Handler{Type: domain.HandlerHumanSpecialist}, Priority: 3,
			EstimatedResolution: domain.ResolutionEstimate{AvgMinutes: 30}},
	}

	sum := Consolidate(decisions)
	assert.Equal(t, 2, sum.HandlerDistribution[domain.HandlerAutomatedRecovery])
	assert.Equal(t, 2, sum.HandlerDistribution[domain.HandlerHumanSpecialist])
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 2}, sum.PriorityDistribution)
	assert.True(t, sum.CoordinationRequired)
	assert.InDelta(t, 135.0, sum.TotalEstimatedMins, 1e-9)

	empty := Consolidate(nil)
	assert.NotNil(t, empty.HandlerDistribution)
	assert.False(t, empty.CoordinationRequired)
	assert.Zero(t, empty.TotalEstimatedMins)
}

func TestBackoff(t *testing.T) {
	b := DefaultBackoff(domain.SeverityLow)
	p := b.Policy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, []time.Duration{
		30 * time.Second, time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute,
	}, p.Schedule)
	assert.Equal(t, 10*time.Minute, b.GetDelay(6))

	assert.Equal(t, 1, DefaultBackoff(domain.SeverityEmergency).MaxAttempts)
	assert.False(t, DefaultBackoff(domain.SeverityEmergency).ShouldRetry(1))
}

func TestFallbackReport(t *testing.T) {
	errs := []ClassifiedError{
		classified("e1", domain.TypeTimeout, domain.SeverityEmergency),
		classified("e2", domain.TypeSLAAtRisk, domain.SeverityMedium),
	}

	report := FallbackReport(errs)
	require.Len(t, report.Decisions, 2)
	for _, d := range report.Decisions {
		assert.Equal(t, HandlerGeneralSpecialist, d.PrimaryHandler.ID)
		assert.Nil(t, d.RetryPolicy)
	}
	assert.Equal(t, 1, report.Decisions[0].Priority)
	assert.Equal(t, 2, report.Summary.HandlerDistribution[domain.HandlerHumanSpecialist])
}

func TestRoute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRouter(nil).Route(ctx, nil, Capabilities{})
	assert.ErrorIs(t, err, context.Canceled)
}
