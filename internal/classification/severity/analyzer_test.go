package severity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/triage/internal/core/domain"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(DefaultTable(), nil)
	require.NoError(t, err)
	return a
}

func records(types ...domain.ErrorType) []domain.ErrorRecord {
	out := make([]domain.ErrorRecord, len(types))
	for i, typ := range types {
		out[i] = domain.ErrorRecord{ID: string(typ), Type: typ}
	}
	return out
}

func TestBaseSeverity(t *testing.T) {
	tests := []struct {
		typ  domain.ErrorType
		want domain.Severity
	}{
		{domain.TypePipelineBlocked, domain.SeverityCritical},
		{domain.TypeSLABreach, domain.SeverityCritical},
		{domain.TypeTimeout, domain.SeverityHigh},
		{domain.TypeQualityFailure, domain.SeverityHigh},
		{domain.TypeSLAAtRisk, domain.SeverityMedium},
		{domain.TypeConnectivityError, domain.SeverityLow},
		{domain.TypeUnknown, domain.SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseSeverity(tt.typ), tt.typ)
	}
}

func TestAnalyze_NoContext(t *testing.T) {
	a := newAnalyzer(t)

	report, err := a.Analyze(context.Background(), records(domain.TypeTimeout, domain.TypeConnectivityError), nil)
	require.NoError(t, err)
	require.Len(t, report.Assessments, 2)

	timeout := report.Assessments[0]
	assert.Equal(t, domain.SeverityHigh, timeout.ContextualSeverity)
	assert.Empty(t, timeout.Adjustments)
	assert.InDelta(t, 0.7, timeout.Confidence, 1e-9)

	// connectivity is not a well-known type: no bonus
	assert.InDelta(t, 0.6, report.Assessments[1].Confidence, 1e-9)

	assert.Equal(t, domain.SeverityHigh, report.Global)
	assert.InDelta(t, 0.65, report.Confidence, 1e-9)
	assert.NotEmpty(t, report.Recommendations)
}

func TestAnalyze_ExecutivePriorityRaisesSeverity(t *testing.T) {
	a := newAnalyzer(t)

	report, err := a.Analyze(context.Background(),
		records(domain.TypeTimeout, domain.TypeTimeout, domain.TypeTimeout),
		&domain.SituationalContext{SubjectPriority: "Executive"})
	require.NoError(t, err)

	for _, as := range report.Assessments {
		assert.Equal(t, domain.SeverityHigh, as.BaseSeverity)
		assert.Equal(t, domain.SeverityCritical, as.ContextualSeverity)
		assert.Equal(t, []string{"subject_priority=Executive:+1"}, as.Adjustments)
		assert.Equal(t, "executive_visible", as.Impact.User)
		assert.InDelta(t, 0.9, as.Confidence, 1e-9)
	}
	assert.Equal(t, domain.SeverityCritical, report.Global)
}

func TestAnalyze_ContextualNeverBelowBase(t *testing.T) {
	a := newAnalyzer(t)
	situations := []*domain.SituationalContext{
		nil,
		{SubjectPriority: "intern"},
		{BusinessImpact: "critical", TimeSensitivity: "critical"},
		{SubjectPriority: "high"},
		{SystemLoad: 0.95},
	}

	for _, sit := range situations {
		report, err := a.Analyze(context.Background(), records(domain.ErrorTypes...), sit)
		require.NoError(t, err)

		global := domain.SeverityLow
		for _, as := range report.Assessments {
			assert.True(t, as.ContextualSeverity.AtLeast(as.BaseSeverity))
			assert.GreaterOrEqual(t, as.Confidence, 0.0)
			assert.LessOrEqual(t, as.Confidence, 1.0)
			global = domain.MaxSeverity(global, as.ContextualSeverity)
		}
		assert.Equal(t, global, report.Global)
	}
}

func TestAnalyze_StackedAdjustmentsClampAtEmergency(t *testing.T) {
	a := newAnalyzer(t)

	report, err := a.Analyze(context.Background(), records(domain.TypeSLABreach),
		&domain.SituationalContext{SubjectPriority: "executive", BusinessImpact: "critical", TimeSensitivity: "critical"})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityEmergency, report.Global)
	assert.Len(t, report.Assessments[0].Adjustments, 3)
}

func TestAnalyze_HalfStepRoundsUp(t *testing.T) {
	a := newAnalyzer(t)

	report, err := a.Analyze(context.Background(), records(domain.TypeSLAAtRisk),
		&domain.SituationalContext{SubjectPriority: "high"})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, report.Assessments[0].ContextualSeverity)
}

func TestAnalyze_Empty(t *testing.T) {
	a := newAnalyzer(t)

	report, err := a.Analyze(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Assessments)
	assert.Equal(t, domain.SeverityLow, report.Global)
	assert.Zero(t, report.Confidence)
	assert.Empty(t, report.Recommendations)
}

func TestAnalyze_Cancelled(t *testing.T) {
	a := newAnalyzer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, records(domain.TypeTimeout), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAnalyzer_RejectsInvalidTable(t *testing.T) {
	table := DefaultTable()
	table.SubjectPriority = map[string]float64{"executive": -1}
	_, err := NewAnalyzer(table, nil)
	assert.ErrorIs(t, err, ErrInvalidTable)

	table = DefaultTable()
	table.BaseConfidence = Weight(1.5)
	_, err = NewAnalyzer(table, nil)
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestNewAnalyzer_FillsMissingSections(t *testing.T) {
	a, err := NewAnalyzer(ScoringTable{}, nil)
	require.NoError(t, err)
	assert.Equal(t, TableVersion, a.Table().Version)
	assert.Equal(t, 1.0, a.Table().SubjectPriority["executive"])
	require.NotNil(t, a.Table().NoContextPenalty)
	assert.InDelta(t, 0.2, *a.Table().NoContextPenalty, 1e-9)
}

func TestNewAnalyzer_KeepsExplicitZeroWeights(t *testing.T) {
	table := DefaultTable()
	table.NoContextPenalty = Weight(0)
	table.KnownTypeBonus = Weight(0)
	a, err := NewAnalyzer(table, nil)
	require.NoError(t, err)

	report, err := a.Analyze(context.Background(), records(domain.TypeTimeout), nil)
	require.NoError(t, err)
	require.Len(t, report.Assessments, 1)
	assert.InDelta(t, 0.8, report.Assessments[0].Confidence, 1e-9)
}
