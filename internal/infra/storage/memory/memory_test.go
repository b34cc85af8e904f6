package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/triage/internal/core/domain"
)

func TestMemoryStorage_Sessions(t *testing.T) {
	s, err := NewMemoryStorage(0, 0)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	s.PutSession(&domain.Session{ID: "s1", SubjectID: "emp-1"})
	sess, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", sess.SubjectID)
}

func TestMemoryStorage_HistoryNewestFirstAndBounded(t *testing.T) {
	s, err := NewMemoryStorage(0, 3)
	require.NoError(t, err)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, s.Append(ctx, "s1", &domain.ClassificationResult{ID: fmt.Sprintf("c%d", i)}))
	}

	recent, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "c4", recent[0].ID)
	assert.Equal(t, "c2", recent[2].ID)

	recent, err = s.Recent(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	recent, err = s.Recent(ctx, "other", 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryStorage_HistoryIsIsolatedFromCallers(t *testing.T) {
	s, err := NewMemoryStorage(0, 0)
	require.NoError(t, err)
	ctx := context.Background()

	res := &domain.ClassificationResult{
		ID:               "c1",
		RecoveryStrategy: domain.StrategyAutomaticRetry,
		ImmediateActions: []string{"Restart the failed worker"},
		Errors: []domain.ErrorRecord{
			{ID: "e1", Context: map[string]any{"stage": "review"}},
		},
		Routing: []domain.RoutingDecision{
			{ErrorID: "e1", RetryPolicy: &domain.RetryPolicy{MaxAttempts: 3}},
		},
	}
	require.NoError(t, s.Append(ctx, "s1", res))
	res.RecoveryStrategy = domain.StrategyNoAction

	recent, err := s.Recent(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	got := recent[0]
	assert.Equal(t, domain.StrategyAutomaticRetry, got.RecoveryStrategy)

	got.ImmediateActions[0] = "changed"
	got.Errors[0].Context["stage"] = "changed"
	got.Routing[0].RetryPolicy.MaxAttempts = 0

	again, err := s.Recent(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, "Restart the failed worker", again[0].ImmediateActions[0])
	assert.Equal(t, "review", again[0].Errors[0].Context["stage"])
	assert.Equal(t, 3, again[0].Routing[0].RetryPolicy.MaxAttempts)
	assert.NotSame(t, got, again[0])
}

func TestMemoryStorage_Outcomes(t *testing.T) {
	s, err := NewMemoryStorage(0, 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.RecordOutcome(ctx, &domain.RecoveryOutcome{SessionID: "s1", Success: false}))
	require.NoError(t, s.RecordOutcome(ctx, &domain.RecoveryOutcome{SessionID: "s1", Success: true}))

	outcomes, err := s.Outcomes(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Success)
}

func TestMemoryStorage_EvictsLeastRecentSession(t *testing.T) {
	s, err := NewMemoryStorage(2, 0)
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, s.Append(ctx, id, &domain.ClassificationResult{ID: id}))
	}

	recent, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	recent, err = s.Recent(ctx, "s3", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestMemoryStorage_ConcurrentAppends(t *testing.T) {
	s, err := NewMemoryStorage(0, 1000)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, session := range []string{"a", "b"} {
		for i := range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Append(ctx, session, &domain.ClassificationResult{ID: fmt.Sprintf("%s-%d", session, i)})
			}()
		}
	}
	wg.Wait()

	for _, session := range []string{"a", "b"} {
		recent, err := s.Recent(ctx, session, 0)
		require.NoError(t, err)
		assert.Len(t, recent, 100)
	}
}

func TestAuditLog(t *testing.T) {
	a := NewAuditLog(2, nil)
	for i := range 3 {
		require.NoError(t, a.Record(context.Background(), domain.AuditEvent{ClassificationID: fmt.Sprintf("c%d", i)}))
	}

	events := a.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "c2", events[0].ClassificationID)
}
