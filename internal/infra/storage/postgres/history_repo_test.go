package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/triage/internal/core/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Skipping postgres test. Set DATABASE_URL to run.")
	}
	db, err := NewDB(context.Background(), Config{URL: url, HistoryLimit: 3})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSessionRepo(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()
	id := uuid.NewString()

	_, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	sess := &domain.Session{
		ID:        id,
		SubjectID: "emp-1",
		Stage:     "review",
		Metadata:  map[string]string{"team": "ops"},
		StartedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Put(ctx, sess))
	sess.Stage = "draft"
	require.NoError(t, repo.Put(ctx, sess))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "draft", got.Stage)
	assert.Equal(t, "ops", got.Metadata["team"])
}

func TestHistoryRepo_AppendTrimsPerSession(t *testing.T) {
	repo := NewHistoryRepo(newTestDB(t))
	ctx := context.Background()
	session := uuid.NewString()

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Append(ctx, session, &domain.ClassificationResult{
				ID:             fmt.Sprintf("c%d", i),
				SessionID:      session,
				Status:         domain.StatusCompleted,
				GlobalSeverity: domain.SeverityHigh,
				Errors:         []domain.ErrorRecord{{ID: "e1", Type: domain.TypeTimeout}},
				ClassifiedAt:   time.Now().UTC(),
			}))
		}()
	}
	wg.Wait()

	recent, err := repo.Recent(ctx, session, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
	for _, r := range recent {
		assert.Equal(t, domain.SeverityHigh, r.GlobalSeverity)
		require.Len(t, r.Errors, 1)
	}

	require.NoError(t, repo.Append(ctx, session, &domain.ClassificationResult{ID: "latest", SessionID: session}))
	recent, err = repo.Recent(ctx, session, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "latest", recent[0].ID)
}

func TestHistoryRepo_Outcomes(t *testing.T) {
	repo := NewHistoryRepo(newTestDB(t))
	ctx := context.Background()
	session := uuid.NewString()
	old := time.Now().Add(-48 * time.Hour).UTC()

	require.NoError(t, repo.RecordOutcome(ctx, &domain.RecoveryOutcome{
		SessionID: session, Strategy: domain.StrategyAutomaticRetry, ErrorType: domain.TypeTimeout,
		ReportedAt: old,
	}))
	require.NoError(t, repo.RecordOutcome(ctx, &domain.RecoveryOutcome{
		SessionID: session, Strategy: domain.StrategyAutomaticRetry, ErrorType: domain.TypeTimeout,
		Success: true, ReportedAt: time.Now().UTC(),
	}))

	outcomes, err := repo.Outcomes(ctx, session, 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, domain.TypeTimeout, outcomes[1].ErrorType)

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	outcomes, err = repo.Outcomes(ctx, session, 10)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

func TestAuditRepo(t *testing.T) {
	repo := NewAuditRepo(newTestDB(t))
	ctx := context.Background()
	session := uuid.NewString()

	require.NoError(t, repo.Record(ctx, domain.AuditEvent{
		ClassificationID:   "c1",
		SessionID:          session,
		Status:             domain.StatusCompleted,
		GlobalSeverity:     domain.SeverityCritical,
		RecoveryStrategy:   domain.StrategyHumanHandoff,
		EscalationRequired: true,
		ErrorCount:         2,
		Actions:            []string{"Notify the on-call team lead"},
		OccurredAt:         time.Now().UTC(),
	}))

	events, err := repo.Recent(ctx, session, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StrategyHumanHandoff, events[0].RecoveryStrategy)
	assert.Equal(t, []string{"Notify the on-call team lead"}, events[0].Actions)
	assert.Empty(t, events[0].Warnings)
}
