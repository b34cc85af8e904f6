package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/triage/internal/core/domain"
)

// HistoryRepo implements storage.HistoryStore using PostgreSQL.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new PostgreSQL history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Append inserts res and prunes the session beyond the history limit. The
// transaction-scoped advisory lock serializes appends per session.
func (r *HistoryRepo) Append(ctx context.Context, sessionID string, res *domain.ClassificationResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}
	types := make([]string, 0, len(res.Errors))
	for _, t := range res.DominantTypes() {
		types = append(types, string(t))
	}

	return withRetry(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID); err != nil {
			return fmt.Errorf("failed to lock session history: %w", err)
		}

		insert := `
			INSERT INTO classifications (id, session_id, status, global_severity, recovery_strategy,
				escalation_required, error_types, fingerprint, payload, classified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		if _, err := tx.ExecContext(ctx, insert,
			res.ID,
			sessionID,
			string(res.Status),
			string(res.GlobalSeverity),
			string(res.RecoveryStrategy),
			res.EscalationRequired,
			pq.Array(types),
			res.Fingerprint,
			payload,
			res.ClassifiedAt,
		); err != nil {
			return fmt.Errorf("failed to insert classification: %w", err)
		}

		prune := `
			DELETE FROM classifications
			WHERE session_id = $1 AND seq NOT IN (
				SELECT seq FROM classifications WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
			)
		`
		if _, err := tx.ExecContext(ctx, prune, sessionID, r.db.historyLimit); err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		return tx.Commit()
	})
}

// Recent returns up to n classifications, newest first.
func (r *HistoryRepo) Recent(ctx context.Context, sessionID string, n int) ([]*domain.ClassificationResult, error) {
	query := `
		SELECT payload FROM classifications
		WHERE session_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	var payloads [][]byte
	if err := r.db.SelectContext(ctx, &payloads, query, sessionID, r.limit(n)); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	out := make([]*domain.ClassificationResult, 0, len(payloads))
	for _, p := range payloads {
		var res domain.ClassificationResult
		if err := json.Unmarshal(p, &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal classification: %w", err)
		}
		out = append(out, &res)
	}
	return out, nil
}

// RecordOutcome inserts a recovery outcome.
func (r *HistoryRepo) RecordOutcome(ctx context.Context, o *domain.RecoveryOutcome) error {
	query := `
		INSERT INTO recovery_outcomes (session_id, classification_id, strategy, handler_id,
			error_type, success, detail, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query,
			o.SessionID,
			o.ClassificationID,
			string(o.Strategy),
			o.HandlerID,
			string(o.ErrorType),
			o.Success,
			o.Detail,
			o.ReportedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome: %w", err)
		}
		return nil
	})
}

// Outcomes returns up to n outcomes, newest first.
func (r *HistoryRepo) Outcomes(ctx context.Context, sessionID string, n int) ([]*domain.RecoveryOutcome, error) {
	query := `
		SELECT session_id, classification_id, strategy, handler_id, error_type, success, detail, reported_at
		FROM recovery_outcomes
		WHERE session_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`

	var rows []struct {
		SessionID        string    `db:"session_id"`
		ClassificationID string    `db:"classification_id"`
		Strategy         string    `db:"strategy"`
		HandlerID        string    `db:"handler_id"`
		ErrorType        string    `db:"error_type"`
		Success          bool      `db:"success"`
		Detail           string    `db:"detail"`
		ReportedAt       time.Time `db:"reported_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, r.limit(n)); err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}

	out := make([]*domain.RecoveryOutcome, 0, len(rows))
	for _, row := range rows {
		strategy, _ := domain.ParseRecoveryStrategy(row.Strategy)
		out = append(out, &domain.RecoveryOutcome{
			SessionID:        row.SessionID,
			ClassificationID: row.ClassificationID,
			Strategy:         strategy,
			HandlerID:        row.HandlerID,
			ErrorType:        domain.ParseErrorType(row.ErrorType),
			Success:          row.Success,
			Detail:           row.Detail,
			ReportedAt:       row.ReportedAt,
		})
	}
	return out, nil
}

func (r *HistoryRepo) limit(n int) int {
	if n <= 0 || n > r.db.historyLimit {
		return r.db.historyLimit
	}
	return n
}

// DeleteOlderThan removes outcomes reported before cutoff. Classification
// rows are bounded per session by the history limit instead.
func (r *HistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recovery_outcomes WHERE reported_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", err)
	}
	return res.RowsAffected()
}
