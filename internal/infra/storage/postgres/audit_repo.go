package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/triage/internal/core/domain"
)

// AuditRepo implements storage.AuditSink using PostgreSQL.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new PostgreSQL audit repository.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Record inserts the event, retrying transient failures.
func (r *AuditRepo) Record(ctx context.Context, ev domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (classification_id, session_id, subject_id, status, global_severity,
			recovery_strategy, escalation_required, error_count, actions, warnings, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	actions := ev.Actions
	if actions == nil {
		actions = []string{}
	}
	warnings := ev.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	return withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query,
			ev.ClassificationID,
			ev.SessionID,
			ev.SubjectID,
			string(ev.Status),
			string(ev.GlobalSeverity),
			string(ev.RecoveryStrategy),
			ev.EscalationRequired,
			ev.ErrorCount,
			pq.Array(actions),
			pq.Array(warnings),
			ev.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
		return nil
	})
}

// Recent returns the latest n audit events of a session, newest first.
func (r *AuditRepo) Recent(ctx context.Context, sessionID string, n int) ([]domain.AuditEvent, error) {
	query := `
		SELECT classification_id, session_id, subject_id, status, global_severity, recovery_strategy,
			escalation_required, error_count, actions, warnings, occurred_at
		FROM audit_events
		WHERE session_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryxContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			ev                    domain.AuditEvent
			status, sev, strategy string
			actions, warnings     []string
		)
		if err := rows.Scan(
			&ev.ClassificationID,
			&ev.SessionID,
			&ev.SubjectID,
			&status,
			&sev,
			&strategy,
			&ev.EscalationRequired,
			&ev.ErrorCount,
			pq.Array(&actions),
			pq.Array(&warnings),
			&ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Status = domain.ClassificationStatus(status)
		ev.GlobalSeverity = domain.Severity(sev)
		ev.RecoveryStrategy = domain.RecoveryStrategy(strategy)
		ev.Actions = actions
		ev.Warnings = warnings
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes audit events that occurred before cutoff.
func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return res.RowsAffected()
}
