package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// SessionRepo implements storage.SessionStore using PostgreSQL.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new PostgreSQL session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Get returns the session or domain.ErrSessionNotFound.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, subject_id, stage, priority, metadata, started_at
		FROM sessions
		WHERE id = $1
	`
	var row struct {
		ID        string    `db:"id"`
		SubjectID string    `db:"subject_id"`
		Stage     string    `db:"stage"`
		Priority  string    `db:"priority"`
		Metadata  []byte    `db:"metadata"`
		StartedAt time.Time `db:"started_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess := &domain.Session{
		ID:        row.ID,
		SubjectID: row.SubjectID,
		Stage:     row.Stage,
		Priority:  row.Priority,
		StartedAt: row.StartedAt,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session metadata: %w", err)
		}
	}
	return sess, nil
}

// Put upserts a session.
func (r *SessionRepo) Put(ctx context.Context, sess *domain.Session) error {
	meta, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	if sess.Metadata == nil {
		meta = []byte("{}")
	}
	startedAt := sess.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sessions (id, subject_id, stage, priority, metadata, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			stage = EXCLUDED.stage,
			priority = EXCLUDED.priority,
			metadata = EXCLUDED.metadata
	`
	if _, err := r.db.ExecContext(ctx, query,
		sess.ID, sess.SubjectID, sess.Stage, sess.Priority, meta, startedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}
