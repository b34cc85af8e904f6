package storage

import (
	"context"

	"github.com/vietddude/triage/internal/core/domain"
)

// SessionStore resolves session context from the external state store.
type SessionStore interface {
	// Get returns the session or domain.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// HistoryStore keeps the append-only classification history of each session.
// Appends for one session are serialized; different sessions never contend.
type HistoryStore interface {
	// Append adds a classification to the session's history.
	Append(ctx context.Context, sessionID string, result *domain.ClassificationResult) error

	// Recent returns up to n most recent classifications, newest first.
	Recent(ctx context.Context, sessionID string, n int) ([]*domain.ClassificationResult, error)

	// RecordOutcome stores a recovery outcome reported by a downstream executor.
	RecordOutcome(ctx context.Context, outcome *domain.RecoveryOutcome) error

	// Outcomes returns up to n most recent outcomes, newest first.
	Outcomes(ctx context.Context, sessionID string, n int) ([]*domain.RecoveryOutcome, error)
}

// AuditSink receives every classification event.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// AuditReader lists recorded classification events.
type AuditReader interface {
	// Recent returns up to n events of the session, newest first.
	Recent(ctx context.Context, sessionID string, n int) ([]domain.AuditEvent, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}
