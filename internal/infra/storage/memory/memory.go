package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vietddude/triage/internal/core/domain"
)

const (
	// DefaultSessions bounds how many session histories are kept.
	DefaultSessions = 10_000
	// DefaultHistoryLimit bounds entries per session.
	DefaultHistoryLimit = 50
)

// sessionLog is the history of one session. Its lock serializes appends for
// that session only.
type sessionLog struct {
	mu       sync.RWMutex
	results  []*domain.ClassificationResult // newest first
	outcomes []*domain.RecoveryOutcome      // newest first
}

// MemoryStorage keeps sessions and classification history in process.
type MemoryStorage struct {
	sessions  map[string]*domain.Session
	mu        sync.RWMutex
	histories *lru.Cache[string, *sessionLog]
	limit     int
}

// NewMemoryStorage creates a store holding at most maxSessions histories of
// limit entries each. Non-positive values use the defaults.
func NewMemoryStorage(maxSessions, limit int) (*MemoryStorage, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultSessions
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	cache, err := lru.New[string, *sessionLog](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to create history cache: %w", err)
	}
	return &MemoryStorage{
		sessions:  make(map[string]*domain.Session),
		histories: cache,
		limit:     limit,
	}, nil
}

// PutSession registers or replaces a session.
func (s *MemoryStorage) PutSession(sess *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// Get returns the session or domain.ErrSessionNotFound.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return sess, nil
}

func (s *MemoryStorage) log(sessionID string) *sessionLog {
	if l, ok := s.histories.Get(sessionID); ok {
		return l
	}
	fresh := &sessionLog{}
	if prev, ok, _ := s.histories.PeekOrAdd(sessionID, fresh); ok {
		return prev
	}
	return fresh
}

// Append stores a copy of res as the newest entry of the session.
func (s *MemoryStorage) Append(ctx context.Context, sessionID string, res *domain.ClassificationResult) error {
	l := s.log(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = prepend(l.results, res.Clone(), s.limit)
	return nil
}

// Recent returns copies of up to n results, newest first.
func (s *MemoryStorage) Recent(ctx context.Context, sessionID string, n int) ([]*domain.ClassificationResult, error) {
	l, ok := s.histories.Get(sessionID)
	if !ok {
		return nil, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := head(l.results, n)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out, nil
}

// RecordOutcome stores a copy of o as the newest outcome of its session.
func (s *MemoryStorage) RecordOutcome(ctx context.Context, o *domain.RecoveryOutcome) error {
	l := s.log(o.SessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *o
	l.outcomes = prepend(l.outcomes, &cp, s.limit)
	return nil
}

// Outcomes returns copies of up to n outcomes, newest first.
func (s *MemoryStorage) Outcomes(ctx context.Context, sessionID string, n int) ([]*domain.RecoveryOutcome, error) {
	l, ok := s.histories.Get(sessionID)
	if !ok {
		return nil, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := head(l.outcomes, n)
	for i, o := range out {
		cp := *o
		out[i] = &cp
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func prepend[T any](list []T, v T, limit int) []T {
	out := make([]T, 0, min(len(list)+1, limit))
	out = append(out, v)
	for _, x := range list {
		if len(out) == limit {
			break
		}
		out = append(out, x)
	}
	return out
}

func head[T any](list []T, n int) []T {
	if n <= 0 || n > len(list) {
		n = len(list)
	}
	out := make([]T, n)
	copy(out, list[:n])
	return out
}

// AuditLog writes audit events to the logger and keeps the latest in memory.
type AuditLog struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	limit  int
	log    *slog.Logger
}

// NewAuditLog keeps at most limit events.
func NewAuditLog(limit int, log *slog.Logger) *AuditLog {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &AuditLog{limit: limit, log: log}
}

// Record logs ev and keeps it.
func (a *AuditLog) Record(ctx context.Context, ev domain.AuditEvent) error {
	a.mu.Lock()
	a.events = prepend(a.events, ev, a.limit)
	a.mu.Unlock()

	a.log.Info("Audit",
		"classification", ev.ClassificationID,
		"session", ev.SessionID,
		"status", ev.Status,
		"severity", ev.GlobalSeverity,
		"strategy", ev.RecoveryStrategy,
		"escalate", ev.EscalationRequired,
		"errors", ev.ErrorCount,
	)
	return nil
}

// Events returns the kept events, newest first.
func (a *AuditLog) Events() []domain.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return head(a.events, 0)
}

// Recent returns up to n kept events of the session, newest first.
func (a *AuditLog) Recent(ctx context.Context, sessionID string, n int) ([]domain.AuditEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range a.events {
		if n > 0 && len(out) == n {
			break
		}
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}
