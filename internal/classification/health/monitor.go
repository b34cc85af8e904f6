package health

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

const (
	// DefaultWindow is how many recent classifications feed the escalation ratio.
	DefaultWindow = 100
	// degradedRatio is the escalation ratio above which the system is degraded.
	degradedRatio = 0.5
	checkInterval = 10 * time.Second
)

// Monitor aggregates store reachability and the recent escalation ratio.
type Monitor struct {
	stores         map[string]storage.Pinger
	scoringVersion string

	// mu guards the ring only; Observe runs on the classification path.
	window []bool // ring of escalation flags
	next   int
	filled int
	mu     sync.Mutex

	lastCheck time.Time
	lastPing  map[string]ComponentHealth
	pingMu    sync.Mutex
}

// NewMonitor creates a new health monitor over the given stores.
func NewMonitor(stores map[string]storage.Pinger, scoringVersion string, window int) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Monitor{
		stores:         stores,
		scoringVersion: scoringVersion,
		window:         make([]bool, window),
	}
}

// Observe records a finished classification.
func (m *Monitor) Observe(res *domain.ClassificationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window[m.next] = res.EscalationRequired
	m.next = (m.next + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}
}

// CheckHealth pings every store (at most once per check interval) and
// evaluates the escalation ratio.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		SystemStatus:   StatusHealthy,
		Components:     m.components(ctx),
		ScoringVersion: m.scoringVersion,
	}
	for _, h := range report.Components {
		if h.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		}
	}

	report.Classifications, report.EscalationRatio = m.escalationRatio()
	if report.SystemStatus == StatusHealthy && report.EscalationRatio > degradedRatio {
		report.SystemStatus = StatusDegraded
	}
	return report
}

// components returns the cached ping results, refreshing them when stale.
func (m *Monitor) components(ctx context.Context) map[string]ComponentHealth {
	m.pingMu.Lock()
	defer m.pingMu.Unlock()

	// Rate limit pings to avoid hammering the stores
	if time.Since(m.lastCheck) >= checkInterval || m.lastPing == nil {
		m.lastPing = make(map[string]ComponentHealth, len(m.stores))
		for name, p := range m.stores {
			h := ComponentHealth{Name: name, Status: StatusHealthy}
			if err := p.Ping(ctx); err != nil {
				h.Status = StatusCritical
				h.Error = err.Error()
			}
			m.lastPing[name] = h
		}
		m.lastCheck = time.Now()
	}
	return maps.Clone(m.lastPing)
}

func (m *Monitor) escalationRatio() (int, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filled == 0 {
		return 0, 0
	}
	escalated := 0
	for i := 0; i < m.filled; i++ {
		if m.window[i] {
			escalated++
		}
	}
	return m.filled, float64(escalated) / float64(m.filled)
}
