// Package detector turns raw monitoring evidence into normalized error records.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

// recordNamespace seeds the deterministic record ids.
var recordNamespace = uuid.MustParse("8f5a3c1e-2b7d-4e6f-9a0b-1c2d3e4f5a6b")

// Config holds the detection thresholds.
type Config struct {
	// StuckThreshold is how long a worker may stay "processing" without an
	// update before it is reported as a timeout.
	StuckThreshold time.Duration `yaml:"stuck_threshold"`
	// ExcessiveErrors is the worker error count above which a record is emitted.
	ExcessiveErrors int `yaml:"excessive_errors"`
	// CriticalBreaches is the stage-tracker breach count that turns a breach critical.
	CriticalBreaches int `yaml:"critical_breaches"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		StuckThreshold:   30 * time.Minute,
		ExcessiveErrors:  3,
		CriticalBreaches: 3,
	}
}

// Summary counts detected records for observability.
type Summary struct {
	Total      int                        `json:"total"`
	BySource   map[domain.ErrorSource]int `json:"by_source"`
	BySeverity map[domain.Severity]int    `json:"by_severity"`
	ByType     map[domain.ErrorType]int   `json:"by_type"`
}

// Detector scans the evidence channels of one session.
type Detector struct {
	sessions storage.SessionStore
	cfg      Config
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the clock used when the snapshot has no capture time.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// New creates a detector reading session context from sessions.
func New(sessions storage.SessionStore, cfg Config, opts ...Option) *Detector {
	def := DefaultConfig()
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = def.StuckThreshold
	}
	if cfg.ExcessiveErrors <= 0 {
		cfg.ExcessiveErrors = def.ExcessiveErrors
	}
	if cfg.CriticalBreaches <= 0 {
		cfg.CriticalBreaches = def.CriticalBreaches
	}
	d := &Detector{
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect resolves the session and emits one record per matching condition.
// A nil snapshot or an absent channel simply yields no records.
func (d *Detector) Detect(
	ctx context.Context,
	sessionID string,
	snap *domain.Snapshot,
) ([]domain.ErrorRecord, Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, Summary{}, err
	}
	if _, err := d.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, Summary{}, fmt.Errorf("detect %s: %w", sessionID, err)
		}
		return nil, Summary{}, fmt.Errorf("failed to resolve session %s: %w", sessionID, err)
	}
	if snap == nil {
		return nil, summarize(nil), nil
	}

	now := snap.CapturedAt
	if now.IsZero() {
		now = d.now()
	}

	s := &scan{sessionID: sessionID, now: now.UTC()}
	d.scanStage(s, snap.Stage)
	d.scanWorkers(s, snap.Workers)
	d.scanSLA(s, snap.SLA)
	d.scanQuality(s, snap.Quality)
	d.scanReported(s, snap.Reported)

	if err := ctx.Err(); err != nil {
		return nil, Summary{}, err
	}

	summary := summarize(s.records)
	d.log.Debug("Detection complete",
		"session", sessionID,
		"errors", summary.Total,
	)
	return s.records, summary, nil
}

// scan accumulates records for one Detect call.
type scan struct {
	sessionID string
	now       time.Time
	records   []domain.ErrorRecord
}

func (s *scan) add(
	source domain.ErrorSource,
	typ domain.ErrorType,
	sev domain.Severity,
	key, desc string,
	ts time.Time,
	evidence map[string]any,
) {
	if ts.IsZero() {
		ts = s.now
	}
	name := fmt.Sprintf("%s|%s|%s|%s|%d", s.sessionID, source, typ, key, len(s.records))
	s.records = append(s.records, domain.ErrorRecord{
		ID:          uuid.NewSHA1(recordNamespace, []byte(name)).String(),
		Source:      source,
		Type:        typ,
		Severity:    sev,
		Description: desc,
		Timestamp:   ts.UTC(),
		Context:     evidence,
	})
}

func (d *Detector) scanStage(s *scan, st *domain.StageStatus) {
	if st == nil {
		return
	}
	if st.Blocked {
		desc := fmt.Sprintf("pipeline blocked at stage %s", st.Stage)
		if st.BlockReason != "" {
			desc += ": " + st.BlockReason
		}
		s.add(domain.SourceStageTracker, domain.TypePipelineBlocked, domain.SeverityCritical,
			st.Stage, desc, time.Time{}, map[string]any{
				"stage":        st.Stage,
				"block_reason": st.BlockReason,
			})
	}
	if st.SLABreaches > 0 {
		sev := domain.SeverityHigh
		if st.SLABreaches >= d.cfg.CriticalBreaches {
			sev = domain.SeverityCritical
		}
		s.add(domain.SourceStageTracker, domain.TypeSLABreach, sev, st.Stage,
			fmt.Sprintf("%d SLA breaches reported at stage %s", st.SLABreaches, st.Stage),
			time.Time{}, map[string]any{
				"stage":        st.Stage,
				"breach_count": float64(st.SLABreaches),
			})
	}
}

func (d *Detector) scanWorkers(s *scan, workers []domain.WorkerStatus) {
	sorted := make([]domain.WorkerStatus, len(workers))
	copy(sorted, workers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AgentID < sorted[j].AgentID })

	for _, w := range sorted {
		errCount := len(w.Errors)

		if w.State == domain.WorkerError {
			evidence := map[string]any{
				"agent_id":    w.AgentID,
				"error_count": float64(errCount),
			}
			if w.Stage != "" {
				evidence["stage"] = w.Stage
			}
			if errCount > 0 {
				evidence["worker_error"] = w.Errors[errCount-1]
			}
			s.add(domain.SourceDirectWorker, domain.TypeWorkerFailure, domain.SeverityHigh,
				w.AgentID, fmt.Sprintf("worker %s is in error state", w.AgentID),
				w.LastUpdate, evidence)
		}

		if errCount > d.cfg.ExcessiveErrors {
			s.add(domain.SourceDirectWorker, domain.TypeExcessiveErrors, domain.SeverityMedium,
				w.AgentID, fmt.Sprintf("worker %s reported %d errors", w.AgentID, errCount),
				w.LastUpdate, map[string]any{
					"agent_id":    w.AgentID,
					"error_count": float64(errCount),
					"errors":      strings.Join(w.Errors, "; "),
				})
		}

		if w.State == domain.WorkerProcessing && !w.LastUpdate.IsZero() {
			stuck := s.now.Sub(w.LastUpdate)
			if stuck > d.cfg.StuckThreshold {
				evidence := map[string]any{
					"agent_id":            w.AgentID,
					"processing_duration": stuck.Round(time.Second).String(),
					"duration":            stuck.Minutes(),
				}
				if w.Stage != "" {
					evidence["stage"] = w.Stage
				}
				s.add(domain.SourceDirectWorker, domain.TypeTimeout, domain.SeverityHigh, w.AgentID,
					fmt.Sprintf("worker %s processing for %s without progress",
						w.AgentID, stuck.Round(time.Minute)),
					w.LastUpdate, evidence)
			}
		}
	}
}

func (d *Detector) scanSLA(s *scan, timers []domain.SLATimer) {
	for _, t := range timers {
		evidence := map[string]any{
			"stage":    t.Stage,
			"duration": t.ElapsedMinutes,
			"target":   t.TargetMinutes,
		}
		switch t.Status {
		case domain.SLABreached:
			s.add(domain.SourceSLATimer, domain.TypeSLABreach, domain.SeverityCritical, t.Stage,
				fmt.Sprintf("SLA breached at stage %s (%.0f/%.0f min)",
					t.Stage, t.ElapsedMinutes, t.TargetMinutes),
				time.Time{}, evidence)
		case domain.SLAAtRisk:
			s.add(domain.SourceSLATimer, domain.TypeSLAAtRisk, domain.SeverityMedium, t.Stage,
				fmt.Sprintf("SLA at risk at stage %s (%.0f/%.0f min)",
					t.Stage, t.ElapsedMinutes, t.TargetMinutes),
				time.Time{}, evidence)
		}
	}
}

func (d *Detector) scanQuality(s *scan, verdicts []domain.QualityVerdict) {
	for _, q := range verdicts {
		evidence := map[string]any{
			"stage": q.Stage,
			"score": q.Score,
		}
		if len(q.CriticalIssues) > 0 {
			evidence["critical_issues"] = strings.Join(q.CriticalIssues, "; ")
		}
		switch q.Status {
		case domain.GateFailed:
			s.add(domain.SourceQualityGate, domain.TypeQualityFailure, domain.SeverityHigh, q.Stage,
				fmt.Sprintf("quality gate failed at stage %s (score %.2f)", q.Stage, q.Score),
				time.Time{}, evidence)
		case domain.GateManualReview:
			s.add(domain.SourceQualityGate, domain.TypeManualReview, domain.SeverityMedium, q.Stage,
				fmt.Sprintf("quality gate requires manual review at stage %s", q.Stage),
				time.Time{}, evidence)
		}
	}
}

func (d *Detector) scanReported(s *scan, faults []domain.ReportedFault) {
	for i, f := range faults {
		src := domain.ParseErrorSource(f.Source)
		typ := domain.ParseErrorType(f.Type)
		sev, err := domain.ParseSeverity(f.Severity)
		if f.Severity == "" || err != nil {
			sev = domain.SeverityMedium
		}
		desc := f.Description
		if desc == "" {
			desc = fmt.Sprintf("%s reported by %s", typ, src)
		}
		var evidence map[string]any
		if len(f.Context) > 0 {
			evidence = make(map[string]any, len(f.Context))
			for k, v := range f.Context {
				evidence[k] = v
			}
		}
		s.add(src, typ, sev, fmt.Sprintf("reported-%d", i), desc, f.Timestamp, evidence)
	}
}

func summarize(records []domain.ErrorRecord) Summary {
	sum := Summary{
		Total:      len(records),
		BySource:   make(map[domain.ErrorSource]int),
		BySeverity: make(map[domain.Severity]int),
		ByType:     make(map[domain.ErrorType]int),
	}
	for _, r := range records {
		sum.BySource[r.Source]++
		sum.BySeverity[r.Severity]++
		sum.ByType[r.Type]++
	}
	return sum
}
