package domain

import "time"

// Session is the pipeline session context held by the external state store.
type Session struct {
	ID        string            `json:"id"`
	SubjectID string            `json:"subject_id"`
	Stage     string            `json:"stage,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	StartedAt time.Time         `json:"started_at"`
}

// Snapshot is the raw evidence collected from the monitoring collaborators for
// one session. Every channel is optional.
type Snapshot struct {
	Stage    *StageStatus     `json:"stage,omitempty"`
	Workers  []WorkerStatus   `json:"workers,omitempty"`
	SLA      []SLATimer       `json:"sla,omitempty"`
	Quality  []QualityVerdict `json:"quality,omitempty"`
	Reported []ReportedFault  `json:"reported,omitempty"`
	// CapturedAt is the collection time; the detector uses it as "now" when set.
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// StageStatus comes from the stage tracker.
type StageStatus struct {
	Stage       string `json:"stage"`
	Blocked     bool   `json:"blocked"`
	BlockReason string `json:"block_reason,omitempty"`
	SLABreaches int    `json:"sla_breaches"`
}

// WorkerState is the per-task worker lifecycle state.
type WorkerState string

const (
	WorkerIdle       WorkerState = "idle"
	WorkerProcessing WorkerState = "processing"
	WorkerCompleted  WorkerState = "completed"
	WorkerError      WorkerState = "error"
)

// WorkerStatus is the state reported by one per-task worker.
type WorkerStatus struct {
	AgentID    string      `json:"agent_id"`
	Stage      string      `json:"stage,omitempty"`
	State      WorkerState `json:"state"`
	Errors     []string    `json:"errors,omitempty"`
	LastUpdate time.Time   `json:"last_update"`
}

// SLAStatus is the verdict of an SLA timer.
type SLAStatus string

const (
	SLAOnTime   SLAStatus = "on_time"
	SLAAtRisk   SLAStatus = "at_risk"
	SLABreached SLAStatus = "breached"
)

// SLATimer is the elapsed vs. target duration of a stage.
type SLATimer struct {
	Stage          string    `json:"stage"`
	Status         SLAStatus `json:"status"`
	ElapsedMinutes float64   `json:"elapsed_minutes"`
	TargetMinutes  float64   `json:"target_minutes"`
}

// GateStatus is the verdict of a quality gate.
type GateStatus string

const (
	GatePassed       GateStatus = "passed"
	GateFailed       GateStatus = "failed"
	GateManualReview GateStatus = "manual_review"
)

// QualityVerdict is one quality-gate result.
type QualityVerdict struct {
	Stage          string     `json:"stage"`
	Status         GateStatus `json:"status"`
	Score          float64    `json:"score"`
	CriticalIssues []string   `json:"critical_issues,omitempty"`
}

// ReportedFault is a fault handed in directly by a collaborator that has no
// dedicated channel (state store, external systems).
type ReportedFault struct {
	Source      string         `json:"source"`
	Type        string         `json:"type"`
	Severity    string         `json:"severity,omitempty"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// SituationalContext carries the business signals used for severity
// adjustment and root cause heuristics.
type SituationalContext struct {
	SubjectPriority string  `json:"subject_priority,omitempty" yaml:"subject_priority"`
	BusinessImpact  string  `json:"business_impact,omitempty"  yaml:"business_impact"`
	TimeSensitivity string  `json:"time_sensitivity,omitempty" yaml:"time_sensitivity"`
	SystemLoad      float64 `json:"system_load,omitempty"      yaml:"system_load"`
	// RecoveryStrategy optionally pins the strategy requested by the caller.
	RecoveryStrategy string `json:"recovery_strategy,omitempty" yaml:"recovery_strategy"`
}

// IsZero reports whether no situational signal was supplied.
func (c *SituationalContext) IsZero() bool {
	return c == nil || (c.SubjectPriority == "" && c.BusinessImpact == "" &&
		c.TimeSensitivity == "" && c.SystemLoad == 0 && c.RecoveryStrategy == "")
}
