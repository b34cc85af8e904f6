package severity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/triage/internal/core/domain"
)

// TableVersion is bumped whenever the default weights change.
const TableVersion = "2024.1"

// ErrInvalidTable is returned when a scoring table would break severity ordering.
var ErrInvalidTable = errors.New("invalid scoring table")

// ScoringTable holds the numeric adjustments applied on top of the base rank.
// Keys are lower-case context values ("executive", "high", "urgent", ...).
// The confidence fields are pointers so an explicit 0 is kept; nil takes the
// default.
type ScoringTable struct {
	Version         string             `yaml:"version"          json:"version"`
	SubjectPriority map[string]float64 `yaml:"subject_priority" json:"subject_priority"`
	BusinessImpact  map[string]float64 `yaml:"business_impact"  json:"business_impact"`
	TimeSensitivity map[string]float64 `yaml:"time_sensitivity" json:"time_sensitivity"`
	// BaseConfidence is the starting confidence of each assessment.
	BaseConfidence *float64 `yaml:"base_confidence,omitempty" json:"base_confidence,omitempty"`
	// NoContextPenalty is subtracted when no situational context is supplied.
	NoContextPenalty *float64 `yaml:"no_context_penalty,omitempty" json:"no_context_penalty,omitempty"`
	// KnownTypeBonus is added for well-known error types.
	KnownTypeBonus *float64 `yaml:"known_type_bonus,omitempty" json:"known_type_bonus,omitempty"`
}

// Weight returns a pointer to v, for building tables in code.
func Weight(v float64) *float64 {
	return &v
}

// DefaultTable returns the built-in weights.
func DefaultTable() ScoringTable {
	return ScoringTable{
		Version: TableVersion,
		SubjectPriority: map[string]float64{
			"executive": 1.0,
			"high":      0.5,
		},
		BusinessImpact: map[string]float64{
			"high":     1.0,
			"critical": 2.0,
		},
		TimeSensitivity: map[string]float64{
			"urgent":   0.5,
			"critical": 1.0,
		},
		BaseConfidence:   Weight(0.8),
		NoContextPenalty: Weight(0.2),
		KnownTypeBonus:   Weight(0.1),
	}
}

// Validate rejects tables that could lower a severity below its base rank or
// push confidence outside [0,1].
func (t ScoringTable) Validate() error {
	for name, weights := range map[string]map[string]float64{
		"subject_priority": t.SubjectPriority,
		"business_impact":  t.BusinessImpact,
		"time_sensitivity": t.TimeSensitivity,
	} {
		for k, w := range weights {
			if w < 0 {
				return fmt.Errorf("%w: %s[%s] = %v is negative", ErrInvalidTable, name, k, w)
			}
		}
	}
	if c := t.BaseConfidence; c != nil && (*c < 0 || *c > 1) {
		return fmt.Errorf("%w: base_confidence %v outside [0,1]", ErrInvalidTable, *c)
	}
	if (t.NoContextPenalty != nil && *t.NoContextPenalty < 0) ||
		(t.KnownTypeBonus != nil && *t.KnownTypeBonus < 0) {
		return fmt.Errorf("%w: confidence deltas must be non-negative", ErrInvalidTable)
	}
	return nil
}

// withDefaults fills absent sections from DefaultTable.
func (t ScoringTable) withDefaults() ScoringTable {
	def := DefaultTable()
	if t.Version == "" {
		t.Version = def.Version
	}
	if t.SubjectPriority == nil {
		t.SubjectPriority = def.SubjectPriority
	}
	if t.BusinessImpact == nil {
		t.BusinessImpact = def.BusinessImpact
	}
	if t.TimeSensitivity == nil {
		t.TimeSensitivity = def.TimeSensitivity
	}
	if t.BaseConfidence == nil {
		t.BaseConfidence = def.BaseConfidence
	}
	if t.NoContextPenalty == nil {
		t.NoContextPenalty = def.NoContextPenalty
	}
	if t.KnownTypeBonus == nil {
		t.KnownTypeBonus = def.KnownTypeBonus
	}
	return t
}

func lookup(weights map[string]float64, key string) float64 {
	if key == "" {
		return 0
	}
	return weights[strings.ToLower(strings.TrimSpace(key))]
}

// BaseSeverity is derived from the error type alone.
func BaseSeverity(t domain.ErrorType) domain.Severity {
	switch t {
	case domain.TypePipelineBlocked, domain.TypeWorkerFailure, domain.TypeSLABreach,
		domain.TypeSystemError:
		return domain.SeverityCritical
	case domain.TypeTimeout, domain.TypeQualityFailure, domain.TypeExcessiveErrors:
		return domain.SeverityHigh
	case domain.TypeSLAAtRisk, domain.TypeManualReview, domain.TypeValidationFailure:
		return domain.SeverityMedium
	case domain.TypeProcessingError, domain.TypeDependencyFailure,
		domain.TypeResourceExhaustion, domain.TypeConnectivityError,
		domain.TypeAuthenticationError, domain.TypeConfigurationError, domain.TypeUnknown:
		return domain.SeverityLow
	}
	return domain.SeverityLow
}

// wellKnown lists the types with stable detection rules.
func wellKnown(t domain.ErrorType) bool {
	switch t {
	case domain.TypePipelineBlocked, domain.TypeWorkerFailure, domain.TypeSLABreach,
		domain.TypeSystemError, domain.TypeTimeout, domain.TypeQualityFailure,
		domain.TypeExcessiveErrors, domain.TypeSLAAtRisk, domain.TypeManualReview,
		domain.TypeValidationFailure:
		return true
	}
	return false
}
