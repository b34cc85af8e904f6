package domain

import (
	"strings"
	"time"
)

// ErrorSource identifies the monitoring channel a fault was observed on.
type ErrorSource string

const (
	SourceStageTracker   ErrorSource = "stage_tracker"
	SourceDirectWorker   ErrorSource = "direct_worker"
	SourceQualityGate    ErrorSource = "quality_gate"
	SourceSLATimer       ErrorSource = "sla_timer"
	SourceStateStore     ErrorSource = "state_store"
	SourceExternalSystem ErrorSource = "external_system"
	SourceUnknown        ErrorSource = "unknown"
)

// ParseErrorSource maps a raw source string onto the closed set.
// Hyphenated spellings are accepted; anything else becomes SourceUnknown.
func ParseErrorSource(s string) ErrorSource {
	switch src := ErrorSource(normalize(s)); src {
	case SourceStageTracker, SourceDirectWorker, SourceQualityGate, SourceSLATimer,
		SourceStateStore, SourceExternalSystem:
		return src
	default:
		return SourceUnknown
	}
}

// ErrorType is the normalized kind of a detected fault.
type ErrorType string

const (
	TypePipelineBlocked     ErrorType = "pipeline_blocked"
	TypeWorkerFailure       ErrorType = "worker_failure"
	TypeSLABreach           ErrorType = "sla_breach"
	TypeSystemError         ErrorType = "system_error"
	TypeTimeout             ErrorType = "timeout"
	TypeQualityFailure      ErrorType = "quality_failure"
	TypeExcessiveErrors     ErrorType = "excessive_errors"
	TypeSLAAtRisk           ErrorType = "sla_at_risk"
	TypeManualReview        ErrorType = "manual_review"
	TypeValidationFailure   ErrorType = "validation_failure"
	TypeProcessingError     ErrorType = "processing_error"
	TypeDependencyFailure   ErrorType = "dependency_failure"
	TypeResourceExhaustion  ErrorType = "resource_exhaustion"
	TypeConnectivityError   ErrorType = "connectivity_error"
	TypeAuthenticationError ErrorType = "authentication_error"
	TypeConfigurationError  ErrorType = "configuration_error"
	TypeUnknown             ErrorType = "unknown"
)

// ErrorTypes lists every known type, in declaration order.
var ErrorTypes = []ErrorType{
	TypePipelineBlocked, TypeWorkerFailure, TypeSLABreach, TypeSystemError,
	TypeTimeout, TypeQualityFailure, TypeExcessiveErrors, TypeSLAAtRisk,
	TypeManualReview, TypeValidationFailure, TypeProcessingError,
	TypeDependencyFailure, TypeResourceExhaustion, TypeConnectivityError,
	TypeAuthenticationError, TypeConfigurationError,
}

// ParseErrorType maps a raw type string onto the closed set.
// A few legacy aliases from upstream trackers are folded in.
func ParseErrorType(s string) ErrorType {
	n := normalize(s)
	switch n {
	case "time_breach":
		return TypeSLABreach
	case "quality_breach":
		return TypeQualityFailure
	case "at_risk":
		return TypeSLAAtRisk
	}
	for _, t := range ErrorTypes {
		if string(t) == n {
			return t
		}
	}
	return TypeUnknown
}

// Known reports whether t is one of the declared types.
func (t ErrorType) Known() bool {
	return t != TypeUnknown && ParseErrorType(string(t)) == t
}

// ErrorCategory groups error types for routing and priority adjustment.
type ErrorCategory string

const (
	CategoryPipeline      ErrorCategory = "pipeline"
	CategoryWorker        ErrorCategory = "worker"
	CategorySLA           ErrorCategory = "sla"
	CategoryQuality       ErrorCategory = "quality"
	CategoryValidation    ErrorCategory = "validation"
	CategorySecurity      ErrorCategory = "security"
	CategorySystemError   ErrorCategory = "system_error"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryExternal      ErrorCategory = "external"
	CategoryOther         ErrorCategory = "other"
)

// Category returns the routing category of the error type.
func (t ErrorType) Category() ErrorCategory {
	switch t {
	case TypePipelineBlocked:
		return CategoryPipeline
	case TypeWorkerFailure, TypeTimeout, TypeExcessiveErrors, TypeProcessingError:
		return CategoryWorker
	case TypeSLABreach, TypeSLAAtRisk:
		return CategorySLA
	case TypeQualityFailure, TypeManualReview:
		return CategoryQuality
	case TypeValidationFailure:
		return CategoryValidation
	case TypeAuthenticationError:
		return CategorySecurity
	case TypeSystemError, TypeResourceExhaustion:
		return CategorySystemError
	case TypeConfigurationError:
		return CategoryConfiguration
	case TypeDependencyFailure, TypeConnectivityError:
		return CategoryExternal
	case TypeUnknown:
		return CategoryOther
	}
	return CategoryOther
}

// ErrorRecord is one normalized fault. It is not modified after detection.
type ErrorRecord struct {
	ID          string         `json:"id"`
	Source      ErrorSource    `json:"source"`
	Type        ErrorType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Context     map[string]any `json:"context,omitempty"`
}

// Category is a shortcut for r.Type.Category().
func (r *ErrorRecord) Category() ErrorCategory {
	return r.Type.Category()
}

// ContextString returns the context value under key rendered as a string.
func (r *ErrorRecord) ContextString(key string) (string, bool) {
	v, ok := r.Context[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, val != ""
	default:
		return stringify(val), true
	}
}

// MentionsEscalation reports whether the description or any context value
// asks for escalation.
func (r *ErrorRecord) MentionsEscalation() bool {
	if strings.Contains(strings.ToLower(r.Description), "escalat") {
		return true
	}
	for k, v := range r.Context {
		if strings.Contains(strings.ToLower(k), "escalat") {
			return true
		}
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), "escalat") {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
