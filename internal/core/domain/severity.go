package domain

import (
	"fmt"
	"strconv"
)

// Severity is the totally ordered urgency scale shared by every stage.
type Severity string

const (
	SeverityLow       Severity = "low"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Severities lists the scale from least to most urgent.
var Severities = []Severity{
	SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical, SeverityEmergency,
}

// Rank returns 1 (low) .. 5 (emergency). Unrecognized values rank as medium.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	case SeverityEmergency:
		return 5
	}
	return 2
}

// SeverityFromRank converts a rank back to a severity, clamping to [1,5].
func SeverityFromRank(rank int) Severity {
	rank = max(1, min(rank, len(Severities)))
	return Severities[rank-1]
}

// ParseSeverity accepts the severity names, case-insensitive.
func ParseSeverity(s string) (Severity, error) {
	n := Severity(normalize(s))
	for _, sev := range Severities {
		if sev == n {
			return sev, nil
		}
	}
	return SeverityMedium, fmt.Errorf("unknown severity %q", s)
}

// AtLeast reports whether s is as urgent as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the more urgent of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

func stringify(v any) string {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
