package rootcause

import (
	"strings"

	"github.com/vietddude/triage/internal/core/domain"
)

// causePhrase is the default explanation for each error type.
func causePhrase(t domain.ErrorType) string {
	switch t {
	case domain.TypePipelineBlocked:
		return "Pipeline blocked by an unresolved upstream dependency"
	case domain.TypeWorkerFailure:
		return "Worker process failure during task execution"
	case domain.TypeSLABreach:
		return "Processing time exceeded the agreed service level"
	case domain.TypeSystemError:
		return "Internal system error in the processing platform"
	case domain.TypeTimeout:
		return "Operation timeout due to slow processing or resource contention"
	case domain.TypeQualityFailure:
		return "Output failed quality validation thresholds"
	case domain.TypeExcessiveErrors:
		return "Repeated worker errors indicating an unstable task"
	case domain.TypeSLAAtRisk:
		return "Processing pace trending toward a service level breach"
	case domain.TypeManualReview:
		return "Output quality ambiguous and needs human judgment"
	case domain.TypeValidationFailure:
		return "Input data failed validation rules"
	case domain.TypeProcessingError:
		return "Task processing error in worker logic"
	case domain.TypeDependencyFailure:
		return "External dependency unavailable or failing"
	case domain.TypeResourceExhaustion:
		return "Resource exhaustion on the processing platform"
	case domain.TypeConnectivityError:
		return "Network connectivity failure between components"
	case domain.TypeAuthenticationError:
		return "Authentication failure against a protected service"
	case domain.TypeConfigurationError:
		return "Invalid or inconsistent configuration"
	case domain.TypeUnknown:
		return "Unclassified fault"
	}
	return "Unclassified fault"
}

// knownType reports whether the cause table has a specific entry for t.
func knownType(t domain.ErrorType) bool {
	return t.Known()
}

// recommendationRule maps a keyword found in a cause or factor to advice.
type recommendationRule struct {
	keyword string
	advice  []string
}

var recommendationTable = []recommendationRule{
	{"timeout", []string{
		"Increase timeout thresholds for slow stages",
		"Add progress heartbeats to long-running workers",
	}},
	{"worker", []string{
		"Restart the failing worker with a clean state",
		"Review worker error logs for recurring failures",
	}},
	{"service level", []string{
		"Rebalance stage workloads to protect SLA targets",
		"Review SLA targets against observed processing times",
	}},
	{"quality", []string{
		"Review quality gate thresholds and scoring inputs",
		"Add pre-validation before quality-gated stages",
	}},
	{"blocked", []string{
		"Identify and clear the blocking dependency",
	}},
	{"dependency", []string{
		"Add a circuit breaker around the failing dependency",
		"Confirm status of external dependencies",
	}},
	{"configuration", []string{
		"Audit recent configuration changes",
		"Validate configuration against schema before deploy",
	}},
	{"resource", []string{
		"Scale processing capacity",
		"Review resource quotas and limits",
	}},
	{"load", []string{
		"Scale processing capacity",
		"Throttle intake during peak load",
	}},
	{"connectivity", []string{
		"Check network paths between pipeline components",
	}},
	{"authentication", []string{
		"Rotate and verify service credentials",
	}},
	{"validation", []string{
		"Tighten input validation at the pipeline entry",
	}},
	{"cascade", []string{
		"Investigate shared upstream component across failing systems",
	}},
	{"recurring", []string{
		"Open a problem ticket for the recurring failure",
	}},
	{"business hours", []string{
		"Schedule heavy processing outside business hours",
	}},
	{"recovery attempt failed", []string{
		"Switch from automated retry to manual remediation",
	}},
}

// recommend returns the deduplicated advice for a cause and its factors.
func recommend(cause string, factors []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(text string) {
		lower := strings.ToLower(text)
		for _, rule := range recommendationTable {
			if !strings.Contains(lower, rule.keyword) {
				continue
			}
			for _, a := range rule.advice {
				if !seen[a] {
					seen[a] = true
					out = append(out, a)
				}
			}
		}
	}
	add(cause)
	for _, f := range factors {
		add(f)
	}
	return out
}
