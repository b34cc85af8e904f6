// Package rootcause groups related error records and infers their probable cause.
package rootcause

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// evidenceKeys are the context keys copied into the evidence list.
var evidenceKeys = []string{"agent_id", "stage", "duration", "error_count"}

// BusinessHours is the local window considered peak load.
type BusinessHours struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Contains reports whether hour falls in [Start, End).
func (b BusinessHours) Contains(hour int) bool {
	return hour >= b.Start && hour < b.End
}

// Context carries the situational inputs of the heuristics.
type Context struct {
	SystemLoad    float64
	Now           time.Time
	BusinessHours BusinessHours
	// Outcomes are the session's reported recovery outcomes, newest first.
	Outcomes []*domain.RecoveryOutcome
}

// Report is the finder output for one batch.
type Report struct {
	Groups     []domain.RootCauseAnalysis `json:"groups"`
	Summary    domain.RootCauseSummary    `json:"summary"`
	Confidence float64                    `json:"confidence"`
}

// Finder infers root causes.
type Finder struct {
	hours BusinessHours
	log   *slog.Logger
}

// NewFinder creates a finder. A zero hours window defaults to 09:00-18:00.
func NewFinder(hours BusinessHours, log *slog.Logger) *Finder {
	if hours.Start == 0 && hours.End == 0 {
		hours = BusinessHours{Start: 9, End: 18}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Finder{hours: hours, log: log}
}

// Analyze partitions records by (source, type) and analyzes each group.
// history is the session's previous classifications, newest first.
func (f *Finder) Analyze(
	ctx context.Context,
	records []domain.ErrorRecord,
	rc Context,
	history []*domain.ClassificationResult,
) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rc.BusinessHours == (BusinessHours{}) {
		rc.BusinessHours = f.hours
	}

	groups := partition(records)
	sources := make(map[domain.ErrorSource]bool)
	for _, r := range records {
		sources[r.Source] = true
	}
	pastCauses := causeCounts(history)

	report := &Report{Groups: make([]domain.RootCauseAnalysis, 0, len(groups))}
	var confSum float64
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		analysis := f.analyzeGroup(g, len(sources), rc, history, pastCauses)
		confSum += analysis.ConfidenceLevel
		report.Groups = append(report.Groups, analysis)
	}
	if len(report.Groups) > 0 {
		report.Confidence = confSum / float64(len(report.Groups))
	}
	report.Summary = summarize(report.Groups)

	f.log.Debug("Root cause analysis complete",
		"groups", len(report.Groups),
		"systemic", report.Summary.SystemicIssue,
	)
	return report, nil
}

type group struct {
	key     domain.GroupKey
	records []*domain.ErrorRecord
}

// partition groups records by key, keeping first-appearance order.
func partition(records []domain.ErrorRecord) []*group {
	index := make(map[domain.GroupKey]*group)
	var out []*group
	for i := range records {
		r := &records[i]
		key := domain.GroupKey{Source: r.Source, Type: r.Type}
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			out = append(out, g)
		}
		g.records = append(g.records, r)
	}
	return out
}

func (f *Finder) analyzeGroup(
	g *group,
	distinctSources int,
	rc Context,
	history []*domain.ClassificationResult,
	pastCauses map[string]int,
) domain.RootCauseAnalysis {
	cause := primaryCause(g.records[0])
	factors := contributingFactors(g, distinctSources, rc)
	if n := pastCauses[cause]; n > 0 {
		factors = append(factors, fmt.Sprintf("Recurring cause seen in %d previous classifications", n))
	}
	if LastRetryFailed(rc.Outcomes, g.key.Type) {
		factors = append(factors, "Previous automated recovery attempt failed for this error type")
	}

	ids := make([]string, 0, len(g.records))
	var evidence []string
	contextFields := 0
	allKnown := true
	for _, r := range g.records {
		ids = append(ids, r.ID)
		evidence = append(evidence, evidenceOf(r)...)
		contextFields += len(r.Context)
		if !knownType(r.Type) {
			allKnown = false
		}
	}

	conf := 0.7
	if contextFields > 5 {
		conf += 0.1
	}
	if len(history) > 0 {
		conf += 0.1
	}
	if allKnown {
		conf += 0.1
	}

	return domain.RootCauseAnalysis{
		Group:               g.key,
		ErrorIDs:            ids,
		PrimaryCause:        cause,
		ContributingFactors: factors,
		Evidence:            evidence,
		ConfidenceLevel:     math.Min(conf, 1.0),
		Recommendations:     recommend(cause, factors),
	}
}

// primaryCause refines the type phrase with evidence from the first record.
func primaryCause(r *domain.ErrorRecord) string {
	cause := causePhrase(r.Type)
	if d, ok := r.ContextString("processing_duration"); ok {
		cause = fmt.Sprintf("%s (processing for %s)", cause, d)
	}
	if we, ok := r.ContextString("worker_error"); ok {
		cause = fmt.Sprintf("%s: %s", cause, we)
	}
	return cause
}

func contributingFactors(g *group, distinctSources int, rc Context) []string {
	var factors []string
	if len(g.records) >= 2 {
		factors = append(factors,
			fmt.Sprintf("Repeated %s errors (%d occurrences)", g.key.Type, len(g.records)))
	}
	if distinctSources > 1 {
		factors = append(factors,
			fmt.Sprintf("Cross-system cascade across %d sources", distinctSources))
	}
	if rc.SystemLoad > 0.8 {
		factors = append(factors,
			fmt.Sprintf("High system load (%.0f%%)", rc.SystemLoad*100))
	}
	if !rc.Now.IsZero() && rc.BusinessHours.Contains(rc.Now.Hour()) {
		factors = append(factors, "Occurred during business hours peak load window")
	}

	var config, external bool
	for _, r := range g.records {
		if r.Type == domain.TypeConfigurationError {
			config = true
		}
		if r.Source == domain.SourceExternalSystem {
			external = true
		}
	}
	if config {
		factors = append(factors, "Configuration signals present in error records")
	}
	if external {
		factors = append(factors, "External system dependency involved")
	}
	return factors
}

func evidenceOf(r *domain.ErrorRecord) []string {
	ev := []string{"timestamp: " + r.Timestamp.Format(time.RFC3339)}
	for _, k := range evidenceKeys {
		if v, ok := r.ContextString(k); ok {
			ev = append(ev, k+": "+v)
		}
	}
	return append(ev, "description: "+r.Description)
}

func causeCounts(history []*domain.ClassificationResult) map[string]int {
	counts := make(map[string]int)
	for _, h := range history {
		seen := make(map[string]bool)
		for _, g := range h.RootCauses {
			if !seen[g.PrimaryCause] {
				seen[g.PrimaryCause] = true
				counts[g.PrimaryCause]++
			}
		}
	}
	return counts
}

// LastRetryFailed reports whether the newest automatic retry outcome for t
// failed. outcomes are newest first.
func LastRetryFailed(outcomes []*domain.RecoveryOutcome, t domain.ErrorType) bool {
	for _, o := range outcomes {
		if o.ErrorType != t || o.Strategy != domain.StrategyAutomaticRetry {
			continue
		}
		return !o.Success
	}
	return false
}

func summarize(groups []domain.RootCauseAnalysis) domain.RootCauseSummary {
	sum := domain.RootCauseSummary{GroupCount: len(groups)}
	if len(groups) == 0 {
		return sum
	}

	type tally struct {
		text  string
		count int
		first int
	}
	rank := func(m map[string]*tally) []*tally {
		out := make([]*tally, 0, len(m))
		for _, t := range m {
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].count != out[j].count {
				return out[i].count > out[j].count
			}
			return out[i].first < out[j].first
		})
		return out
	}

	causes := make(map[string]*tally)
	factors := make(map[string]*tally)
	order := 0
	for _, g := range groups {
		t, ok := causes[g.PrimaryCause]
		if !ok {
			t = &tally{text: g.PrimaryCause, first: order}
			causes[g.PrimaryCause] = t
			order++
		}
		t.count += len(g.ErrorIDs)
		for _, f := range g.ContributingFactors {
			ft, ok := factors[f]
			if !ok {
				ft = &tally{text: f, first: order}
				factors[f] = ft
				order++
			}
			ft.count++
		}
	}

	sum.MostFrequentCause = rank(causes)[0].text
	for i, t := range rank(factors) {
		if i == 3 {
			break
		}
		sum.TopFactors = append(sum.TopFactors, t.text)
	}
	sum.SystemicIssue = float64(len(causes)) < float64(len(groups))/2
	return sum
}

// GenericReport is the conservative fallback used when analysis fails.
func GenericReport(records []domain.ErrorRecord) *Report {
	report := &Report{}
	for _, g := range partition(records) {
		ids := make([]string, 0, len(g.records))
		for _, r := range g.records {
			ids = append(ids, r.ID)
		}
		report.Groups = append(report.Groups, domain.RootCauseAnalysis{
			Group:           g.key,
			ErrorIDs:        ids,
			PrimaryCause:    "Undetermined cause; manual investigation required",
			ConfidenceLevel: 0.3,
			Recommendations: []string{"Investigate the session manually"},
		})
	}
	report.Summary = summarize(report.Groups)
	return report
}
