package reconcile

import (
	"fmt"
	"time"

	"github.com/agentstation/accessreview/pkg/findings"
)

// Result represents the outcome of a reconciliation run.
type Result struct {
	// Findings is the filtered, deduplicated and sorted finding list.
	Findings []findings.Finding

	// Metadata about the run
	Metadata ResultMetadata
}

// ResultMetadata contains metadata about the reconciliation process.
type ResultMetadata struct {
	// StartTime when reconciliation started
	StartTime time.Time

	// EndTime when reconciliation completed
	EndTime time.Time

	// Duration of the reconciliation
	Duration time.Duration

	// EvaluatedAt is the instant date operations were computed against
	EvaluatedAt time.Time

	// Truth is the name of the source of truth
	Truth string

	// Comparisons that were reconciled, in input order
	Comparisons []string

	// Statistics about the reconciliation
	Stats ResultStatistics
}

// ResultStatistics contains statistics about the reconciliation.
type ResultStatistics struct {
	Records    map[string]int
	BySeverity map[findings.Severity]int
	Documented int // findings demoted by an exception
	Disabled   int // findings dropped by the disable list
	Duplicates int
	Total      int
}

// NewResult creates a new result with defaults.
func NewResult() *Result {
	return &Result{
		Metadata: ResultMetadata{
			StartTime: time.Now(),
			Stats: ResultStatistics{
				Records:    make(map[string]int),
				BySeverity: make(map[findings.Severity]int),
			},
		},
	}
}

// Finalize calculates duration and statistics.
func (r *Result) Finalize() {
	r.Metadata.EndTime = time.Now()
	r.Metadata.Duration = r.Metadata.EndTime.Sub(r.Metadata.StartTime)
	r.Metadata.Stats.BySeverity = findings.CountBySeverity(r.Findings)
	r.Metadata.Stats.Total = len(r.Findings)
	r.Metadata.Stats.Documented = 0
	for _, f := range r.Findings {
		if f.Code == findings.DocumentedException {
			r.Metadata.Stats.Documented++
		}
	}
}

// Count returns the number of findings with code, including documented
// findings originally carrying it.
func (r *Result) Count(code findings.Code) int {
	n := 0
	for _, f := range r.Findings {
		if f.Is(code) {
			n++
		}
	}
	return n
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	s := r.Metadata.Stats
	if s.Total == 0 {
		return fmt.Sprintf("Reconciled %d comparison(s) against %s. No findings.", len(r.Metadata.Comparisons), r.Metadata.Truth)
	}
	return fmt.Sprintf("Reconciled %d comparison(s) against %s: %d findings (%d compliance, %d error, %d warning, %d notice).",
		len(r.Metadata.Comparisons), r.Metadata.Truth, s.Total,
		s.BySeverity[findings.Compliance], s.BySeverity[findings.Error],
		s.BySeverity[findings.Warning], s.BySeverity[findings.Notice])
}
