// Package findings defines the finding model, the catalog of stable finding
// codes, and the ordering used for deterministic output.
package findings

import (
	"fmt"
	"slices"
	"strings"
)

// Severity classifies a finding.
type Severity string

// Severities, most severe first.
const (
	Compliance Severity = "COMPLIANCE"
	Error      Severity = "ERROR"
	Warning    Severity = "WARNING"
	Notice     Severity = "NOTICE"
)

// Rank orders severities; lower is more severe.
func (s Severity) Rank() int {
	switch s {
	case Compliance:
		return 0
	case Error:
		return 1
	case Warning:
		return 2
	case Notice:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() < 4 }

// ParseSeverity parses a severity name, ignoring case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Code is a stable finding identifier such as MANAGER_INACTIVE.
type Code string

// Applied records the exception that demoted a finding.
type Applied struct {
	Field   string `json:"field" yaml:"field"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Reason  string `json:"reason" yaml:"reason"`
	Scope   string `json:"scope" yaml:"scope"` // the comparison name, or "global"
}

// Finding is one reported discrepancy or rule violation.
type Finding struct {
	Code         Code     `json:"code" yaml:"code"`
	Severity     Severity `json:"severity" yaml:"severity"`
	UserID       string   `json:"user_id" yaml:"user_id"`
	Source       string   `json:"source" yaml:"source"`
	Field        string   `json:"field,omitempty" yaml:"field,omitempty"`
	Message      string   `json:"message" yaml:"message"`
	OriginalCode Code     `json:"original_code,omitempty" yaml:"original_code,omitempty"`
	Exception    *Applied `json:"exception,omitempty" yaml:"exception,omitempty"`
}

// Is reports whether the finding carries code, either currently or before an
// exception demoted it.
func (f Finding) Is(code Code) bool {
	return f.Code == code || f.OriginalCode == code
}

// String implements fmt.Stringer.
func (f Finding) String() string {
	return fmt.Sprintf("%s/%s %s %s: %s", f.Source, f.UserID, f.Severity, f.Code, f.Message)
}

// Less orders findings by user, source, severity rank and code.
func Less(a, b Finding) bool {
	return Compare(a, b) < 0
}

// Compare orders findings by user, source, severity rank, code, field and
// message. The trailing keys only make the order total.
func Compare(a, b Finding) int {
	if c := strings.Compare(a.UserID, b.UserID); c != 0 {
		return c
	}
	if c := strings.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() - b.Severity.Rank()
	}
	if c := strings.Compare(string(a.Code), string(b.Code)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Field, b.Field); c != 0 {
		return c
	}
	return strings.Compare(a.Message, b.Message)
}

// Sort sorts findings in place.
func Sort(fs []Finding) {
	slices.SortStableFunc(fs, Compare)
}

// Dedupe removes repeated findings, keeping the first occurrence. Two
// findings are the same when code, user, source, field and message match.
func Dedupe(fs []Finding) []Finding {
	type key struct {
		code    Code
		user    string
		source  string
		field   string
		message string
	}
	seen := make(map[key]bool, len(fs))
	out := fs[:0:0]
	for _, f := range fs {
		k := key{f.Code, f.UserID, f.Source, f.Field, f.Message}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// Filter drops findings whose code, or original code, is disabled.
func Filter(fs []Finding, disabled map[Code]bool) []Finding {
	if len(disabled) == 0 {
		return fs
	}
	out := make([]Finding, 0, len(fs))
	for _, f := range fs {
		if disabled[f.Code] || (f.OriginalCode != "" && disabled[f.OriginalCode]) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(fs []Finding) map[Severity]int {
	out := make(map[Severity]int, 4)
	for _, f := range fs {
		out[f.Severity]++
	}
	return out
}
