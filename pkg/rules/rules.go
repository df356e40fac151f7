// Package rules compiles and evaluates declarative validation rules.
//
// A rule optionally transforms a field value (Operation), then compares it
// with an operand (Trigger). Operations and triggers are closed sets; an
// unknown name fails compilation with a *errors.RuleError.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/findings"
)

// Operation transforms a field value before the trigger is evaluated.
type Operation int

// Operations.
const (
	Identity Operation = iota
	DaysSince
)

var operationNames = map[string]Operation{
	"":           Identity,
	"identity":   Identity,
	"none":       Identity,
	"days_since": DaysSince,
}

// String returns the configuration name of the operation.
func (o Operation) String() string {
	if o == DaysSince {
		return "days_since"
	}
	return "identity"
}

// Trigger is the predicate that decides whether a rule fires.
type Trigger int

// Triggers.
const (
	GreaterThan Trigger = iota
	LessThan
	EqualTo
	NotEqualTo
	EqualToCase
	NotEqualToCase
	Contains
	NotContains
	StartsWith
	EndsWith
	StartsWithCase
	EndsWithCase
	Matches
	NotMatches
	In
	NotIn
	IsTrue
	IsFalse
	IsNone
	IsNotNone
)

var triggerNames = []string{
	GreaterThan:    "greater_than",
	LessThan:       "less_than",
	EqualTo:        "equal_to",
	NotEqualTo:     "not_equal_to",
	EqualToCase:    "equal_to_case",
	NotEqualToCase: "not_equal_to_case",
	Contains:       "contains",
	NotContains:    "not_contains",
	StartsWith:     "starts_with",
	EndsWith:       "ends_with",
	StartsWithCase: "starts_with_case",
	EndsWithCase:   "ends_with_case",
	Matches:        "matches",
	NotMatches:     "not_matches",
	In:             "in",
	NotIn:          "not_in",
	IsTrue:         "is_true",
	IsFalse:        "is_false",
	IsNone:         "is_none",
	IsNotNone:      "is_not_none",
}

// String returns the configuration name of the trigger.
func (t Trigger) String() string {
	if int(t) >= 0 && int(t) < len(triggerNames) {
		return triggerNames[t]
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// ParseTrigger parses a trigger name.
func ParseTrigger(s string) (Trigger, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range triggerNames {
		if name == s {
			return Trigger(i), true
		}
	}
	return 0, false
}

func (t Trigger) numeric() bool {
	return t == GreaterThan || t == LessThan || t == EqualTo || t == NotEqualTo
}

// Definition is a rule as written in configuration.
type Definition struct {
	Name      string   `yaml:"name" json:"name" validate:"required"`
	Reason    string   `yaml:"reason" json:"reason"`
	Severity  string   `yaml:"severity" json:"severity" validate:"required"`
	Field     string   `yaml:"field" json:"field" validate:"required"`
	Operation string   `yaml:"operation" json:"operation,omitempty"`
	Trigger   string   `yaml:"trigger" json:"trigger" validate:"required"`
	Value     string   `yaml:"value" json:"value,omitempty"`
	Values    []string `yaml:"values" json:"values,omitempty"`
	Regex     string   `yaml:"regex" json:"regex,omitempty"`
	SkipEmpty bool     `yaml:"skip-empty" json:"skip_empty,omitempty"`
}

// Rule is a compiled, immutable validation rule.
type Rule struct {
	name      string
	reason    string
	severity  findings.Severity
	field     string
	op        Operation
	trigger   Trigger
	operand   string
	number    float64
	values    map[string]bool
	re        *regexp.Regexp
	skipEmpty bool
}

// Name returns the rule name, which is also the code of its findings.
func (r *Rule) Name() string { return r.name }

// Field returns the field the rule inspects.
func (r *Rule) Field() string { return r.field }

// Severity returns the severity of the rule's findings.
func (r *Rule) Severity() findings.Severity { return r.severity }

// Trigger returns the rule's trigger.
func (r *Rule) Trigger() Trigger { return r.trigger }

// Compile validates a definition and returns the compiled rule.
func Compile(d Definition) (*Rule, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return nil, errors.NewRuleError("", d.Field, "rule has no name", nil)
	}
	fail := func(format string, args ...any) error {
		return errors.NewRuleError(name, d.Field, fmt.Sprintf(format, args...), nil)
	}
	if strings.TrimSpace(d.Field) == "" {
		return nil, fail("rule has no field")
	}

	sev, err := findings.ParseSeverity(d.Severity)
	if err != nil {
		return nil, errors.NewRuleError(name, d.Field, err.Error(), err)
	}
	op, ok := operationNames[strings.ToLower(strings.TrimSpace(d.Operation))]
	if !ok {
		return nil, fail("unknown operation %q", d.Operation)
	}
	trig, ok := ParseTrigger(d.Trigger)
	if !ok {
		return nil, fail("unknown trigger %q", d.Trigger)
	}

	r := &Rule{
		name:      name,
		reason:    d.Reason,
		severity:  sev,
		field:     strings.TrimSpace(d.Field),
		op:        op,
		trigger:   trig,
		operand:   d.Value,
		skipEmpty: d.SkipEmpty,
	}
	if r.reason == "" {
		r.reason = name
	}

	switch {
	case trig.numeric():
		n, err := strconv.ParseFloat(strings.TrimSpace(d.Value), 64)
		if err != nil {
			return nil, fail("trigger %s needs a numeric value, got %q", trig, d.Value)
		}
		r.number = n
	case trig == Matches || trig == NotMatches:
		pattern := d.Regex
		if pattern == "" {
			pattern = d.Value
		}
		if pattern == "" {
			return nil, fail("trigger %s needs a regex", trig)
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, errors.NewRuleError(name, d.Field, fmt.Sprintf("bad regex %q", pattern), err)
		}
		r.re = re
	case trig == In || trig == NotIn:
		if len(d.Values) == 0 {
			return nil, fail("trigger %s needs a values list", trig)
		}
		r.values = make(map[string]bool, len(d.Values))
		for _, v := range d.Values {
			r.values[v] = true
		}
	}
	if op == DaysSince && !trig.numeric() && trig != IsNone && trig != IsNotNone {
		return nil, fail("operation days_since only supports numeric and nullity triggers, not %s", trig)
	}
	return r, nil
}

// CompileAll compiles definitions. Rule names must be unique within the list.
func CompileAll(defs []Definition) ([]*Rule, error) {
	out := make([]*Rule, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		r, err := Compile(d)
		if err != nil {
			return nil, err
		}
		if seen[r.name] {
			return nil, errors.NewRuleError(r.name, r.field, "rule name declared twice", nil)
		}
		seen[r.name] = true
		out = append(out, r)
	}
	return out, nil
}

// Merge returns scoped rules followed by the global rules whose names are
// not shadowed by a scoped rule.
func Merge(scoped, global []*Rule) []*Rule {
	names := make(map[string]bool, len(scoped))
	out := make([]*Rule, 0, len(scoped)+len(global))
	for _, r := range scoped {
		names[r.name] = true
		out = append(out, r)
	}
	for _, r := range global {
		if !names[r.name] {
			out = append(out, r)
		}
	}
	return out
}
