package config

import (
	"fmt"
	"path/filepath"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/exceptions"
	"github.com/agentstation/accessreview/pkg/rules"
)

// ruleEntry is a validation rule as written in YAML. Value fields are
// decoded loosely so that `value: 90` and `value: "90"` mean the same.
type ruleEntry struct {
	Name      string `yaml:"name"`
	Reason    string `yaml:"reason"`
	Severity  string `yaml:"severity"`
	Field     string `yaml:"field"`
	Operation string `yaml:"operation"`
	Trigger   string `yaml:"trigger"`
	Value     any    `yaml:"value"`
	Values    []any  `yaml:"values"`
	Regex     string `yaml:"regex"`
	SkipEmpty bool   `yaml:"skip-empty"`
}

func (e ruleEntry) definition() rules.Definition {
	d := rules.Definition{
		Name:      e.Name,
		Reason:    e.Reason,
		Severity:  e.Severity,
		Field:     e.Field,
		Operation: e.Operation,
		Trigger:   e.Trigger,
		Value:     text(e.Value),
		Regex:     e.Regex,
		SkipEmpty: e.SkipEmpty,
	}
	for _, v := range e.Values {
		d.Values = append(d.Values, text(v))
	}
	return d
}

type exceptionEntry struct {
	Field   string   `yaml:"field"`
	Pattern any      `yaml:"pattern"`
	Reason  string   `yaml:"reason"`
	Only    []string `yaml:"only"`
	Skip    []string `yaml:"skip"`
	Codes   []string `yaml:"codes"`
}

func (e exceptionEntry) exception() exceptions.Exception {
	return exceptions.Exception{
		Field:   e.Field,
		Pattern: text(e.Pattern),
		Reason:  e.Reason,
		Only:    e.Only,
		Skip:    e.Skip,
		Codes:   e.Codes,
	}
}

// rulesFile accepts both the sectioned layout
//
//	validation:
//	  rules: [...]
//	comparison:
//	  exceptions: [...]
//
// and top-level rules and exceptions lists.
type rulesFile struct {
	Validation struct {
		Rules []ruleEntry `yaml:"rules"`
	} `yaml:"validation"`
	Comparison struct {
		Exceptions []exceptionEntry `yaml:"exceptions"`
	} `yaml:"comparison"`
	Rules      []ruleEntry      `yaml:"rules"`
	Exceptions []exceptionEntry `yaml:"exceptions"`
}

// RuleSet is the content of a rules file.
type RuleSet struct {
	Path       string
	Rules      []rules.Definition
	Exceptions []exceptions.Exception
}

// LoadRules reads a rules file. Entries are checked for required keys
// here; operations, triggers and patterns are checked when compiled.
func LoadRules(path string) (*RuleSet, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WrapIO("resolve", path, err)
	}
	var f rulesFile
	if err := readYAML(abs, &f); err != nil {
		return nil, err
	}

	rs := &RuleSet{Path: abs}
	for i, e := range append(f.Validation.Rules, f.Rules...) {
		d := e.definition()
		if err := checkStruct(fmt.Sprintf("rules %s: rule %d", path, i+1), &d); err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, d)
	}
	for i, e := range append(f.Comparison.Exceptions, f.Exceptions...) {
		x := e.exception()
		if err := checkStruct(fmt.Sprintf("rules %s: exception %d", path, i+1), &x); err != nil {
			return nil, err
		}
		rs.Exceptions = append(rs.Exceptions, x)
	}
	return rs, nil
}
