// Package exceptions demotes findings covered by documented exceptions.
//
// An exception matches a finding when the field matches, its pattern
// matches the record's value of that field at the start, and its only/skip
// scope admits the finding's source. Findings without a field are matched
// only when they report presence (SOURCE_MISSING_*, COMPARE_MISSING) or when
// the exception lists their code. Exceptions attached to a source are
// tried before global ones; the first match demotes the finding to a NOTICE
// with code DOCUMENTED_EXCEPTION.
package exceptions

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/records"
)

// GlobalScope is the Applied.Scope of exceptions that are not source specific.
const GlobalScope = "global"

// Exception is an override as written in configuration.
type Exception struct {
	Field   string   `yaml:"field" json:"field" validate:"required"`
	Pattern string   `yaml:"pattern" json:"pattern"`
	Reason  string   `yaml:"reason" json:"reason" validate:"required"`
	Only    []string `yaml:"only" json:"only,omitempty"`
	Skip    []string `yaml:"skip" json:"skip,omitempty"`
	Codes   []string `yaml:"codes" json:"codes,omitempty"`
}

// appliesTo reports whether the only/skip scope admits source.
func (e Exception) appliesTo(source string) bool {
	if len(e.Only) > 0 && !slices.Contains(e.Only, source) {
		return false
	}
	return !slices.Contains(e.Skip, source)
}

type compiled struct {
	Exception
	re    *regexp.Regexp
	codes map[findings.Code]bool
}

func compile(list []Exception) ([]compiled, error) {
	out := make([]compiled, 0, len(list))
	for i, e := range list {
		if strings.TrimSpace(e.Field) == "" {
			return nil, errors.NewRuleError(fmt.Sprintf("exception %d", i+1), "", "exception has no field", nil)
		}
		re, err := regexp.Compile("^(?:" + e.Pattern + ")")
		if err != nil {
			return nil, errors.NewRuleError(fmt.Sprintf("exception %d", i+1), e.Field,
				fmt.Sprintf("bad pattern %q", e.Pattern), err)
		}
		c := compiled{Exception: e, re: re}
		if len(e.Codes) > 0 {
			c.codes = make(map[findings.Code]bool, len(e.Codes))
			for _, code := range e.Codes {
				c.codes[findings.Code(strings.ToUpper(strings.TrimSpace(code)))] = true
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// matches checks field, pattern and code filter, ignoring scope.
func (c compiled) matches(f findings.Finding, rec records.Record) bool {
	if c.codes != nil && !c.codes[f.Code] {
		return false
	}
	switch {
	case f.Field == "":
		if c.codes == nil && !presence(f.Code) {
			return false
		}
	case f.Field != c.Field:
		return false
	}
	return c.re.MatchString(valueOf(rec, c.Field))
}

// presence reports whether code is about a user missing from one side.
func presence(code findings.Code) bool {
	return code == findings.CompareMissing || strings.HasPrefix(string(code), string(findings.SourceMissing))
}

// valueOf is the normalized text of field, or its raw text when the value
// did not conform.
func valueOf(rec records.Record, field string) string {
	if v, ok := rec.Get(field); ok {
		return v.String()
	}
	raw, _ := rec.Raw(field)
	return raw
}

// Resolver applies exceptions to findings. It is immutable once built.
type Resolver struct {
	global []compiled
	scoped map[string][]compiled
}

// NewResolver compiles global exceptions and exceptions scoped to a source
// name.
func NewResolver(global []Exception, scoped map[string][]Exception) (*Resolver, error) {
	g, err := compile(global)
	if err != nil {
		return nil, err
	}
	r := &Resolver{global: g, scoped: make(map[string][]compiled, len(scoped))}
	for name, list := range scoped {
		c, err := compile(list)
		if err != nil {
			return nil, errors.NewConfigError("exceptions for "+name, err.Error(), err)
		}
		r.scoped[name] = c
	}
	return r, nil
}

// Resolve returns f unchanged, or demoted by the first matching exception.
// A source-scoped exception that matches but whose skip list names the
// finding's source vetoes the global pass.
func (r *Resolver) Resolve(f findings.Finding, rec records.Record) findings.Finding {
	if f.Code == findings.DocumentedException {
		return f
	}

	for _, c := range r.scoped[f.Source] {
		if !c.matches(f, rec) {
			continue
		}
		if c.appliesTo(f.Source) {
			return demote(f, c.Exception, f.Source)
		}
		if slices.Contains(c.Skip, f.Source) {
			return f
		}
	}
	for _, c := range r.global {
		if c.appliesTo(f.Source) && c.matches(f, rec) {
			return demote(f, c.Exception, GlobalScope)
		}
	}
	return f
}

// Lookup finds the record a finding refers to.
type Lookup func(source, userID string) (records.Record, bool)

// ResolveAll resolves every finding. Findings whose record cannot be found
// are returned unchanged.
func (r *Resolver) ResolveAll(fs []findings.Finding, lookup Lookup) []findings.Finding {
	out := make([]findings.Finding, len(fs))
	for i, f := range fs {
		rec, ok := lookup(f.Source, f.UserID)
		if !ok {
			out[i] = f
			continue
		}
		out[i] = r.Resolve(f, rec)
	}
	return out
}

func demote(f findings.Finding, e Exception, scope string) findings.Finding {
	out := f
	out.OriginalCode = f.Code
	out.Code = findings.DocumentedException
	out.Severity = findings.Notice
	out.Message = fmt.Sprintf("%s (exception: %s)", f.Message, e.Reason)
	out.Exception = &findings.Applied{
		Field:   e.Field,
		Pattern: e.Pattern,
		Reason:  e.Reason,
		Scope:   scope,
	}
	return out
}
