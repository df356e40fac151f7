// Package mapping resolves source-to-schema column mappings.
//
// A Definition maps target schema fields to source columns and carries
// ordered rewrite rules per field. Definitions may inherit from a parent;
// the Resolver flattens the chain once into an immutable Resolved mapping
// before any row is processed.
package mapping

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
)

// MatchKind selects how a rewrite rule matches a raw value.
type MatchKind int

// Match kinds.
const (
	// MatchExact replaces the value when it equals the pattern. An empty
	// pattern therefore matches an empty value.
	MatchExact MatchKind = iota
	// MatchRegex replaces the whole value with the literal replacement when
	// the pattern matches at the start of the value.
	MatchRegex
	// MatchCapture expands capture references ($1, ${name}) in the
	// replacement from the pattern applied to the raw value.
	MatchCapture
)

// String returns the configuration name of the match kind.
func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchRegex:
		return "regex"
	case MatchCapture:
		return "capture"
	default:
		return fmt.Sprintf("match(%d)", int(k))
	}
}

// ParseMatchKind parses a match kind name.
func ParseMatchKind(s string) (MatchKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return MatchExact, nil
	case "regex":
		return MatchRegex, nil
	case "capture", "regex_capture", "regexcapture":
		return MatchCapture, nil
	default:
		return 0, fmt.Errorf("unknown rewrite match kind %q", s)
	}
}

// RewriteRule is one value transformation. Rules are evaluated in order and
// the first match wins.
type RewriteRule struct {
	Kind        MatchKind
	Pattern     string
	Replacement string
}

// Definition is one layer of a mapping, as loaded from configuration.
type Definition struct {
	Name    string
	Inherit string
	Columns map[string]string        // target field -> source column
	Rewrite map[string][]RewriteRule // target field -> ordered rules
}

// Column is a resolved target field with its source column and compiled
// rewrite rules.
type Column struct {
	Field  string
	Source string

	header *regexp.Regexp
	rules  []compiledRule
}

type compiledRule struct {
	RewriteRule
	re *regexp.Regexp
}

// Rewrite applies the column's rewrite rules to raw. It reports whether a
// rule matched; when none does the raw value is returned unchanged.
func (c Column) Rewrite(raw string) (string, bool) {
	for _, r := range c.rules {
		switch r.Kind {
		case MatchExact:
			if raw == r.Pattern {
				return r.Replacement, true
			}
		case MatchRegex:
			if r.re.MatchString(raw) {
				return r.Replacement, true
			}
		case MatchCapture:
			if m := r.re.FindStringSubmatchIndex(raw); m != nil {
				return string(r.re.ExpandString(nil, r.Replacement, raw, m)), true
			}
		}
	}
	return raw, false
}

// Rules returns the column's rewrite rules in evaluation order.
func (c Column) Rules() []RewriteRule {
	out := make([]RewriteRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.RewriteRule
	}
	return out
}

// Resolved is a flattened mapping. It is safe for concurrent use.
type Resolved struct {
	name    string
	chain   []string
	columns []Column
	index   map[string]int
}

// Name returns the name of the definition that was resolved.
func (m *Resolved) Name() string { return m.name }

// Chain returns the inheritance chain, child first.
func (m *Resolved) Chain() []string { return append([]string(nil), m.chain...) }

// Columns returns the resolved columns ordered by target field.
func (m *Resolved) Columns() []Column { return append([]Column(nil), m.columns...) }

// Column returns the column mapped to field.
func (m *Resolved) Column(field string) (Column, bool) {
	i, ok := m.index[field]
	if !ok {
		return Column{}, false
	}
	return m.columns[i], true
}

// Has reports whether field is mapped.
func (m *Resolved) Has(field string) bool {
	_, ok := m.index[field]
	return ok
}

// Fields returns the mapped target fields in order.
func (m *Resolved) Fields() []string {
	out := make([]string, len(m.columns))
	for i, c := range m.columns {
		out[i] = c.Field
	}
	return out
}

// Validate checks the mapping against the schema: every target must be a
// known field and every required field must be mapped.
func (m *Resolved) Validate(reg *fields.Registry) error {
	for _, c := range m.columns {
		if _, ok := reg.Lookup(c.Field); !ok {
			return errors.NewConfigError("mapping "+m.name, fmt.Sprintf("unknown target field %q", c.Field), nil)
		}
	}
	for _, name := range reg.Required() {
		if !m.Has(name) {
			return errors.NewConfigError("mapping "+m.name, fmt.Sprintf("required field %q is not mapped", name), nil)
		}
	}
	return nil
}

// Binding ties a resolved column to the header it reads from.
type Binding struct {
	Column
	Header string
}

// Bind matches every column against the file headers. A literal header name
// wins; otherwise the first header matched by the column treated as a
// start-anchored pattern is used. An unmatched column is a configuration
// error.
func (m *Resolved) Bind(headers []string) ([]Binding, error) {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	out := make([]Binding, 0, len(m.columns))
	for _, c := range m.columns {
		header := ""
		if present[c.Source] {
			header = c.Source
		} else if c.header != nil {
			for _, h := range headers {
				if c.header.MatchString(h) {
					header = h
					break
				}
			}
		}
		if header == "" {
			return nil, errors.NewConfigError("mapping "+m.name,
				fmt.Sprintf("column %q for field %q not found in headers", c.Source, c.Field), nil)
		}
		out = append(out, Binding{Column: c, Header: header})
	}
	return out, nil
}

func newResolved(name string, chain []string, cols map[string]string, rewrite map[string][]RewriteRule) (*Resolved, error) {
	names := make([]string, 0, len(cols))
	for f := range cols {
		names = append(names, f)
	}
	sort.Strings(names)

	m := &Resolved{
		name:    name,
		chain:   chain,
		columns: make([]Column, 0, len(names)),
		index:   make(map[string]int, len(names)),
	}
	for _, f := range names {
		src := cols[f]
		if strings.TrimSpace(src) == "" {
			return nil, errors.NewConfigError("mapping "+name, fmt.Sprintf("field %q maps to an empty column", f), nil)
		}
		col := Column{Field: f, Source: src}
		// Column names that are not valid patterns are only matched literally.
		if re, err := regexp.Compile(anchor(src)); err == nil {
			col.header = re
		}
		for i, r := range rewrite[f] {
			cr, err := compileRule(r)
			if err != nil {
				return nil, errors.NewConfigError("mapping "+name,
					fmt.Sprintf("rewrite %d for field %q: %v", i+1, f, err), err)
			}
			col.rules = append(col.rules, cr)
		}
		m.index[f] = len(m.columns)
		m.columns = append(m.columns, col)
	}
	for f := range rewrite {
		if _, ok := cols[f]; !ok {
			return nil, errors.NewConfigError("mapping "+name, fmt.Sprintf("rewrite for unmapped field %q", f), nil)
		}
	}
	return m, nil
}

func compileRule(r RewriteRule) (compiledRule, error) {
	cr := compiledRule{RewriteRule: r}
	switch r.Kind {
	case MatchExact:
		return cr, nil
	case MatchRegex, MatchCapture:
		re, err := regexp.Compile(anchor(r.Pattern))
		if err != nil {
			return cr, err
		}
		cr.re = re
		return cr, nil
	default:
		return cr, fmt.Errorf("unknown match kind %v", r.Kind)
	}
}

// anchor makes a pattern match only at the start of the input.
func anchor(p string) string {
	return "^(?:" + p + ")"
}
