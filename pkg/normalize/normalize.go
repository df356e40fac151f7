// Package normalize turns raw tabular rows into normalized record sets.
//
// For every row and mapped field the pipeline applies the column's rewrite
// rules, then conforms the result against the field's specification. Bad
// values become findings and the rest of the row is kept. A row whose
// required user_id cannot be conformed is skipped with a finding; a repeated
// user_id aborts with a *errors.DuplicateIDError.
package normalize

import (
	"context"
	"fmt"

	"github.com/agentstation/accessreview/pkg/conform"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/logging"
	"github.com/agentstation/accessreview/pkg/mapping"
	"github.com/agentstation/accessreview/pkg/records"
)

// Row is one raw input row keyed by column header.
type Row map[string]string

// Pipeline normalizes row batches. It is safe for concurrent use.
type Pipeline struct {
	registry  *fields.Registry
	conformer *conform.Conformer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegistry overrides the field schema.
func WithRegistry(r *fields.Registry) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.registry = r
		}
	}
}

// WithConformer overrides the value conformer.
func WithConformer(c *conform.Conformer) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.conformer = c
		}
	}
}

// New returns a pipeline using the default schema.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  fields.Default(),
		conformer: conform.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Normalize maps, rewrites and conforms rows into a record set named name.
// Configuration problems (mapping invalid for the schema, mapped column not
// in headers, duplicate user_id) are returned as errors; data problems are
// returned as findings.
func (p *Pipeline) Normalize(ctx context.Context, name string, headers []string, rows []Row, m *mapping.Resolved) (*records.Set, []findings.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.WrapCanceled(err)
	}
	if m == nil {
		return nil, nil, errors.NewConfigError("normalize", fmt.Sprintf("no mapping for %s", name), nil)
	}
	if err := m.Validate(p.registry); err != nil {
		return nil, nil, err
	}
	bindings, err := m.Bind(headers)
	if err != nil {
		return nil, nil, err
	}

	log := logging.FromContext(logging.WithSource(ctx, name))

	var (
		recs []records.Record
		out  []findings.Finding
	)
	for i, row := range rows {
		rowNum := i + 1
		rec, fs, ok := p.normalizeRow(name, rowNum, row, bindings)
		out = append(out, fs...)
		if ok {
			recs = append(recs, rec)
		}
	}

	set, err := records.NewSet(name, m.Fields(), recs)
	if err != nil {
		return nil, nil, err
	}

	log.Debug().
		Int("rows", len(rows)).
		Int("records", set.Len()).
		Int("findings", len(out)).
		Msg("normalized source")
	return set, out, nil
}

func (p *Pipeline) normalizeRow(source string, rowNum int, row Row, bindings []mapping.Binding) (records.Record, []findings.Finding, bool) {
	var (
		userID string
		out    []findings.Finding
	)
	values := make(map[string]fields.Value, len(bindings))
	raw := make(map[string]string, len(bindings))

	// Field findings are keyed by user_id, so it is conformed first.
	ordered := make([]mapping.Binding, 0, len(bindings))
	for _, b := range bindings {
		if spec, _ := p.registry.Lookup(b.Field); spec.Required {
			ordered = append([]mapping.Binding{b}, ordered...)
		} else {
			ordered = append(ordered, b)
		}
	}

	rowRef := fmt.Sprintf("row %d", rowNum)
	for _, b := range ordered {
		spec, _ := p.registry.Lookup(b.Field)
		text, rewritten := b.Rewrite(row[b.Header])
		raw[b.Field] = text

		v, ok, err := p.conformer.Conform(spec, text, rewritten)
		params := findings.Params{"value": text, b.Field: text}

		if spec.Required {
			switch {
			case err != nil:
				return records.Record{}, []findings.Finding{
					findings.New(findings.Code(spec.Code+"_INVALID"), rowRef, source, b.Field, params),
				}, false
			case !ok:
				return records.Record{}, []findings.Finding{
					findings.New(findings.Code(spec.Code+"_MISSING"), rowRef, source, b.Field, params),
				}, false
			}
			if b.Field == fields.UserID {
				userID = v.String()
			} else {
				values[b.Field] = v
			}
			continue
		}

		switch {
		case err != nil:
			out = append(out, findings.New(findings.Code(spec.Code+"_INVALID"), userID, source, b.Field, params))
		case ok:
			values[b.Field] = v
		case spec.Expected:
			out = append(out, findings.New(findings.Code(spec.Code+"_MISSING"), userID, source, b.Field, params))
		}
	}

	rec, err := records.New(source, rowNum, userID, values, raw)
	if err != nil {
		return records.Record{}, append(out, findings.New("USER_ID_MISSING", rowRef, source, fields.UserID, nil)), false
	}
	return rec, out, true
}
