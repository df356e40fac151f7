package reconcile

import (
	"sort"
	"strings"

	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/records"
)

// compare diffs the comparison set against the source of truth. Every
// finding is reported on the comparison.
func (r *reconciler) compare(truth, comp *records.Set) []findings.Finding {
	var out []findings.Finding
	name := comp.Name()

	for _, cr := range comp.Records() {
		if comp.Maps(fields.Privileged) {
			if v, ok := cr.Get(fields.Privileged); ok {
				if b, _ := v.Bool(); b {
					out = append(out, findings.New(findings.AccessPrivileged, cr.UserID(), name, fields.Privileged, nil))
				}
			}
		}

		tr, ok := truth.Get(cr.UserID())
		if !ok {
			code := findings.SourceMissing + "_" + findings.Code(statusCategory(cr))
			out = append(out, findings.New(code, cr.UserID(), name, "", nil))
			continue
		}
		out = append(out, r.diff(truth, comp, tr, cr)...)
	}

	for _, tr := range truth.Records() {
		if _, ok := comp.Get(tr.UserID()); !ok {
			out = append(out, findings.New(findings.CompareMissing, tr.UserID(), name, "", nil))
		}
	}
	return out
}

// diff compares one matched pair field by field.
func (r *reconciler) diff(truth, comp *records.Set, tr, cr records.Record) []findings.Finding {
	var out []findings.Finding
	id, name := cr.UserID(), comp.Name()

	for _, field := range r.opts.compareFields {
		if !truth.Maps(field) || !comp.Maps(field) {
			continue
		}
		tp, cp := r.presence(tr, field), r.presence(cr, field)
		if tp == invalid || cp == invalid || (tp == absent && cp == absent) {
			continue
		}
		tv, _ := tr.Get(field)
		cv, _ := cr.Get(field)
		if tp == present && cp == present && tv.Equal(cv) {
			continue
		}

		if field == fields.Status && cr.String(fields.Status) == fields.StatusActive {
			code := findings.Code("COMPARE_ACTIVE_SOURCE_" + statusCategory(tr))
			out = append(out, findings.New(code, id, name, field, nil))
			continue
		}
		spec, _ := r.opts.registry.Lookup(field)
		out = append(out, findings.New(findings.Code(spec.Code+"_MISMATCH"), id, name, field, findings.Params{
			"source":  tr.String(field),
			"compare": cr.String(field),
		}))
	}

	if truth.Maps(fields.Email) && comp.Maps(fields.Email) {
		td, cd := domainOf(tr.String(fields.Email)), domainOf(cr.String(fields.Email))
		if td != "" && cd != "" && td != cd {
			out = append(out, findings.New(findings.DomainMismatch, id, name, fields.Email,
				findings.Params{"source": td, "compare": cd, "domain": td}))
		}
	}

	if truth.Maps(fields.Role) && comp.Maps(fields.Role) {
		if extra := extraAccess(tr.String(fields.Role), cr.String(fields.Role)); len(extra) > 0 {
			out = append(out, findings.New(findings.AccessExtra, id, name, fields.Role,
				findings.Params{"access": strings.Join(extra, ", ")}))
		}
	}
	return out
}

// statusCategory returns the upper-cased status of rec, or UNKNOWN.
func statusCategory(rec records.Record) string {
	if s := rec.String(fields.Status); s != "" {
		return strings.ToUpper(s)
	}
	return "UNKNOWN"
}

// extraAccess returns the roles in compare that truth does not grant,
// sorted and lower-cased.
func extraAccess(truth, compare string) []string {
	have := map[string]bool{}
	for _, r := range splitRoles(truth) {
		have[r] = true
	}
	var extra []string
	for _, r := range splitRoles(compare) {
		if !have[r] {
			extra = append(extra, r)
			have[r] = true
		}
	}
	sort.Strings(extra)
	return extra
}

func splitRoles(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
