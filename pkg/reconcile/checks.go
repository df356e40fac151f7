package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/accessreview/pkg/conform"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/records"
)

// presence classifies a field of a record.
type presence int

const (
	absent  presence = iota // unmapped, blank or a sentinel date
	present                 // has a normalized value
	invalid                 // raw text that did not conform
)

func (r *reconciler) presence(rec records.Record, field string) presence {
	if rec.Has(field) {
		return present
	}
	text, ok := rec.Raw(field)
	if !ok || strings.TrimSpace(text) == "" {
		return absent
	}
	spec, ok := r.opts.registry.Lookup(field)
	if !ok {
		return absent
	}
	// Conformance failures were already reported during normalization.
	if _, _, err := conform.Conform(spec, text, false); err != nil {
		return invalid
	}
	return absent
}

// checkSet runs the single-set checks against every record of set.
func (r *reconciler) checkSet(set *records.Set, truth *truthIndex, now time.Time) []findings.Finding {
	var out []findings.Finding
	for _, rec := range set.Records() {
		if set.Maps(fields.Manager) {
			out = append(out, r.checkManager(set, rec, truth)...)
		}
		out = append(out, r.checkDomain(set, rec)...)
		if set.Maps(fields.LastLogin) {
			out = append(out, r.checkLogin(set, rec, now)...)
		}
	}
	return out
}

func (r *reconciler) checkManager(set *records.Set, rec records.Record, truth *truthIndex) []findings.Finding {
	switch r.presence(rec, fields.Manager) {
	case invalid:
		return nil
	case absent:
		return []findings.Finding{findings.New(findings.ManagerMissing, rec.UserID(), set.Name(), fields.Manager, nil)}
	}

	ref := rec.String(fields.Manager)
	params := findings.Params{"manager": ref}
	mgr, ok := truth.byEmail[strings.ToLower(ref)]
	if !ok {
		mgr, ok = truth.set.Get(ref)
	}
	if !ok {
		return []findings.Finding{findings.New(findings.ManagerInvalid, rec.UserID(), set.Name(), fields.Manager, params)}
	}
	if !isActive(truth.set, mgr) && isActive(set, rec) {
		return []findings.Finding{findings.New(findings.ManagerInactive, rec.UserID(), set.Name(), fields.Manager, params)}
	}
	return nil
}

func (r *reconciler) checkDomain(set *records.Set, rec records.Record) []findings.Finding {
	if len(r.opts.domains) == 0 {
		return nil
	}
	domain := domainOf(rec.String(fields.Email))
	if domain == "" || r.opts.domains[domain] {
		return nil
	}
	return []findings.Finding{findings.New(findings.DomainInvalid, rec.UserID(), set.Name(), fields.Email,
		findings.Params{"domain": domain})}
}

func (r *reconciler) checkLogin(set *records.Set, rec records.Record, now time.Time) []findings.Finding {
	if r.presence(rec, fields.LastLogin) != absent {
		return nil
	}
	if v, ok := rec.Get(fields.CreatedDate); ok {
		if created, ok := v.Time(); ok {
			age := int(math.Floor(now.Sub(created).Hours() / 24))
			return []findings.Finding{findings.New(findings.LoginNeverAged, rec.UserID(), set.Name(), fields.LastLogin,
				findings.Params{"age": strconv.Itoa(age)})}
		}
	}
	return []findings.Finding{findings.New(findings.LoginNever, rec.UserID(), set.Name(), fields.LastLogin, nil)}
}

// isActive reports whether rec counts as active: its status when known,
// otherwise whether it ever logged in when the set tracks logins.
func isActive(set *records.Set, rec records.Record) bool {
	if v, ok := rec.Get(fields.Status); ok {
		return v.String() == fields.StatusActive
	}
	if set.Maps(fields.LastLogin) {
		return rec.Has(fields.LastLogin)
	}
	return true
}

func domainOf(email string) string {
	i := strings.LastIndexByte(email, '@')
	if i < 0 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}
