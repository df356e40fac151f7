package rules

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/records"
)

// comparand is the value a trigger is evaluated against.
type comparand struct {
	present bool
	text    string
	number  float64
	numeric bool
	boolean bool
	isBool  bool
}

// Evaluate runs every rule against every record of set and returns the
// findings of the rules that fired. Rules on fields the set does not map are
// skipped.
func Evaluate(set *records.Set, rs []*Rule, now time.Time) []findings.Finding {
	var out []findings.Finding
	for _, r := range rs {
		if !set.Maps(r.field) {
			continue
		}
		for _, rec := range set.Records() {
			if f, fired := r.Apply(rec, now); fired {
				out = append(out, f)
			}
		}
	}
	return out
}

// Apply evaluates the rule against one record.
func (r *Rule) Apply(rec records.Record, now time.Time) (findings.Finding, bool) {
	v, ok := rec.Get(r.field)
	if !ok && r.skipEmpty {
		return findings.Finding{}, false
	}

	o := r.comparand(v, ok, now)
	if !r.fires(o) {
		return findings.Finding{}, false
	}

	params := findings.Params{"value": o.text, "field": r.field}
	if r.op == DaysSince {
		params["days"] = o.text
	}
	return findings.Finding{
		Code:     findings.Code(r.name),
		Severity: r.severity,
		UserID:   rec.UserID(),
		Source:   rec.Source(),
		Field:    r.field,
		Message:  findings.Render(r.reason, params),
	}, true
}

func (r *Rule) comparand(v fields.Value, present bool, now time.Time) comparand {
	if !present {
		return comparand{}
	}
	o := comparand{present: true, text: v.String()}

	if r.op == DaysSince {
		t, isDate := v.Time()
		if !isDate {
			return comparand{present: true, text: o.text}
		}
		days := int(math.Floor(now.Sub(t).Hours() / 24))
		o.number, o.numeric = float64(days), true
		o.text = strconv.Itoa(days)
		return o
	}

	if b, isBool := v.Bool(); isBool {
		o.boolean, o.isBool = b, true
	}
	if n, err := strconv.ParseFloat(o.text, 64); err == nil {
		o.number, o.numeric = n, true
	}
	return o
}

func (r *Rule) fires(o comparand) bool {
	switch r.trigger {
	case IsNone:
		return !o.present
	case IsNotNone:
		return o.present
	}

	if r.trigger.numeric() {
		if !o.numeric {
			return false
		}
		switch r.trigger {
		case GreaterThan:
			return o.number > r.number
		case LessThan:
			return o.number < r.number
		case EqualTo:
			return o.number == r.number
		default:
			return o.number != r.number
		}
	}

	text := o.text
	switch r.trigger {
	case EqualToCase:
		return strings.EqualFold(text, r.operand)
	case NotEqualToCase:
		return !strings.EqualFold(text, r.operand)
	case Contains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(r.operand))
	case NotContains:
		return !strings.Contains(strings.ToLower(text), strings.ToLower(r.operand))
	case StartsWith:
		return strings.HasPrefix(text, r.operand)
	case EndsWith:
		return strings.HasSuffix(text, r.operand)
	case StartsWithCase:
		return strings.HasPrefix(strings.ToLower(text), strings.ToLower(r.operand))
	case EndsWithCase:
		return strings.HasSuffix(strings.ToLower(text), strings.ToLower(r.operand))
	case Matches:
		return r.re.MatchString(text)
	case NotMatches:
		return !r.re.MatchString(text)
	case In:
		return r.values[text]
	case NotIn:
		return !r.values[text]
	case IsTrue:
		return o.isBool && o.boolean
	case IsFalse:
		return o.isBool && !o.boolean
	}
	return false
}
