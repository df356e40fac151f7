package fields

import (
	"strconv"
	"strings"
	"time"
)

// Value is a normalized, typed field value. The zero Value is not valid;
// absent fields are simply not stored.
type Value struct {
	kind Kind
	str  string
	t    time.Time
	b    bool
}

// StringValue returns a value of a textual kind (string, email, name, enum).
func StringValue(kind Kind, s string) Value {
	return Value{kind: kind, str: s}
}

// TimeValue returns a date value.
func TimeValue(t time.Time) Value {
	return Value{kind: KindDate, t: t}
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// Time returns the date held by v.
func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindDate
}

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// String renders the value the way it is written to baseline files.
// Dates at midnight UTC render as a plain date.
func (v Value) String() string {
	switch v.kind {
	case KindDate:
		t := v.t.UTC()
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Equal compares two values, ignoring case for email and name kinds.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindDate:
		return v.t.Equal(o.t)
	case KindBool:
		return v.b == o.b
	case KindEmail, KindName:
		return strings.EqualFold(v.str, o.str)
	default:
		return v.str == o.str
	}
}
