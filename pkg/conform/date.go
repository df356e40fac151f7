package conform

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// North American and European zone abbreviations seen in exports. A parsed
// abbreviation only carries an offset when the parse location knows it, so
// a trailing one is resolved here and the rest parsed in that zone.
var zoneAbbreviations = map[string]*time.Location{
	"UTC":  time.UTC,
	"GMT":  time.UTC,
	"EST":  time.FixedZone("EST", -5*3600),
	"EDT":  time.FixedZone("EDT", -4*3600),
	"CST":  time.FixedZone("CST", -6*3600),
	"CDT":  time.FixedZone("CDT", -5*3600),
	"MST":  time.FixedZone("MST", -7*3600),
	"MDT":  time.FixedZone("MDT", -6*3600),
	"PST":  time.FixedZone("PST", -8*3600),
	"PDT":  time.FixedZone("PDT", -7*3600),
	"CET":  time.FixedZone("CET", 1*3600),
	"CEST": time.FixedZone("CEST", 2*3600),
	"BST":  time.FixedZone("BST", 1*3600),
}

// ParseDate parses s in any layout dateparse recognizes. Ambiguous slash
// dates are month first. Dates without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := time.UTC
	if i := strings.LastIndexByte(s, ' '); i > 0 {
		if z, ok := zoneAbbreviations[strings.ToUpper(s[i+1:])]; ok {
			loc = z
			s = strings.TrimSpace(s[:i])
		}
	}
	return dateparse.ParseIn(s, loc)
}

// IsSentinel reports whether t is the 1970-01-01 00:00 placeholder exports
// use for "never".
func IsSentinel(t time.Time) bool {
	if t.Unix() == 0 {
		return true
	}
	y, m, d := t.Date()
	return y == 1970 && m == time.January && d == 1 &&
		t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
