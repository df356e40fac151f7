package findings

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agentstation/accessreview/pkg/constants"
)

// Catalog codes.
const (
	AccessExtra      Code = "ACCESS_EXTRA"
	AccessPrivileged Code = "ACCESS_PRIVILEGED"

	CompareMissing Code = "COMPARE_MISSING"
	SourceMissing  Code = "SOURCE_MISSING"

	DocumentedException Code = "DOCUMENTED_EXCEPTION"

	DomainInvalid  Code = "DOMAIN_INVALID"
	DomainMismatch Code = "DOMAIN_MISMATCH"

	LoginNever     Code = "LOGIN_NEVER"
	LoginNeverAged Code = "LOGIN_NEVER_AGED"

	ManagerInactive Code = "MANAGER_INACTIVE"
	ManagerInvalid  Code = "MANAGER_INVALID"
	ManagerMissing  Code = "MANAGER_MISSING"

	StatusMismatch Code = "STATUS_MISMATCH"
)

// Definition describes a catalog code.
type Definition struct {
	Code     Code     `json:"code" yaml:"code"`
	Severity Severity `json:"severity" yaml:"severity"`
	Template string   `json:"template" yaml:"template"`
}

// Params are the substitution values for a template.
type Params map[string]string

var catalog = map[Code]Definition{}

func define(code Code, sev Severity, template string) {
	catalog[code] = Definition{Code: code, Severity: sev, Template: template}
}

func init() {
	define(AccessExtra, Warning, "Has access in comparison that is not in source of truth ({access})")
	define("ACCESS_INVALID", Error, `Invalid access: "{access}"`)
	define("ACCESS_MISSING", Error, "No access")
	define(AccessPrivileged, Compliance, "Privileged access")

	define("DEPT_INVALID", Error, `Invalid or unexpected department: "{value}"`)
	define("DEPT_MISMATCH", Warning, `Department does not match between sources (source: "{source}", compare: "{compare}")`)
	define("DEPT_MISSING", Error, "Missing department")

	define(DomainInvalid, Error, `Email domain is not approved (domain: "{domain}")`)
	define(DomainMismatch, Error, `Email domain does not match (source: "{source}", compare: "{compare}")`)
	define("EMAIL_INVALID", Error, "Invalid email address: {value}")
	define("EMAIL_MISMATCH", Error, `Email does not match between sources (source: "{source}", compare: "{compare}")`)
	define("EMAIL_MISSING", Error, "No email address")

	define(DocumentedException, Notice, "{reason}")

	define(LoginNever, Warning, "Never logged in")
	define(LoginNeverAged, Warning, "User has never logged in and is {age} days old")

	define("LOCATION_INVALID", Error, `Invalid location: "{value}"`)
	define("LOCATION_MISMATCH", Warning, `Location does not match between sources (source: "{source}", compare: "{compare}")`)
	define("LOCATION_MISSING", Error, "No location")

	define(ManagerInactive, Error, `Manager "{manager}" is not active, but user is`)
	define(ManagerInvalid, Error, `Manager "{manager}" not found in user list`)
	define(ManagerMissing, Warning, "No manager")

	define("FIRST_NAME_INVALID", Error, `Invalid first name: "{value}"`)
	define("FIRST_NAME_MISMATCH", Warning, `First name does not match between sources (source: "{source}", compare: "{compare}")`)
	define("FIRST_NAME_MISSING", Error, "No first name found")
	define("LAST_NAME_INVALID", Error, `Invalid last name: "{value}"`)
	define("LAST_NAME_MISMATCH", Warning, `Last name does not match between sources (source: "{source}", compare: "{compare}")`)
	define("LAST_NAME_MISSING", Error, "No last name found")

	define(CompareMissing, Error, "Does not exist in the comparison data")
	define(SourceMissing, Error, "Not found in source of truth")
	for _, status := range []string{"active", "inactive", "suspended", "deactivated", "deleted"} {
		upper := strings.ToUpper(status)
		define(SourceMissing+"_"+Code(upper), Error, "Not found in source of truth and is "+status)
		if status != "active" {
			define("COMPARE_ACTIVE_SOURCE_"+Code(upper), Error, "Source is "+status+" but compare is active")
		}
	}
	define(SourceMissing+"_UNKNOWN", Error, "Not found in source of truth and status is unknown")
	define("COMPARE_ACTIVE_SOURCE_UNKNOWN", Error, "Source is unknown but compare is active")
	define(StatusMismatch, Error, `Status does not match between sources (source: "{source}", compare: "{compare}")`)
	define("STATUS_INVALID", Error, `Invalid status: "{value}"`)

	define("TITLE_INVALID", Warning, "Invalid title: {value}")
	define("TITLE_MISMATCH", Warning, `Title does not match between sources (source: "{source}", compare: "{compare}")`)
	define("TITLE_MISSING", Warning, "No title")

	define("USER_ID_MISSING", Error, "Row has no user_id and was skipped")
	define("USER_ID_INVALID", Error, `Row has an invalid user_id and was skipped: "{value}"`)
}

// Lookup returns the definition of code. Codes ending in _INVALID, _MISSING
// and _MISMATCH that are not in the catalog get a generic definition.
func Lookup(code Code) (Definition, bool) {
	if d, ok := catalog[code]; ok {
		return d, true
	}
	c := string(code)
	switch {
	case strings.HasSuffix(c, "_INVALID"):
		return Definition{Code: code, Severity: Error, Template: `Invalid {field}: "{value}"`}, true
	case strings.HasSuffix(c, "_MISSING"):
		return Definition{Code: code, Severity: Error, Template: "Missing {field}"}, true
	case strings.HasSuffix(c, "_MISMATCH"):
		return Definition{Code: code, Severity: Warning,
			Template: `{field} does not match between sources (source: "{source}", compare: "{compare}")`}, true
	}
	return Definition{}, false
}

// Definitions returns every catalog entry sorted by code.
func Definitions() []Definition {
	out := make([]Definition, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Render substitutes {key} placeholders from params. Keys without a value
// render as ##N/A##; no other formatting is performed.
func Render(template string, params Params) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := params[m[1:len(m)-1]]; ok {
			return v
		}
		return constants.NotAvailable
	})
}

// New builds a catalog finding. Unknown codes fall back to ERROR severity
// with the code as message.
func New(code Code, userID, source, field string, params Params) Finding {
	def, ok := Lookup(code)
	if !ok {
		def = Definition{Code: code, Severity: Error, Template: string(code)}
	}
	if field != "" {
		if _, set := params["field"]; !set {
			p := make(Params, len(params)+1)
			for k, v := range params {
				p[k] = v
			}
			p["field"] = field
			params = p
		}
	}
	return Finding{
		Code:     code,
		Severity: def.Severity,
		UserID:   userID,
		Source:   source,
		Field:    field,
		Message:  Render(def.Template, params),
	}
}
