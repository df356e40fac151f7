// Package fields defines the fixed semantic schema every source is mapped into.
//
// The schema is a closed table of field specifications. Each specification
// names the field, its value kind and how strictly it is enforced:
//
//   - Required fields (only user_id) must conform or the row is rejected.
//   - Expected fields report a <CODE>_MISSING finding when empty.
//   - All other fields are optional and only report <CODE>_INVALID.
package fields

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agentstation/accessreview/pkg/errors"
)

// Field names of the fixed schema.
const (
	UserID      = "user_id"
	Email       = "email"
	FirstName   = "first_name"
	LastName    = "last_name"
	Department  = "department"
	Role        = "role"
	Title       = "title"
	Manager     = "manager"
	Location    = "location"
	LastLogin   = "last_login"
	CreatedDate = "created_date"
	EndDate     = "end_date"
	Status      = "status"
	Type        = "type"
	TwoFactor   = "two_factor"
	UserType    = "user_type"
	Privileged  = "privileged"
	SSO         = "sso"
	Paid        = "paid"
)

// Status values.
const (
	StatusActive      = "active"
	StatusInactive    = "inactive"
	StatusSuspended   = "suspended"
	StatusDeactivated = "deactivated"
	StatusDeleted     = "deleted"
	StatusUnknown     = "unknown"
)

// Kind is the value kind of a field.
type Kind int

// Kinds.
const (
	KindString Kind = iota
	KindEmail
	KindName
	KindDate
	KindBool
	KindEnum
)

var kindNames = map[Kind]string{
	KindString: "string",
	KindEmail:  "email",
	KindName:   "name",
	KindDate:   "date",
	KindBool:   "boolean",
	KindEnum:   "enum",
}

// String returns the kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// CaseInsensitive reports whether values of this kind compare without case.
func (k Kind) CaseInsensitive() bool {
	return k == KindEmail || k == KindName
}

// Spec describes one field of the schema.
type Spec struct {
	Name     string
	Kind     Kind
	Values   []string // enum members, case-sensitive
	Required bool
	Expected bool
	Code     string // finding code prefix, e.g. DEPT
}

// Allows reports whether v is a declared enum member.
func (s Spec) Allows(v string) bool {
	return slices.Contains(s.Values, v)
}

// Registry is an immutable, ordered set of field specifications.
type Registry struct {
	specs []Spec
	index map[string]int
}

// NewRegistry builds a registry. Names must be unique and non-empty.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs: make([]Spec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, errors.NewConfigError("fields", "field spec without name", nil)
		}
		if _, dup := r.index[s.Name]; dup {
			return nil, errors.NewConfigError("fields", fmt.Sprintf("field %q defined twice", s.Name), nil)
		}
		if s.Kind == KindEnum && len(s.Values) == 0 {
			return nil, errors.NewConfigError("fields", fmt.Sprintf("enum field %q has no values", s.Name), nil)
		}
		if s.Code == "" {
			s.Code = strings.ToUpper(s.Name)
		}
		s.Values = slices.Clone(s.Values)
		r.index[s.Name] = len(r.specs)
		r.specs = append(r.specs, s)
	}
	return r, nil
}

// Lookup returns the specification for name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	i, ok := r.index[name]
	if !ok {
		return Spec{}, false
	}
	return r.specs[i], true
}

// Names returns the field names in schema order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// Required returns the names of required fields.
func (r *Registry) Required() []string {
	var out []string
	for _, s := range r.specs {
		if s.Required {
			out = append(out, s.Name)
		}
	}
	return out
}

var defaultRegistry = mustRegistry(
	Spec{Name: UserID, Kind: KindString, Required: true, Code: "USER_ID"},
	Spec{Name: Email, Kind: KindEmail, Expected: true, Code: "EMAIL"},
	Spec{Name: FirstName, Kind: KindName, Expected: true, Code: "FIRST_NAME"},
	Spec{Name: LastName, Kind: KindName, Expected: true, Code: "LAST_NAME"},
	Spec{Name: Department, Kind: KindString, Code: "DEPT"},
	Spec{Name: Role, Kind: KindString, Code: "ROLE"},
	Spec{Name: Title, Kind: KindString, Code: "TITLE"},
	Spec{Name: Manager, Kind: KindEmail, Code: "MANAGER"},
	Spec{Name: Location, Kind: KindString, Code: "LOCATION"},
	Spec{Name: LastLogin, Kind: KindDate, Code: "LAST_LOGIN"},
	Spec{Name: CreatedDate, Kind: KindDate, Code: "CREATED_DATE"},
	Spec{Name: EndDate, Kind: KindDate, Code: "END_DATE"},
	Spec{Name: Status, Kind: KindEnum, Code: "STATUS", Values: []string{
		StatusActive, StatusInactive, StatusSuspended, StatusDeactivated, StatusDeleted, StatusUnknown,
	}},
	Spec{Name: Type, Kind: KindEnum, Code: "TYPE", Values: []string{
		"employee", "contractor", "intern", "vendor", "unknown",
	}},
	Spec{Name: TwoFactor, Kind: KindBool, Code: "TWO_FACTOR"},
	Spec{Name: UserType, Kind: KindEnum, Code: "USER_TYPE", Values: []string{
		"fte", "part-time", "contractor", "vendor", "unknown",
	}},
	Spec{Name: Privileged, Kind: KindBool, Code: "PRIVILEGED"},
	Spec{Name: SSO, Kind: KindBool, Code: "SSO"},
	Spec{Name: Paid, Kind: KindBool, Code: "PAID"},
)

// Default returns the fixed schema shipped with the engine.
func Default() *Registry {
	return defaultRegistry
}

func mustRegistry(specs ...Spec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}
