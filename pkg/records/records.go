// Package records holds normalized user records and the per-source sets they
// belong to. Records are immutable; corrections produce a new Record.
package records

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
)

// Record is one normalized user. Unset fields are absent rather than empty.
type Record struct {
	userID string
	source string
	row    int
	values map[string]fields.Value
	raw    map[string]string
}

// New creates a record. userID must be non-empty. values holds normalized
// fields, raw holds the post-rewrite text of every mapped field.
func New(source string, row int, userID string, values map[string]fields.Value, raw map[string]string) (Record, error) {
	if strings.TrimSpace(userID) == "" {
		return Record{}, errors.NewValidationError(fields.UserID, userID, "user_id is empty")
	}
	return Record{
		userID: userID,
		source: source,
		row:    row,
		values: maps.Clone(values),
		raw:    maps.Clone(raw),
	}, nil
}

// UserID returns the record's identifier.
func (r Record) UserID() string { return r.userID }

// Source returns the name of the set the record was read from.
func (r Record) Source() string { return r.source }

// Row returns the 1-based data row the record came from.
func (r Record) Row() int { return r.row }

// Get returns the normalized value of field.
func (r Record) Get(field string) (fields.Value, bool) {
	if field == fields.UserID {
		return fields.StringValue(fields.KindString, r.userID), true
	}
	v, ok := r.values[field]
	return v, ok
}

// Has reports whether field has a normalized value.
func (r Record) Has(field string) bool {
	_, ok := r.Get(field)
	return ok
}

// Raw returns the post-rewrite text of a mapped field, which is also
// available when the value did not conform.
func (r Record) Raw(field string) (string, bool) {
	v, ok := r.raw[field]
	return v, ok
}

// String returns the normalized value of field as text, or "".
func (r Record) String(field string) string {
	if v, ok := r.Get(field); ok {
		return v.String()
	}
	return ""
}

// Fields returns the names of the fields with values, sorted.
func (r Record) Fields() []string {
	out := slices.Collect(maps.Keys(r.values))
	sort.Strings(out)
	return out
}

// With returns a copy of the record with field set to v.
func (r Record) With(field string, v fields.Value) Record {
	out := r
	out.values = maps.Clone(r.values)
	if out.values == nil {
		out.values = make(map[string]fields.Value, 1)
	}
	out.values[field] = v
	return out
}

// Without returns a copy of the record with field removed.
func (r Record) Without(field string) Record {
	out := r
	out.values = maps.Clone(r.values)
	delete(out.values, field)
	return out
}

// Set is the normalized record batch of one source, indexed by user_id.
type Set struct {
	name    string
	mapped  map[string]bool
	records []Record
	index   map[string]int
}

// NewSet builds a set. mapped lists the fields the source's mapping covers.
// A repeated user_id is a *errors.DuplicateIDError.
func NewSet(name string, mapped []string, recs []Record) (*Set, error) {
	s := &Set{
		name:    name,
		mapped:  make(map[string]bool, len(mapped)),
		records: make([]Record, 0, len(recs)),
		index:   make(map[string]int, len(recs)),
	}
	for _, f := range mapped {
		s.mapped[f] = true
	}
	for _, r := range recs {
		if i, dup := s.index[r.userID]; dup {
			return nil, errors.NewDuplicateIDError(name, r.userID, s.records[i].row, r.row)
		}
		s.index[r.userID] = len(s.records)
		s.records = append(s.records, r)
	}
	return s, nil
}

// Name returns the source name.
func (s *Set) Name() string { return s.name }

// Len returns the number of records.
func (s *Set) Len() int { return len(s.records) }

// Records returns the records in input order.
func (s *Set) Records() []Record { return slices.Clone(s.records) }

// Get returns the record for userID.
func (s *Set) Get(userID string) (Record, bool) {
	i, ok := s.index[userID]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// Maps reports whether the source maps field.
func (s *Set) Maps(field string) bool {
	return field == fields.UserID || s.mapped[field]
}

// IndexBy builds a case-insensitive index from the text of field to
// records. When several records share a value the first one wins.
func (s *Set) IndexBy(field string) map[string]Record {
	idx := make(map[string]Record, len(s.records))
	for _, r := range s.records {
		key := strings.ToLower(r.String(field))
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = r
		}
	}
	return idx
}

// String implements fmt.Stringer.
func (s *Set) String() string {
	return fmt.Sprintf("%s (%d records)", s.name, len(s.records))
}
