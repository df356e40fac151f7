package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/mapping"
)

func base() mapping.Definition {
	return mapping.Definition{
		Name: "base",
		Columns: map[string]string{
			"user_id": "Employee ID",
			"email":   "Email",
			"status":  "Status",
		},
		Rewrite: map[string][]mapping.RewriteRule{
			"status": {
				{Kind: mapping.MatchExact, Pattern: "Active", Replacement: "active"},
				{Kind: mapping.MatchExact, Pattern: "", Replacement: "unknown"},
			},
		},
	}
}

func TestResolveInheritance(t *testing.T) {
	child := mapping.Definition{
		Name:    "okta",
		Inherit: "base",
		Columns: map[string]string{
			"email":      "Primary Email",
			"first_name": "First",
		},
		Rewrite: map[string][]mapping.RewriteRule{
			"status": {{Kind: mapping.MatchRegex, Pattern: "(?i)enabled", Replacement: "active"}},
		},
	}

	m, err := mapping.Resolve("okta", base(), child)
	require.NoError(t, err)

	assert.Equal(t, "okta", m.Name())
	assert.Equal(t, []string{"okta", "base"}, m.Chain())
	assert.Equal(t, []string{"email", "first_name", "status", "user_id"}, m.Fields())

	email, ok := m.Column("email")
	require.True(t, ok)
	assert.Equal(t, "Primary Email", email.Source, "child column overrides parent")

	uid, ok := m.Column("user_id")
	require.True(t, ok)
	assert.Equal(t, "Employee ID", uid.Source, "parent column inherited")

	status, _ := m.Column("status")
	require.Len(t, status.Rules(), 1, "child rewrite list replaces parent list entirely")
	got, matched := status.Rewrite("Active")
	assert.False(t, matched)
	assert.Equal(t, "Active", got)
	got, matched = status.Rewrite("ENABLED")
	assert.True(t, matched)
	assert.Equal(t, "active", got)
}

func TestResolveCycle(t *testing.T) {
	a := mapping.Definition{Name: "a", Inherit: "b", Columns: map[string]string{"user_id": "id"}}
	b := mapping.Definition{Name: "b", Inherit: "a"}

	_, err := mapping.Resolve("a", a, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInheritanceCycle)
	assert.True(t, errors.IsFatal(err))

	var ie *errors.InheritanceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, []string{"a", "b", "a"}, ie.Chain)
}

func TestResolveSelfCycle(t *testing.T) {
	_, err := mapping.Resolve("a", mapping.Definition{Name: "a", Inherit: "a"})
	assert.ErrorIs(t, err, errors.ErrInheritanceCycle)
}

func TestResolveMissingParent(t *testing.T) {
	_, err := mapping.Resolve("a", mapping.Definition{Name: "a", Inherit: "ghost"})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.True(t, errors.IsNotFound(err))

	_, err = mapping.Resolve("nope")
	assert.True(t, errors.IsFatal(err))
}

func TestResolveMemoized(t *testing.T) {
	r, err := mapping.NewResolver(base())
	require.NoError(t, err)
	m1, err := r.Resolve("base")
	require.NoError(t, err)
	m2, err := r.Resolve("base")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}

func TestNewResolverDuplicate(t *testing.T) {
	_, err := mapping.NewResolver(base(), base())
	assert.True(t, errors.IsFatal(err))
}

func TestResolveBadPattern(t *testing.T) {
	d := base()
	d.Rewrite = map[string][]mapping.RewriteRule{
		"status": {{Kind: mapping.MatchRegex, Pattern: "(unclosed", Replacement: "x"}},
	}
	_, err := mapping.Resolve("base", d)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestResolveRewriteForUnmappedField(t *testing.T) {
	d := base()
	d.Rewrite = map[string][]mapping.RewriteRule{
		"title": {{Kind: mapping.MatchExact, Pattern: "x", Replacement: "y"}},
	}
	_, err := mapping.Resolve("base", d)
	assert.True(t, errors.IsFatal(err))
}

func TestRewriteFirstMatchWins(t *testing.T) {
	d := mapping.Definition{
		Name:    "m",
		Columns: map[string]string{"user_id": "id", "department": "dept"},
		Rewrite: map[string][]mapping.RewriteRule{
			"department": {
				{Kind: mapping.MatchCapture, Pattern: `(\w+) - (?P<team>\w+)`, Replacement: "${team}"},
				{Kind: mapping.MatchRegex, Pattern: `Eng`, Replacement: "Engineering"},
				{Kind: mapping.MatchExact, Pattern: "Eng", Replacement: "never"},
			},
		},
	}
	m, err := mapping.Resolve("m", d)
	require.NoError(t, err)
	col, _ := m.Column("department")

	tests := []struct {
		raw     string
		want    string
		matched bool
	}{
		{"Eng - Platform", "Platform", true},
		{"Eng", "Engineering", true},
		{"Engineering", "Engineering", true},
		{"Sales", "Sales", false},
		{"x Eng", "x Eng", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, matched := col.Rewrite(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestRewriteDeterministicAndIdempotent(t *testing.T) {
	m, err := mapping.Resolve("base", base())
	require.NoError(t, err)
	col, _ := m.Column("status")

	for _, raw := range []string{"Active", "", "Suspended"} {
		first, _ := col.Rewrite(raw)
		for range 5 {
			again, _ := col.Rewrite(raw)
			assert.Equal(t, first, again)
		}
		// Feeding the replacement back in is stable when no rule matches it.
		fed, matched := col.Rewrite(first)
		if !matched {
			assert.Equal(t, first, fed)
		}
	}
}

func TestBind(t *testing.T) {
	d := mapping.Definition{
		Name: "m",
		Columns: map[string]string{
			"user_id":    "ID",
			"last_login": `Last Login.*`,
		},
	}
	m, err := mapping.Resolve("m", d)
	require.NoError(t, err)

	bindings, err := m.Bind([]string{"Name", "ID", "Last Login (UTC)"})
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, "Last Login (UTC)", bindings[0].Header)
	assert.Equal(t, "ID", bindings[1].Header)

	_, err = m.Bind([]string{"Name"})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestBindPrefersExactHeader(t *testing.T) {
	m, err := mapping.Resolve("m", mapping.Definition{
		Name:    "m",
		Columns: map[string]string{"user_id": "ID"},
	})
	require.NoError(t, err)
	bindings, err := m.Bind([]string{"IDENT", "ID"})
	require.NoError(t, err)
	assert.Equal(t, "ID", bindings[0].Header)
}

func TestValidate(t *testing.T) {
	reg := fields.Default()

	m, err := mapping.Resolve("base", base())
	require.NoError(t, err)
	assert.NoError(t, m.Validate(reg))

	noID, err := mapping.Resolve("x", mapping.Definition{Name: "x", Columns: map[string]string{"email": "Email"}})
	require.NoError(t, err)
	assert.True(t, errors.IsFatal(noID.Validate(reg)))

	unknown, err := mapping.Resolve("y", mapping.Definition{Name: "y", Columns: map[string]string{"user_id": "id", "shoe_size": "Shoe"}})
	require.NoError(t, err)
	assert.True(t, errors.IsFatal(unknown.Validate(reg)))
}

func TestParseMatchKind(t *testing.T) {
	k, err := mapping.ParseMatchKind("Capture")
	require.NoError(t, err)
	assert.Equal(t, mapping.MatchCapture, k)
	assert.Equal(t, "capture", k.String())

	_, err = mapping.ParseMatchKind("fuzzy")
	assert.Error(t, err)
}
