package normalize_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/mapping"
	"github.com/agentstation/accessreview/pkg/normalize"
)

var headers = []string{"ID", "Mail", "First", "Status", "Last Login"}

func resolved(t *testing.T, rewrite map[string][]mapping.RewriteRule) *mapping.Resolved {
	t.Helper()
	m, err := mapping.Resolve("hr", mapping.Definition{
		Name: "hr",
		Columns: map[string]string{
			fields.UserID:    "ID",
			fields.Email:     "Mail",
			fields.FirstName: "First",
			fields.Status:    "Status",
			fields.LastLogin: "Last Login",
		},
		Rewrite: rewrite,
	})
	require.NoError(t, err)
	return m
}

func codes(fs []findings.Finding) []findings.Code {
	out := make([]findings.Code, len(fs))
	for i, f := range fs {
		out[i] = f.Code
	}
	return out
}

func TestNormalizeHappyPath(t *testing.T) {
	rows := []normalize.Row{
		{"ID": "u1", "Mail": "Alice@Example.com", "First": "Alice", "Status": "active", "Last Login": "2024-05-01"},
	}
	set, fs, err := normalize.New().Normalize(context.Background(), "hr", headers, rows, resolved(t, nil))
	require.NoError(t, err)
	assert.Empty(t, fs)
	require.Equal(t, 1, set.Len())

	r, ok := set.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", r.String(fields.Email))
	assert.Equal(t, "alice", r.String(fields.FirstName))
	assert.Equal(t, "2024-05-01", r.String(fields.LastLogin))
	assert.Equal(t, 1, r.Row())
	assert.True(t, set.Maps(fields.LastLogin))
	assert.False(t, set.Maps(fields.Manager))
}

func TestNormalizeStatusEnumInvalid(t *testing.T) {
	rows := []normalize.Row{
		{"ID": "u1", "Mail": "a@x.com", "First": "Ann", "Status": "Enabled", "Last Login": ""},
	}
	set, fs, err := normalize.New().Normalize(context.Background(), "okta", headers, rows, resolved(t, nil))
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, findings.Code("STATUS_INVALID"), fs[0].Code)
	assert.Equal(t, "u1", fs[0].UserID)
	assert.Equal(t, "okta", fs[0].Source)
	assert.Equal(t, fields.Status, fs[0].Field)
	assert.Contains(t, fs[0].Message, "Enabled")

	r, _ := set.Get("u1")
	assert.False(t, r.Has(fields.Status), "invalid value is not coerced")
	raw, ok := r.Raw(fields.Status)
	assert.True(t, ok)
	assert.Equal(t, "Enabled", raw)
	assert.True(t, r.Has(fields.Email), "rest of the record is kept")
}

func TestNormalizeRewriteBeforeConform(t *testing.T) {
	rw := map[string][]mapping.RewriteRule{
		fields.Status:    {{Kind: mapping.MatchRegex, Pattern: "(?i)enabled", Replacement: "active"}},
		fields.LastLogin: {{Kind: mapping.MatchExact, Pattern: "Never", Replacement: "1/1/1970"}},
	}
	rows := []normalize.Row{
		{"ID": "u1", "Mail": "a@x.com", "First": "Ann", "Status": "ENABLED", "Last Login": "Never"},
		{"ID": "u2", "Mail": "b@x.com", "First": "Bo", "Status": "ENABLED", "Last Login": "1/1/1970"},
	}
	set, fs, err := normalize.New().Normalize(context.Background(), "okta", headers, rows, resolved(t, rw))
	require.NoError(t, err)
	assert.Empty(t, fs)

	u1, _ := set.Get("u1")
	assert.Equal(t, "active", u1.String(fields.Status))
	assert.True(t, u1.Has(fields.LastLogin), "rewritten sentinel literal is kept")

	u2, _ := set.Get("u2")
	assert.False(t, u2.Has(fields.LastLogin), "raw sentinel is no value")
}

func TestNormalizeMissingAndInvalid(t *testing.T) {
	rows := []normalize.Row{
		{"ID": "u1", "Mail": "", "First": "R2D2", "Status": "", "Last Login": "soon"},
	}
	_, fs, err := normalize.New().Normalize(context.Background(), "hr", headers, rows, resolved(t, nil))
	require.NoError(t, err)
	assert.ElementsMatch(t, []findings.Code{"EMAIL_MISSING", "FIRST_NAME_INVALID", "LAST_LOGIN_INVALID"}, codes(fs))
}

func TestNormalizeRowWithoutUserID(t *testing.T) {
	rows := []normalize.Row{
		{"ID": "", "Mail": "a@x.com"},
		{"ID": "u2", "Mail": "b@x.com", "First": "Bo"},
	}
	set, fs, err := normalize.New().Normalize(context.Background(), "hr", headers, rows, resolved(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	require.Len(t, fs, 1)
	assert.Equal(t, findings.Code("USER_ID_MISSING"), fs[0].Code)
	assert.Equal(t, "row 1", fs[0].UserID)
}

func TestNormalizeDuplicateID(t *testing.T) {
	rows := []normalize.Row{
		{"ID": "u1", "Mail": "a@x.com", "First": "Ann"},
		{"ID": "u1", "Mail": "b@x.com", "First": "Bo"},
	}
	_, _, err := normalize.New().Normalize(context.Background(), "hr", headers, rows, resolved(t, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateID)
}

func TestNormalizeConfigErrors(t *testing.T) {
	p := normalize.New()

	_, _, err := p.Normalize(context.Background(), "hr", []string{"ID"}, nil, resolved(t, nil))
	assert.True(t, errors.IsFatal(err), "mapped column missing from headers")

	_, _, err = p.Normalize(context.Background(), "hr", headers, nil, nil)
	assert.True(t, errors.IsFatal(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Normalize(ctx, "hr", headers, nil, resolved(t, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCanceled(err))
}
