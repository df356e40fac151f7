package accessreview_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/accessreview"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/exceptions"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/mapping"
	"github.com/agentstation/accessreview/pkg/normalize"
	"github.com/agentstation/accessreview/pkg/rules"
)

func mappings() []mapping.Definition {
	return []mapping.Definition{
		{
			Name: "hr",
			Columns: map[string]string{
				fields.UserID:    "Employee ID",
				fields.Email:     "Work Email",
				fields.FirstName: "First",
				fields.Status:    "Status",
				fields.Manager:   "Manager",
			},
		},
		{
			Name: "okta-base",
			Columns: map[string]string{
				fields.UserID: "login",
				fields.Email:  "email",
				fields.Status: "state",
			},
			Rewrite: map[string][]mapping.RewriteRule{
				fields.Status: {
					{Kind: mapping.MatchExact, Pattern: "ACTIVE", Replacement: "active"},
					{Kind: mapping.MatchRegex, Pattern: "DEPROV", Replacement: "deactivated"},
				},
			},
		},
		{
			Name:    "okta",
			Inherit: "okta-base",
			Columns: map[string]string{fields.FirstName: "given"},
		},
	}
}

func plan() accessreview.Plan {
	return accessreview.Plan{
		Truth: accessreview.Dataset{
			Name:    "hr",
			Mapping: "hr",
			Headers: []string{"Employee ID", "Work Email", "First", "Status", "Manager"},
			Rows: []normalize.Row{
				{"Employee ID": "E1", "Work Email": "alice@example.com", "First": "Alice", "Status": "active", "Manager": "carol@example.com"},
				{"Employee ID": "E2", "Work Email": "bob@example.com", "First": "Bob", "Status": "Enabled", "Manager": ""},
				{"Employee ID": "E3", "Work Email": "carol@example.com", "First": "Carol", "Status": "inactive", "Manager": "carol@example.com"},
			},
		},
		Comparisons: []accessreview.Dataset{{
			Name:    "okta",
			Mapping: "okta",
			Headers: []string{"login", "email", "given", "state"},
			Rows: []normalize.Row{
				{"login": "E1", "email": "Alice@Example.com", "given": "ALICE", "state": "ACTIVE"},
				{"login": "E4", "email": "xavier@example.com", "given": "Xavier", "state": "DEPROVISIONED"},
			},
		}},
		Mappings: mappings(),
		Now:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

type row struct {
	Code   findings.Code
	UserID string
	Source string
}

func rows(fs []findings.Finding) []row {
	out := make([]row, len(fs))
	for i, f := range fs {
		out[i] = row{f.Code, f.UserID, f.Source}
	}
	return out
}

func TestRun(t *testing.T) {
	report, err := accessreview.Run(context.Background(), plan())
	require.NoError(t, err)

	want := []row{
		{findings.ManagerInactive, "E1", "hr"},
		{"STATUS_INVALID", "E2", "hr"},
		{findings.ManagerMissing, "E2", "hr"},
		{findings.CompareMissing, "E2", "okta"},
		{findings.CompareMissing, "E3", "okta"},
		{"SOURCE_MISSING_DEACTIVATED", "E4", "okta"},
	}
	if diff := cmp.Diff(want, rows(report.Findings())); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, `Invalid status: "Enabled"`, report.Findings()[1].Message)

	require.Len(t, report.Baselines, 2)
	okta, ok := report.Baseline("okta")
	require.True(t, ok)
	assert.Equal(t, 2, okta.Len())
	e4, ok := okta.Get("E4")
	require.True(t, ok)
	assert.Equal(t, fields.StatusDeactivated, e4.String(fields.Status))

	hr, ok := report.Baseline("hr")
	require.True(t, ok)
	e2, ok := hr.Get("E2")
	require.True(t, ok)
	assert.False(t, e2.Has(fields.Status))
}

func TestRunWithPolicy(t *testing.T) {
	p := plan()
	p.Disable = []string{"COMPARE_MISSING"}
	p.Exceptions = []exceptions.Exception{
		{Field: fields.Status, Pattern: "deactivated", Reason: "offboarding in progress"},
	}
	p.Rules = []rules.Definition{
		{Name: "FIRST_NAME_BOB", Reason: "first name is {value}", Severity: "NOTICE", Field: fields.FirstName, Trigger: "equal_to_case", Value: "bob"},
	}
	p.Parallelism = 2

	report, err := accessreview.Run(context.Background(), p)
	require.NoError(t, err)

	want := []row{
		{findings.ManagerInactive, "E1", "hr"},
		{"STATUS_INVALID", "E2", "hr"},
		{findings.ManagerMissing, "E2", "hr"},
		{"FIRST_NAME_BOB", "E2", "hr"},
		{findings.DocumentedException, "E4", "okta"},
	}
	if diff := cmp.Diff(want, rows(report.Findings())); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "first name is bob", report.Findings()[3].Message)
	assert.Equal(t, findings.Code("SOURCE_MISSING_DEACTIVATED"), report.Findings()[4].OriginalCode)
	assert.Equal(t, 2, report.Result.Metadata.Stats.Disabled)
}

func TestRunConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*accessreview.Plan)
		is     error
	}{
		{
			name: "inheritance cycle",
			mutate: func(p *accessreview.Plan) {
				p.Mappings[1].Inherit = "okta"
			},
			is: errors.ErrInheritanceCycle,
		},
		{
			name: "unknown mapping",
			mutate: func(p *accessreview.Plan) {
				p.Comparisons[0].Mapping = "missing"
			},
			is: errors.ErrInvalidConfig,
		},
		{
			name: "column not in file",
			mutate: func(p *accessreview.Plan) {
				p.Comparisons[0].Headers = []string{"login", "email", "state"}
			},
			is: errors.ErrInvalidConfig,
		},
		{
			name: "duplicate user_id",
			mutate: func(p *accessreview.Plan) {
				p.Truth.Rows = append(p.Truth.Rows, normalize.Row{"Employee ID": "E1"})
			},
			is: errors.ErrDuplicateID,
		},
		{
			name: "duplicate dataset name",
			mutate: func(p *accessreview.Plan) {
				p.Comparisons[0].Name = "hr"
			},
			is: errors.ErrInvalidConfig,
		},
		{
			name: "bad rule",
			mutate: func(p *accessreview.Plan) {
				p.Rules = []rules.Definition{{Name: "R", Severity: "FATAL", Field: fields.Title, Trigger: "is_none"}}
			},
			is: errors.ErrInvalidConfig,
		},
		{
			name: "bad scoped exception",
			mutate: func(p *accessreview.Plan) {
				p.Comparisons[0].Exceptions = []exceptions.Exception{{Field: fields.Email, Pattern: "(", Reason: "x"}}
			},
			is: errors.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := plan()
			tt.mutate(&p)
			report, err := accessreview.Run(context.Background(), p)
			require.Error(t, err)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, tt.is)
			assert.True(t, errors.IsFatal(err))
		})
	}
}
