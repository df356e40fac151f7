package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/accessreview"
	"github.com/agentstation/accessreview/pkg/config"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/mapping"
	"github.com/agentstation/accessreview/pkg/normalize"
	"github.com/agentstation/accessreview/pkg/rules"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadReview(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "quarterly.yaml", `
truth:
  source: data/hr-export.csv
  map: maps/hr.yaml
comparisons:
  - source: data/okta.csv
    map: maps/okta.yaml
  - name: Okta Prod
    source: data/okta-prod.csv
    map: maps/okta.yaml
    rules: okta-rules.yaml
disable: [MANAGER_MISSING]
domains: [example.com]
parallelism: 4
`)

	r, err := config.LoadReview(path)
	require.NoError(t, err)

	assert.Equal(t, "quarterly", r.Name)
	assert.Equal(t, "hr-export", r.Truth.Name)
	assert.Equal(t, "okta", r.Comparisons[0].Name)
	assert.Equal(t, "Okta Prod", r.Comparisons[1].Name)
	assert.Equal(t, "okta_prod", r.Comparisons[1].SafeName())
	assert.Equal(t, []string{"MANAGER_MISSING"}, r.Disable)
	assert.Equal(t, 4, r.Parallelism)

	assert.Equal(t, filepath.Join(dir, "data/okta.csv"), r.Resolve(r.Comparisons[0].Source))
	assert.Equal(t, filepath.Join(dir, "output_baseline.csv"), r.BaselinePath(r.Truth))
	assert.Equal(t, filepath.Join(dir, "output_okta_prod_baseline.csv"), r.BaselinePath(r.Comparisons[1]))
	assert.Equal(t, filepath.Join(dir, "output_findings.csv"), r.FindingsPath())
	assert.Equal(t, filepath.Join(dir, "output_receipt.txt"), r.ReceiptPath())
}

func TestLoadReviewErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no truth", "comparisons: []\n"},
		{"truth without map", "truth: {source: hr.csv}\n"},
		{"comparison without source", "truth: {source: hr.csv, map: hr.yaml}\ncomparisons: [{map: x.yaml}]\n"},
		{"bad domain", "truth: {source: hr.csv, map: hr.yaml}\ndomains: ['not a domain']\n"},
		{"parallelism too high", "truth: {source: hr.csv, map: hr.yaml}\nparallelism: 99\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "review.yaml", tt.content)
			_, err := config.LoadReview(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadReview(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		var ioErr *errors.IOError
		assert.ErrorAs(t, err, &ioErr)
	})
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "okta_prod_2024", config.SafeName("Okta Prod/2024"))
	assert.Equal(t, "hr", config.SafeName("HR"))
}

func TestBackrefs(t *testing.T) {
	assert.Equal(t, "${1}@example.com", config.Backrefs(`\1@example.com`))
	assert.Equal(t, "${user}.${2}", config.Backrefs(`\g<user>.\2`))
	assert.Equal(t, "$1 stays", config.Backrefs("$1 stays"))
}

func TestMappingsInheritance(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
mapping:
  user_id: login
  email: mail
  status: state
rewrite:
  status:
    active: '^(ACTIVE|Enabled)$'
    inactive: ~
  email:
    '\1@example.com': '^(\w+)@corp\.example\.com$'
`)
	child := writeFile(t, dir, "child/okta.yaml", `
inherit: ../base.yaml
mapping:
  email: Primary Email
  department: dept
rewrite:
  department:
    - exact: ""
      value: Unknown
    - regex: Eng
      value: Engineering
    - capture: '^Dept (\d+)$'
      value: 'D\1'
`)

	maps := config.NewMappings()
	name, err := maps.Load(child)
	require.NoError(t, err)
	require.Len(t, maps.Definitions(), 2)
	assert.Equal(t, []string{name, filepath.Join(dir, "base.yaml")}, maps.Files())

	m, err := mapping.Resolve(name, maps.Definitions()...)
	require.NoError(t, err)

	col, ok := m.Column(fields.Email)
	require.True(t, ok)
	assert.Equal(t, "Primary Email", col.Source)
	got, ok := col.Rewrite("jdoe@corp.example.com")
	assert.True(t, ok)
	assert.Equal(t, "jdoe@example.com", got)

	status, _ := m.Column(fields.Status)
	wantStatus := []mapping.RewriteRule{
		{Kind: mapping.MatchCapture, Pattern: "^(ACTIVE|Enabled)$", Replacement: "active"},
		{Kind: mapping.MatchExact, Pattern: "", Replacement: "inactive"},
	}
	if diff := cmp.Diff(wantStatus, status.Rules()); diff != "" {
		t.Errorf("status rules mismatch (-want +got):\n%s", diff)
	}
	got, _ = status.Rewrite("")
	assert.Equal(t, "inactive", got)

	dept, _ := m.Column(fields.Department)
	for raw, want := range map[string]string{
		"":            "Unknown",
		"Engineering": "Engineering",
		"Eng Ops":     "Engineering",
		"Dept 42":     "D42",
		"Sales":       "Sales",
	} {
		got, _ := dept.Rewrite(raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestMappingsCycle(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "inherit: b.yaml\nmapping: {user_id: id}\n")
	writeFile(t, dir, "b.yaml", "inherit: a.yaml\nmapping: {email: mail}\n")

	maps := config.NewMappings()
	name, err := maps.Load(a)
	require.NoError(t, err)

	_, err = mapping.Resolve(name, maps.Definitions()...)
	assert.ErrorIs(t, err, errors.ErrInheritanceCycle)
}

func TestMappingsBadRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
mapping: {user_id: id, status: state}
rewrite:
  status:
    - exact: a
      regex: b
      value: c
`)
	_, err := config.NewMappings().Load(path)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoadRules(t *testing.T) {
	t.Run("sectioned layout", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "rules.yaml", `
validation:
  rules:
    - name: LOGIN_STALE
      reason: "No login for {days} days"
      severity: WARNING
      field: last_login
      operation: days_since
      trigger: greater_than
      value: 90
      skip-empty: true
    - name: DEPT_SALES
      severity: NOTICE
      field: department
      trigger: in
      values: [Sales, 42]
comparison:
  exceptions:
    - field: user_id
      pattern: svc-
      reason: Service account
      only: [okta]
`)
		rs, err := config.LoadRules(path)
		require.NoError(t, err)

		want := []rules.Definition{
			{
				Name: "LOGIN_STALE", Reason: "No login for {days} days", Severity: "WARNING",
				Field: "last_login", Operation: "days_since", Trigger: "greater_than",
				Value: "90", SkipEmpty: true,
			},
			{
				Name: "DEPT_SALES", Severity: "NOTICE", Field: "department",
				Trigger: "in", Values: []string{"Sales", "42"},
			},
		}
		if diff := cmp.Diff(want, rs.Rules); diff != "" {
			t.Errorf("rules mismatch (-want +got):\n%s", diff)
		}
		require.Len(t, rs.Exceptions, 1)
		assert.Equal(t, "svc-", rs.Exceptions[0].Pattern)
		assert.Equal(t, []string{"okta"}, rs.Exceptions[0].Only)

		_, err = rules.CompileAll(rs.Rules)
		assert.NoError(t, err)
	})

	t.Run("top-level layout", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "rules.yaml", `
rules:
  - {name: NO_TITLE, severity: ERROR, field: title, trigger: is_none}
exceptions:
  - {field: title, pattern: '', reason: titles optional, skip: [hr]}
`)
		rs, err := config.LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rs.Rules, 1)
		require.Len(t, rs.Exceptions, 1)
		assert.Equal(t, []string{"hr"}, rs.Exceptions[0].Skip)
	})

	t.Run("missing severity", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "rules.yaml", "rules:\n  - {name: X, field: title, trigger: is_none}\n")
		_, err := config.LoadRules(path)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("exception without reason", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "rules.yaml", "exceptions:\n  - {field: title, pattern: x}\n")
		_, err := config.LoadRules(path)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}

// memReader serves tables from memory, keyed by file base name.
type memReader map[string][]normalize.Row

func (m memReader) ReadFile(path string) ([]string, []normalize.Row, error) {
	rows, ok := m[filepath.Base(path)]
	if !ok {
		return nil, nil, errors.NewNotFoundError("file", path)
	}
	var headers []string
	if len(rows) > 0 {
		for h := range rows[0] {
			headers = append(headers, h)
		}
	}
	return headers, rows, nil
}

func TestReviewPlan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hr.yaml", "mapping: {user_id: id, status: status}\n")
	writeFile(t, dir, "app.yaml", "inherit: hr.yaml\n")
	writeFile(t, dir, "rules.yaml", `
exceptions:
  - {field: user_id, pattern: svc-, reason: Service account}
`)
	path := writeFile(t, dir, "review.yaml", `
truth: {name: hr, source: hr.csv, map: hr.yaml}
comparisons:
  - {source: app.csv, map: app.yaml}
rules: rules.yaml
`)

	r, err := config.LoadReview(path)
	require.NoError(t, err)

	plan, inputs, err := r.Plan(memReader{
		"hr.csv": {
			{"id": "u1", "status": "active"},
		},
		"app.csv": {
			{"id": "u1", "status": "active"},
			{"id": "svc-backup", "status": "active"},
			{"id": "u9", "status": "active"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hr", plan.Truth.Name)
	require.Len(t, plan.Comparisons, 1)
	assert.Equal(t, "app", plan.Comparisons[0].Name)
	assert.Len(t, plan.Mappings, 2)
	assert.Len(t, inputs, 6)
	assert.Equal(t, "Configuration file", inputs[0].Description)

	report, err := accessreview.Run(context.Background(), plan)
	require.NoError(t, err)
	var codes []findings.Code
	for _, f := range report.Findings() {
		codes = append(codes, f.Code)
	}
	assert.Equal(t, []findings.Code{findings.DocumentedException, "SOURCE_MISSING_ACTIVE"}, codes)
}
