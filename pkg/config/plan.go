package config

import (
	"github.com/agentstation/accessreview"
	"github.com/agentstation/accessreview/pkg/normalize"
)

// TableReader reads a tabular data file into headers and rows.
type TableReader interface {
	ReadFile(path string) ([]string, []normalize.Row, error)
}

// Input is a file consumed by a review, recorded in the audit receipt.
type Input struct {
	Path        string
	Description string
}

// Plan loads every file the review references and returns the run plan
// together with the list of files read.
func (r *Review) Plan(reader TableReader) (accessreview.Plan, []Input, error) {
	inputs := []Input{{Path: r.path, Description: "Configuration file"}}
	plan := accessreview.Plan{
		Disable:       r.Disable,
		Domains:       r.Domains,
		CompareFields: r.CompareFields,
		Parallelism:   r.Parallelism,
	}

	if r.Rules != "" {
		rs, err := LoadRules(r.Resolve(r.Rules))
		if err != nil {
			return plan, nil, err
		}
		plan.Rules = rs.Rules
		plan.Exceptions = rs.Exceptions
		inputs = append(inputs, Input{Path: rs.Path, Description: "Global rules"})
	}

	maps := NewMappings()
	for i, src := range r.Sources() {
		kind := "Comparison"
		if i == 0 {
			kind = "Source of truth"
		}

		name, err := maps.Load(r.Resolve(src.Map))
		if err != nil {
			return plan, nil, err
		}
		path := r.Resolve(src.Source)
		headers, rows, err := reader.ReadFile(path)
		if err != nil {
			return plan, nil, err
		}
		inputs = append(inputs,
			Input{Path: path, Description: kind + " source " + src.Name},
			Input{Path: name, Description: kind + " field mapping " + src.Name},
		)

		ds := accessreview.Dataset{
			Name:    src.Name,
			Mapping: name,
			Headers: headers,
			Rows:    rows,
		}
		if src.Rules != "" {
			rs, err := LoadRules(r.Resolve(src.Rules))
			if err != nil {
				return plan, nil, err
			}
			ds.Rules = rs.Rules
			ds.Exceptions = rs.Exceptions
			inputs = append(inputs, Input{Path: rs.Path, Description: kind + " rules " + src.Name})
		}

		if i == 0 {
			plan.Truth = ds
		} else {
			plan.Comparisons = append(plan.Comparisons, ds)
		}
	}

	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		seen[in.Path] = true
	}
	for _, f := range maps.Files() {
		if !seen[f] {
			inputs = append(inputs, Input{Path: f, Description: "Inherited field mapping"})
		}
	}

	plan.Mappings = maps.Definitions()
	return plan, inputs, nil
}
