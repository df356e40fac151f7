package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/agentstation/accessreview/pkg/constants"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/fields"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/records"
)

// Clean is the finding column of report rows for users without findings.
const Clean = "CLEAN"

// FindingsHeader is the header row of the findings report.
var FindingsHeader = []string{"source", "user_id", "severity", "finding", "message"}

// WriteBaseline writes set as CSV with one column per schema field, in
// schema order. Unset fields are empty cells.
func WriteBaseline(w io.Writer, set *records.Set, reg *fields.Registry) error {
	if reg == nil {
		reg = fields.Default()
	}
	cw := csv.NewWriter(w)
	names := reg.Names()
	if err := cw.Write(names); err != nil {
		return err
	}
	row := make([]string, len(names))
	for _, rec := range set.Records() {
		for i, name := range names {
			row[i] = rec.String(name)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFindings writes the findings report. Rows are grouped by set in the
// order given, each set's findings first in their existing order, then one
// CLEAN row per record without findings. Findings for sources not in sets
// come last.
func WriteFindings(w io.Writer, sets []*records.Set, fs []findings.Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FindingsHeader); err != nil {
		return err
	}

	bySource := make(map[string][]findings.Finding)
	for _, f := range fs {
		bySource[f.Source] = append(bySource[f.Source], f)
	}
	write := func(f findings.Finding) error {
		return cw.Write([]string{f.Source, f.UserID, string(f.Severity), string(f.Code), f.Message})
	}

	for _, set := range sets {
		flagged := make(map[string]bool)
		for _, f := range bySource[set.Name()] {
			if err := write(f); err != nil {
				return err
			}
			flagged[f.UserID] = true
		}
		delete(bySource, set.Name())

		for _, rec := range set.Records() {
			if flagged[rec.UserID()] {
				continue
			}
			if err := cw.Write([]string{set.Name(), rec.UserID(), "INFO", Clean, "No issues found"}); err != nil {
				return err
			}
		}
	}
	for _, f := range fs {
		if _, left := bySource[f.Source]; left {
			if err := write(f); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile creates path, and its directory, and writes to it with fn.
func WriteFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return errors.WrapIO("create", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.FilePermissions)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return errors.WrapIO("write", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
