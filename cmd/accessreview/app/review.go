package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/agentstation/accessreview"
	"github.com/agentstation/accessreview/internal/cmd/output"
	"github.com/agentstation/accessreview/pkg/config"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/findings"
	"github.com/agentstation/accessreview/pkg/logging"
	"github.com/agentstation/accessreview/pkg/receipt"
	"github.com/agentstation/accessreview/pkg/tabular"
)

// ErrThreshold is returned by run when findings reach the --fail-on
// severity.
var ErrThreshold = errors.New("findings at or above threshold")

// Summary describes one review run.
type Summary struct {
	RunID      string                    `json:"run_id" yaml:"run_id"`
	Review     string                    `json:"review" yaml:"review"`
	Sources    []SourceSummary           `json:"sources" yaml:"sources"`
	Findings   int                       `json:"findings" yaml:"findings"`
	Documented int                       `json:"documented" yaml:"documented"`
	Disabled   int                       `json:"disabled" yaml:"disabled"`
	Severity   map[findings.Severity]int `json:"severity" yaml:"severity"`
	Files      []string                  `json:"files,omitempty" yaml:"files,omitempty"`
	Receipt    string                    `json:"receipt_sha256,omitempty" yaml:"receipt_sha256,omitempty"`
	Message    string                    `json:"message" yaml:"message"`
}

// SourceSummary counts the records and findings of one source.
type SourceSummary struct {
	Name       string `json:"name" yaml:"name"`
	Records    int    `json:"records" yaml:"records"`
	Compliance int    `json:"compliance" yaml:"compliance"`
	Error      int    `json:"error" yaml:"error"`
	Warning    int    `json:"warning" yaml:"warning"`
	Notice     int    `json:"notice" yaml:"notice"`
}

var severityColumns = []findings.Severity{findings.Compliance, findings.Error, findings.Warning, findings.Notice}

// Table implements output.Tabler.
func (s *Summary) Table() output.Data {
	headers := []string{"Source", "Records"}
	for _, sev := range severityColumns {
		headers = append(headers, output.Heading(string(sev)))
	}
	data := output.Data{
		Headers:         headers,
		ColumnAlignment: []output.Align{output.AlignLeft, output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight},
	}
	for _, src := range s.Sources {
		data.Rows = append(data.Rows, []string{
			src.Name,
			strconv.Itoa(src.Records),
			strconv.Itoa(src.Compliance),
			strconv.Itoa(src.Error),
			strconv.Itoa(src.Warning),
			strconv.Itoa(src.Notice),
		})
	}
	return data
}

// AtOrAbove counts findings at least as severe as sev.
func (s *Summary) AtOrAbove(sev findings.Severity) int {
	n := 0
	for k, v := range s.Severity {
		if k.Rank() <= sev.Rank() {
			n += v
		}
	}
	return n
}

// reviewOptions controls a review invocation.
type reviewOptions struct {
	write  bool   // emit baselines, findings and receipt
	prefix string // overrides the review's output prefix
}

// review loads the review file at path, runs it and, when opts.write is
// set, writes every output file and the audit receipt.
func (a *App) review(ctx context.Context, path string, opts reviewOptions) (*Summary, error) {
	runID := uuid.NewString()
	ctx = logging.WithLogger(ctx, a.logger)
	ctx = logging.WithRunID(ctx, runID)

	rv, err := config.LoadReview(path)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithFields(ctx, map[string]any{
		"review":  rv.Name,
		"sources": len(rv.Sources()),
	})
	log := logging.FromContext(ctx)
	if opts.prefix != "" {
		abs, err := filepath.Abs(opts.prefix)
		if err != nil {
			return nil, errors.WrapIO("resolve", opts.prefix, err)
		}
		rv.Output = abs
	}
	if rv.Parallelism == 0 {
		rv.Parallelism = a.config.Parallelism
	}

	plan, inputs, err := rv.Plan(tabular.FileReader{})
	if err != nil {
		return nil, err
	}
	log.Debug().Int("inputs", len(inputs)).Msg("review loaded")

	report, err := accessreview.Run(ctx, plan)
	if err != nil {
		return nil, err
	}
	summary := summarize(runID, rv.Name, report)
	log.Info().Msg(summary.Message)
	if !opts.write {
		return summary, nil
	}

	rc := receipt.New(receipt.WithRunID(runID))
	for _, in := range inputs {
		if err := rc.AuditFile(in.Path, in.Description); err != nil {
			return nil, err
		}
	}

	emit := func(p, description string, fn func(io.Writer) error) error {
		if err := tabular.WriteFile(p, fn); err != nil {
			return err
		}
		summary.Files = append(summary.Files, p)
		log.Debug().Str("file", p).Msg("written")
		return rc.AuditFile(p, description)
	}
	for i, src := range rv.Sources() {
		set := report.Baselines[i]
		err := emit(rv.BaselinePath(src), "Normalized baseline "+src.Name, func(w io.Writer) error {
			return tabular.WriteBaseline(w, set, plan.Registry)
		})
		if err != nil {
			return nil, err
		}
	}
	err = emit(rv.FindingsPath(), "Findings report", func(w io.Writer) error {
		return tabular.WriteFindings(w, report.Baselines, report.Findings())
	})
	if err != nil {
		return nil, err
	}

	sum, err := rc.Save(rv.ReceiptPath())
	if err != nil {
		return nil, err
	}
	summary.Files = append(summary.Files, rv.ReceiptPath())
	summary.Receipt = sum
	log.Info().Str("receipt", rv.ReceiptPath()).Str("sha256", sum).Msg("receipt written")
	return summary, nil
}

func summarize(runID, name string, report *accessreview.Report) *Summary {
	stats := report.Result.Metadata.Stats
	s := &Summary{
		RunID:      runID,
		Review:     name,
		Findings:   stats.Total,
		Message:    report.Result.Summary(),
		Documented: stats.Documented,
		Disabled:   stats.Disabled,
		Severity:   stats.BySeverity,
	}

	index := make(map[string]int, len(report.Baselines))
	for _, set := range report.Baselines {
		index[set.Name()] = len(s.Sources)
		s.Sources = append(s.Sources, SourceSummary{Name: set.Name(), Records: set.Len()})
	}
	for _, f := range report.Findings() {
		i, ok := index[f.Source]
		if !ok {
			continue
		}
		switch f.Severity {
		case findings.Compliance:
			s.Sources[i].Compliance++
		case findings.Error:
			s.Sources[i].Error++
		case findings.Warning:
			s.Sources[i].Warning++
		case findings.Notice:
			s.Sources[i].Notice++
		}
	}
	return s
}

func thresholdError(s *Summary, failOn string) error {
	if failOn == "" {
		return nil
	}
	sev, err := findings.ParseSeverity(failOn)
	if err != nil {
		return errors.NewValidationError("fail-on", failOn, err.Error())
	}
	if n := s.AtOrAbove(sev); n > 0 {
		return fmt.Errorf("%d finding(s) at or above %s: %w", n, sev, ErrThreshold)
	}
	return nil
}
