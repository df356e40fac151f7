package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/accessreview/internal/cmd/output"
	"github.com/agentstation/accessreview/pkg/findings"
)

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	var prefix, failOn string
	cmd := &cobra.Command{
		Use:     "run <review.yaml>",
		GroupID: "core",
		Short:   "Run a review and write its reports",
		Long: `Run normalizes every source named by the review file, validates it,
reconciles each comparison against the source of truth and writes:

  <output>_baseline.csv          normalized source of truth
  <output>_<name>_baseline.csv   normalized comparison
  <output>_findings.csv          findings report
  <output>_receipt.txt           audit receipt`,
		Example: `  accessreview run review.yaml
  accessreview run review.yaml --output-prefix out/q3 --fail-on ERROR`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.review(cmd.Context(), args[0], reviewOptions{write: true, prefix: prefix})
			if err != nil {
				return err
			}
			if err := a.formatter().Format(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if failOn == "" {
				failOn = a.config.FailOn
			}
			return thresholdError(summary, failOn)
		},
	}
	cmd.Flags().StringVar(&prefix, "output-prefix", "", "override the review's output prefix")
	cmd.Flags().StringVar(&failOn, "fail-on", "", "exit non-zero on findings at or above this severity: COMPLIANCE, ERROR, WARNING, NOTICE")
	return cmd
}

// NewValidateCommand creates the validate command.
func (a *App) NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <review.yaml>",
		GroupID: "core",
		Short:   "Check a review without writing any file",
		Long: `Validate loads the review file, its mappings, rules and data, and runs
the review in memory. Configuration errors such as mapping cycles, missing
columns or duplicate user IDs are reported; no output file is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.review(cmd.Context(), args[0], reviewOptions{})
			if err != nil {
				return err
			}
			a.logger.Info().Str("review", summary.Review).Int("findings", summary.Findings).Msg("review is valid")
			return a.formatter().Format(cmd.OutOrStdout(), summary)
		},
	}
}

// codeList is the finding catalog as rendered by the codes command.
type codeList []findings.Definition

// Table implements output.Tabler.
func (c codeList) Table() output.Data {
	data := output.Data{Headers: []string{"Code", "Severity", "Message"}}
	for _, d := range c {
		data.Rows = append(data.Rows, []string{string(d.Code), string(d.Severity), d.Template})
	}
	return data
}

// NewCodesCommand creates the codes command.
func (a *App) NewCodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "List finding codes",
		Long: `Codes lists the finding catalog with default severities and message
templates. Codes ending in _INVALID, _MISSING or _MISMATCH that are not
listed get a generic message for the field they concern.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.formatter().Format(cmd.OutOrStdout(), codeList(findings.Definitions()))
		},
	}
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("accessreview %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}
