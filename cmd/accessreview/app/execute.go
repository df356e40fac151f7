package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/accessreview/internal/cmd/output"
	"github.com/agentstation/accessreview/pkg/errors"
)

// Execute runs the accessreview CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)
	return rootCmd.ExecuteContext(ctx)
}

func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "accessreview",
		Short:   "User access review reconciliation",
		Version: a.version,
		Long: `Accessreview normalizes user exports from a source of truth and any
number of downstream systems, validates them against rules, and reconciles
each system against the source of truth.

A run writes a normalized baseline per source, a findings report and an
audit receipt with a SHA-256 digest of every file read or written.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.Bool("no-color", false, "disable colored output")
	flags.StringP("format", "o", "", "output format: table, json, yaml")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("accessreview {{.Version}}\n")

	rootCmd.AddCommand(
		a.NewRunCommand(),
		a.NewValidateCommand(),
		a.NewCodesCommand(),
		a.NewVersionCommand(),
	)
	return rootCmd
}

// setupCommand applies persistent flags before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	format := mustGetString(cmd, "format")
	if _, err := output.ParseFormat(format); err != nil {
		return err
	}
	a.config.UpdateFromFlags(
		mustGetBool(cmd, "verbose"),
		mustGetBool(cmd, "quiet"),
		mustGetBool(cmd, "no-color"),
		format,
		mustGetString(cmd, "log-level"),
	)

	if !a.fixedLogger {
		logger := NewLogger(a.config)
		a.logger = &logger
	}
	return nil
}

// formatter returns the formatter selected by --format or the terminal.
func (a *App) formatter() output.Formatter {
	return output.NewFormatter(output.DetectFormat(a.config.Format))
}

// ExitCode maps a command error to a process exit status. Interrupted
// runs exit 130 like a shell would after SIGINT.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsCanceled(err):
		return 130
	default:
		return 1
	}
}

// ExitOnError prints err and exits with ExitCode(err). Meant for main.
func ExitOnError(err error) {
	if err != nil {
		//nolint:errcheck // exiting anyway
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(ExitCode(err))
	}
}

// mustGetBool retrieves a flag defined by this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a flag defined by this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
