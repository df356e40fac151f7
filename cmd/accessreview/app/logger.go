package app

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/accessreview/pkg/logging"
)

// NewLogger creates the CLI logger and installs it as the package default.
// Level precedence, highest first: --log-level or LOG_LEVEL, then --quiet,
// then --verbose, then info.
func NewLogger(config *Config) zerolog.Logger {
	level := logLevel(config, os.Stderr)
	logging.Configure(&logging.Config{
		Level:      level,
		Format:     config.LogFormat,
		Output:     config.LogOutput,
		TimeFormat: "kitchen",
		NoColor:    config.NoColor || os.Getenv("NO_COLOR") != "",
		AddCaller:  level == "debug" || level == "trace",
	})
	return *logging.Default()
}

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// logLevel resolves the effective level and writes a warning to w for
// unusable input.
func logLevel(config *Config, w io.Writer) string {
	if config.LogLevel != "" {
		if logLevels[config.LogLevel] {
			return config.LogLevel
		}
		fmt.Fprintf(w, "Warning: invalid log level %q, using \"info\"\n", config.LogLevel)
		return "info"
	}
	switch {
	case config.Verbose && config.Quiet:
		fmt.Fprintln(w, "Warning: both --verbose and --quiet specified, using --quiet")
		return "warn"
	case config.Quiet:
		return "warn"
	case config.Verbose:
		return "debug"
	}
	return "info"
}
