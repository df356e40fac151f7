// Package app provides the application context and dependency management
// for the accessreview CLI: configuration, logging and command wiring.
package app

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/accessreview/pkg/errors"
)

// App represents the accessreview application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config      *Config
	logger      *zerolog.Logger
	fixedLogger bool

	out    io.Writer
	errOut io.Writer
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapConfig("settings", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string { return a.version }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if config == nil {
			return errors.NewValidationError("config", nil, "must not be nil")
		}
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger. The logger is kept even when flags
// would otherwise rebuild it.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		a.fixedLogger = true
		return nil
	}
}

// WithOutput redirects command output and error output.
func WithOutput(out, errOut io.Writer) Option {
	return func(a *App) error {
		a.out = out
		a.errOut = errOut
		return nil
	}
}
