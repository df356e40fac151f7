package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the CLI settings loaded from flags, environment variables,
// .env files and an optional settings file.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Settings file
	ConfigFile string

	// Review defaults, used when the review file leaves them unset
	Parallelism int
	FailOn      string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads settings in order of precedence:
//  1. Command-line flags (applied later by UpdateFromFlags)
//  2. Environment variables
//  3. .env and .env.local
//  4. Settings file (./.accessreview.yaml or ~/.accessreview.yaml)
//  5. Defaults
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	if file := os.Getenv("ACCESSREVIEW_CONFIG"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName(".accessreview")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	// A missing settings file is not an error.
	var used string
	if err := v.ReadInConfig(); err == nil {
		used = v.ConfigFileUsed()
	}

	return &Config{
		Verbose:     v.GetBool("verbose"),
		Quiet:       v.GetBool("quiet"),
		NoColor:     v.GetBool("no_color"),
		Format:      v.GetString("format"),
		ConfigFile:  used,
		Parallelism: v.GetInt("parallelism"),
		FailOn:      v.GetString("fail_on"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		LogOutput:   v.GetString("log_output"),
	}, nil
}

// UpdateFromFlags applies parsed persistent flags. Empty strings keep the
// loaded value.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads .env then .env.local. godotenv never overrides a
// variable that is already set, so the process environment wins.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}
