// Package constants provides shared constants used throughout the accessreview codebase.
// This includes file permissions, limits, formats and default names that should be
// consistent across the engine, the loaders and the CLI.
package constants

import "time"

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// DefaultParallelism is the number of comparison sets reconciled at once
	// when no explicit value is configured.
	DefaultParallelism = 1

	// MaxParallelism bounds the number of concurrent comparison workers.
	MaxParallelism = 32

	// MaxInheritanceDepth bounds mapping inheritance chains. Deeper chains are
	// almost certainly a configuration mistake.
	MaxInheritanceDepth = 16
)

// Default values
const (
	// DefaultOutputPrefix is the prefix used for generated files when the
	// review configuration does not set one.
	DefaultOutputPrefix = "output"

	// DefaultConfigName is the file name searched for CLI settings.
	DefaultConfigName = ".accessreview"

	// NotAvailable replaces template keys that have no value.
	NotAvailable = "##N/A##"
)

// Format constants
const (
	// TimeFormatISO8601 is the ISO 8601 time format
	TimeFormatISO8601 = time.RFC3339

	// TimeFormatReceipt is the format used for timestamps in audit receipts
	TimeFormatReceipt = "2006-01-02 15:04:05 MST"

	// TimeFormatFilename is the format used in generated filenames
	TimeFormatFilename = "20060102-150405"
)

// File suffixes for generated artifacts
const (
	// BaselineSuffix is appended to the output prefix for baseline files.
	BaselineSuffix = "_baseline.csv"

	// FindingsSuffix is appended to the output prefix for the findings report.
	FindingsSuffix = "_findings.csv"

	// ReceiptSuffix is appended to the output prefix for the audit receipt.
	ReceiptSuffix = "_receipt.txt"
)
