// Package errors provides custom error types for the accessreview system.
//
// Two classes of problem exist in a review run. Configuration and structural
// problems (bad mappings, duplicate identifiers, unknown rule tags) are
// returned as the typed errors in this package and abort the run. Data
// quality problems are never errors; they are reported as findings.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the accessreview system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates a configuration that cannot be used for a run
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDuplicateID indicates a user identifier appearing twice within one set
	ErrDuplicateID = errors.New("duplicate user identifier")

	// ErrInheritanceCycle indicates a mapping that inherits from itself
	ErrInheritanceCycle = errors.New("mapping inheritance cycle")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a value that failed conformance
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// DuplicateIDError is returned when a record set holds the same user
// identifier more than once.
type DuplicateIDError struct {
	Source string
	UserID string
	Rows   []int
}

// Error implements the error interface
func (e *DuplicateIDError) Error() string {
	if len(e.Rows) > 0 {
		return fmt.Sprintf("duplicate user_id %q in %s (rows %v)", e.UserID, e.Source, e.Rows)
	}
	return fmt.Sprintf("duplicate user_id %q in %s", e.UserID, e.Source)
}

// Is implements errors.Is support
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// NewDuplicateIDError creates a new DuplicateIDError
func NewDuplicateIDError(source, userID string, rows ...int) *DuplicateIDError {
	return &DuplicateIDError{Source: source, UserID: userID, Rows: rows}
}

// InheritanceError reports an unresolvable mapping inheritance chain.
type InheritanceError struct {
	Chain   []string
	Message string
	Err     error
}

// Error implements the error interface
func (e *InheritanceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "cannot resolve inheritance"
	}
	if len(e.Chain) > 0 {
		return fmt.Sprintf("mapping %s: %s", strings.Join(e.Chain, " -> "), msg)
	}
	return "mapping: " + msg
}

// Unwrap implements errors.Unwrap
func (e *InheritanceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *InheritanceError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewInheritanceError creates a new InheritanceError
func NewInheritanceError(chain []string, message string, err error) *InheritanceError {
	return &InheritanceError{
		Chain:   append([]string(nil), chain...),
		Message: message,
		Err:     err,
	}
}

// RuleError reports a validation rule or exception that cannot be compiled.
type RuleError struct {
	Rule    string
	Field   string
	Message string
	Err     error
}

// Error implements the error interface
func (e *RuleError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rule %q (field %s): %s", e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *RuleError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *RuleError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewRuleError creates a new RuleError
func NewRuleError(rule, field, message string, err error) *RuleError {
	return &RuleError{
		Rule:    rule,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "yaml", "csv", "date", etc.
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("parse error in %s at %s:%d:%d: %s", e.Format, e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "open", "hash"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsFatal reports whether err is a configuration or structural error that
// must abort a run before any output is written.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInheritanceCycle)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapCanceled marks a context error as a cancellation, keeping the
// context error in the chain.
func WrapCanceled(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCanceled, err)
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapConfig wraps an error as a ConfigError
func WrapConfig(component string, err error) error {
	if err == nil {
		return nil
	}
	return NewConfigError(component, err.Error(), err)
}

// Re-exported standard library helpers so callers need only one import.
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)
