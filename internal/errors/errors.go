// Package errors provides consolidated error definitions for hivewatch.
//
// This package provides:
//   - Wire protocol error codes
//   - Sentinel errors for all error conditions
//   - Error category checking functions
//   - ErrorToCode mapping
//   - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Wire protocol error codes - carried in error response envelopes
// ============================================================================

const (
	CodeUnknown         int32 = 1
	CodeInvalidRequest  int32 = 2
	CodeUnknownQuery    int32 = 3
	CodeInvalidWindow   int32 = 4
	CodeInvalidParams   int32 = 5
	CodeNoData          int32 = 6
	CodeInternal        int32 = 7
	CodeTransport       int32 = 8
	CodeMessageTooLarge int32 = 9
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeUnknownQuery:
		return "UnknownQuery"
	case CodeInvalidWindow:
		return "InvalidWindow"
	case CodeInvalidParams:
		return "InvalidParameters"
	case CodeNoData:
		return "NoData"
	case CodeInternal:
		return "Internal"
	case CodeTransport:
		return "Transport"
	case CodeMessageTooLarge:
		return "MessageTooLarge"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Validation errors
	ErrInvalidWindow     = errors.New("invalid window")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnknownQuery      = errors.New("Query not recognized")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidConfig     = errors.New("invalid configuration")

	// Data absent
	ErrNoData   = errors.New("no data")
	ErrNotFound = errors.New("not found")

	// Transport errors
	ErrTransport       = errors.New("transport error")
	ErrMessageTooLarge = errors.New("message too large")
	ErrClosed          = errors.New("closed")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidParameters) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnknownQuery) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsNoData returns true if err signals an empty window or store.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData) || errors.Is(err, ErrNotFound)
}

// IsTransport returns true if err came from the connection rather than a query.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrMessageTooLarge) ||
		errors.Is(err, ErrClosed)
}

// ============================================================================
// Error to wire code mapping
// ============================================================================

// ErrorToCode maps a sentinel error to its wire protocol code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case Is(err, ErrUnknownQuery):
		return CodeUnknownQuery
	case Is(err, ErrInvalidWindow):
		return CodeInvalidWindow
	case Is(err, ErrInvalidParameters):
		return CodeInvalidParams
	case IsValidation(err):
		return CodeInvalidRequest
	case IsNoData(err):
		return CodeNoData
	case Is(err, ErrMessageTooLarge):
		return CodeMessageTooLarge
	case IsTransport(err):
		return CodeTransport
	default:
		return CodeInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewInvalidWindow reports an unrecognized window name along with the valid ones.
func NewInvalidWindow(name string, valid []string) error {
	return fmt.Errorf("%w %q: use one of %v", ErrInvalidWindow, name, valid)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidParameters)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
