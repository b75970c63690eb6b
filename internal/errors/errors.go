// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidPosition  = errors.New("invalid position")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrPricingConfig    = errors.New("pricing configuration unavailable")
	ErrUnknownBrokerage = errors.New("unknown brokerage")
	ErrDataNotFound     = errors.New("data not found")
	ErrDatabaseError    = errors.New("database error")
	ErrEventConsumed    = errors.New("event already consumed")
	ErrNoQuoteData      = errors.New("no quote data")
)

// ValidationError reports a structurally invalid input, e.g. a signal whose
// position has the wrong leg count or a non-positive quantity. It is distinct
// from a capital rejection, which is normal control flow and not an error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPosition
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// PricingError reports a problem with the fee/margin schedule for a brokerage.
type PricingError struct {
	Brokerage string
	Path      string
	Err       error
}

func (e *PricingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pricing error [%s] %s: %v", e.Brokerage, e.Path, e.Err)
	}
	return fmt.Sprintf("pricing error [%s] %s", e.Brokerage, e.Path)
}

func (e *PricingError) Unwrap() error {
	return e.Err
}

// NewPricingError creates a new PricingError.
func NewPricingError(brokerage, path string, err error) *PricingError {
	return &PricingError{
		Brokerage: brokerage,
		Path:      path,
		Err:       err,
	}
}

// DataError represents a data-related error from the quote source.
type DataError struct {
	DataType string
	Source   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Source, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, source, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Source:   source,
		Message:  message,
		Err:      err,
	}
}

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

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
