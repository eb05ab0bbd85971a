package errors

import (
	"fmt"
)

// ErrorCategory classifies governor errors along the handling boundaries:
// which are fatal to a cycle, which are retried, which only degrade
// observability.
type ErrorCategory string

const (
	// Fatal to a cycle: the governor must not report success past these
	ErrorCategoryDurability ErrorCategory = "DURABILITY"
	ErrorCategoryConfig     ErrorCategory = "CONFIG"
	ErrorCategoryFatal      ErrorCategory = "FATAL"

	// Fail-closed inputs: surfaced as critical findings
	ErrorCategoryMetrics ErrorCategory = "METRICS"
	ErrorCategoryCheck   ErrorCategory = "CHECK"

	// Recoverable: bounded retry or next-cycle findings
	ErrorCategoryDelivery ErrorCategory = "DELIVERY"
	ErrorCategoryPublish  ErrorCategory = "PUBLISH"
)

// GovernorError is a categorized error with component and operation context.
type GovernorError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *GovernorError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *GovernorError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *GovernorError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error must stop the cycle rather than be
// absorbed into findings.
func (e *GovernorError) IsFatal() bool {
	return e.Category == ErrorCategoryDurability ||
		e.Category == ErrorCategoryConfig ||
		e.Category == ErrorCategoryFatal
}

// NewGovernorError creates a new categorized error.
func NewGovernorError(category ErrorCategory, component, operation, message string) *GovernorError {
	return &GovernorError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with governor error context.
func WrapError(err error, category ErrorCategory, component, operation string) *GovernorError {
	if err == nil {
		return nil
	}
	return &GovernorError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable overrides the retryable flag.
func (e *GovernorError) WithRetryable(retryable bool) *GovernorError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryDelivery, ErrorCategoryPublish, ErrorCategoryMetrics, ErrorCategoryDurability:
		return true
	default:
		return false
	}
}

// Common constructors

func NewMetricsError(component, operation string, err error) *GovernorError {
	return WrapError(err, ErrorCategoryMetrics, component, operation)
}

func NewDeliveryError(component, operation string, err error) *GovernorError {
	return WrapError(err, ErrorCategoryDelivery, component, operation)
}

func NewPublishError(component, operation string, err error) *GovernorError {
	return WrapError(err, ErrorCategoryPublish, component, operation)
}

func NewDurabilityError(component, operation string, err error) *GovernorError {
	return WrapError(err, ErrorCategoryDurability, component, operation)
}

func NewConfigError(component, operation, message string) *GovernorError {
	return NewGovernorError(ErrorCategoryConfig, component, operation, message)
}
