// Package errors defines the categorized error taxonomy shared by the
// settlement services and the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category represents the category of an error.
type Category string

const (
	// CategoryValidation represents malformed input, rejected before any side effect
	CategoryValidation Category = "validation"
	// CategoryNotFound represents a referenced entity that does not exist
	CategoryNotFound Category = "not_found"
	// CategoryConflict represents an idempotency guard firing (already exists / already done)
	CategoryConflict Category = "conflict"
	// CategoryChainUnavailable represents a failed or timed-out RPC call
	CategoryChainUnavailable Category = "chain_unavailable"
	// CategoryDatabase represents ledger store failures
	CategoryDatabase Category = "database"
	// CategorySystem represents unexpected internal failures
	CategorySystem Category = "system"
)

// Error is an error with a category, a stable code and an HTTP mapping.
type Error struct {
	Category   Category
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a validation error for a malformed field.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details:    map[string]any{"field": field, "reason": reason},
	}
}

// NewNotFoundError creates a not-found error for a missing entity.
func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details:    map[string]any{"resource": resource, "id": id},
	}
}

// NewConflictError creates a conflict error. At the job level callers treat
// this as a benign "already done"; at the direct-call level it is a failure.
func NewConflictError(message string) *Error {
	return &Error{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewChainUnavailableError creates an error for a failed or timed-out RPC call.
func NewChainUnavailableError(operation string, cause error) *Error {
	return &Error{
		Category:   CategoryChainUnavailable,
		StatusCode: http.StatusBadGateway,
		Code:       "CHAIN_UNAVAILABLE",
		Message:    fmt.Sprintf("chain rpc failed during %s", operation),
		Details:    map[string]any{"operation": operation},
		Cause:      cause,
	}
}

// NewDatabaseError creates an error for a ledger store failure.
func NewDatabaseError(operation string, cause error) *Error {
	return &Error{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Details:    map[string]any{"operation": operation},
		Cause:      cause,
	}
}

// NewInternalError creates an uncategorized internal error.
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// IsCategory reports whether err (or anything it wraps) carries the category.
func IsCategory(err error, category Category) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}

// IsConflict reports whether err is an idempotency-guard conflict.
func IsConflict(err error) bool { return IsCategory(err, CategoryConflict) }

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool { return IsCategory(err, CategoryNotFound) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsCategory(err, CategoryValidation) }

// IsChainUnavailable reports whether err is an RPC availability error.
func IsChainUnavailable(err error) bool { return IsCategory(err, CategoryChainUnavailable) }

// HTTPStatus returns the HTTP status code an error maps to.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}
