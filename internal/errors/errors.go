// Package errors provides the categorized error taxonomy used across the
// shielded scanner: transient provider failures are retryable, unsupported
// node capabilities degrade gracefully, and validation/authorization
// failures are rejected at the API boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shielded-scanner/internal/types"
)

// ErrMethodUnsupported signals that the chain node lacks an optional RPC
// method. Callers must degrade to an empty-but-valid result instead of
// failing the request.
var ErrMethodUnsupported = errors.New("rpc method unsupported by node")

// IsMethodUnsupported reports whether err is the unsupported-capability class
func IsMethodUnsupported(err error) bool {
	return errors.Is(err, ErrMethodUnsupported)
}

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed input rejected synchronously (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents ownership/permission failures
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryProvider represents chain node failures (usually transient)
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents relational store failures
	CategoryDatabase ErrorCategory = "database"
	// CategoryQueue represents cache/queue store failures
	CategoryQueue ErrorCategory = "queue"
	// CategorySystem represents other internal failures (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewValidationError creates a validation error for a specific field
func NewValidationError(field string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewInvalidRangeError creates an error for an invalid block range
func NewInvalidRangeError(start, end int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_BLOCK_RANGE",
		Message:    fmt.Sprintf("invalid block range: start %d is greater than end %d", start, end),
		Details: map[string]interface{}{
			"start": start,
			"end":   end,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewForbiddenError creates a forbidden error for a resource the acting
// user does not own
func NewForbiddenError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "FORBIDDEN",
		Message:    fmt.Sprintf("%s %s does not belong to the acting user", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewProviderError creates a chain node error
func NewProviderError(op string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("chain node error during %s", op),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": op,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewQueueError creates a cache/queue store error
func NewQueueError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryQueue,
		StatusCode: http.StatusInternalServerError,
		Code:       "QUEUE_ERROR",
		Message:    fmt.Sprintf("queue error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	if IsMethodUnsupported(err) {
		return NewProviderError("unsupported method", err)
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable. The unsupported-capability
// class is explicitly not retryable: repeating the call cannot make the node
// grow the method.
func IsRetryable(err error) bool {
	if IsMethodUnsupported(err) {
		return false
	}

	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategoryQueue:
		return true
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
