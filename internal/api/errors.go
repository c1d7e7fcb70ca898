package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/shielded-scanner/internal/errors"
	"github.com/shielded-scanner/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps a service-layer error onto the HTTP response.
// User-facing categories keep their message; everything else is masked as
// an internal error.
func respondServiceError(w http.ResponseWriter, err error) {
	categorized := apperrors.Categorize(err)
	status := apperrors.GetHTTPStatusCode(categorized)

	message := categorized.Message
	if !apperrors.IsUserError(categorized) {
		message = "An internal error occurred"
	}

	respondError(w, status, categorized.Code, message, categorized.Details)
}
