package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/rewards-settlement/internal/errors"
)

// ErrorBody is the wire form of an API error.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data) // nolint:errcheck // response already committed
	}
}

// respondError sends an explicit error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]any) {
	respondJSON(w, statusCode, ErrorResponse{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// respondAppError maps a service error onto its HTTP form. Categorized
// errors carry their own status and code; anything else is a 500 with the
// cause hidden from the client.
func respondAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		respondError(w, appErr.StatusCode, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", nil)
}

// parseJSONBody parses a JSON request body, rejecting unknown fields.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
