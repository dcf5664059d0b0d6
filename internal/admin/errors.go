package admin

import (
	"encoding/json"
	"net/http"
)

// Standard error codes for API responses.
const (
	// ErrCodeInvalidRequest indicates a malformed request body.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeInvalidTarget indicates a token target outside the allowed scope.
	ErrCodeInvalidTarget = "invalid_target"

	// ErrCodeInvalidCredentials indicates a login code matching no account.
	ErrCodeInvalidCredentials = "invalid_credentials"

	// ErrCodeAdminRequired indicates the caller lacks the admin role.
	ErrCodeAdminRequired = "admin_required"

	// ErrCodeForbidden indicates a non-owner, non-admin mutation attempt.
	ErrCodeForbidden = "forbidden"

	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeInternalError indicates a server error.
	ErrCodeInternalError = "internal_error"
)

// APIError is the standard error response format for JSON APIs.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response with the given status code, error code, and message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are not critical since headers are already sent
	_ = json.NewEncoder(w).Encode(APIError{Error: code, Message: message}) //nolint:errcheck
}

// WriteJSON writes a JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}
