package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidFormat = "INVALID_FORMAT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeProcessing    = "PROCESSING_FAILED"
	ErrCodeToken         = "TOKEN_ERROR"
	ErrCodeConfig        = "CONFIG_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// FormatError marks a malformed webhook payload. Terminal for the request and
// mapped to 400, so the platform does not re-deliver it.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "invalid webhook format: " + e.Reason }

// AuthError marks a failed verification or authorization check (401/403).
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "unauthorized: " + e.Reason }

// ProcessingError marks a downstream persistence failure. Mapped to 500 so the
// platform re-delivers the webhook.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string { return fmt.Sprintf("processing %s: %v", e.Op, e.Err) }
func (e *ProcessingError) Unwrap() error { return e.Err }

// TokenError marks an OAuth exchange or refresh failure. Transient errors
// (network, 5xx from the provider) are eligible for bounded retry on the
// refresh path only.
type TokenError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *TokenError) Error() string { return fmt.Sprintf("oauth %s: %v", e.Op, e.Err) }
func (e *TokenError) Unwrap() error { return e.Err }

// ConfigError marks missing required configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Reason }

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}
