// Package errors defines the status-carrying error types returned by the
// HTTP surface. Internal components wrap errors with fmt.Errorf and %w; only
// the handler layer converts them to APIError values.
package errors

import "net/http"

// APIError is an error with an associated HTTP status code.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string { return e.Message }

// BadRequest returns a 400 error.
func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message}
}

// Unauthorized returns a 401 error.
func Unauthorized(message string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: message}
}

// Forbidden returns a 403 error.
func Forbidden(message string) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: message}
}

// Busy returns a 503 error for transient capacity exhaustion. Clients should
// retry.
func Busy(message string) *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Message: message}
}

// Timeout returns a 504 error for a result that did not arrive in time.
func Timeout(message string) *APIError {
	return &APIError{Status: http.StatusGatewayTimeout, Message: message}
}

// Internal returns a 500 error.
func Internal(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: message}
}
