package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors - these represent client-side rule violations
var (
	// Session & authentication
	ErrNoSession       = errors.New("no active session")
	ErrInvalidSession  = errors.New("session is missing required fields")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("action forbidden")
	ErrInvalidEmail    = errors.New("email is required")
	ErrInvalidPassword = errors.New("password is required")
	ErrPasswordMatch   = errors.New("passwords do not match")

	// Realtime connection
	ErrNotConnected        = errors.New("realtime connection is not established")
	ErrConnectTimeout      = errors.New("realtime connection timed out")
	ErrReconnectExhausted  = errors.New("realtime reconnection attempts exhausted")
	ErrConnectionClosed    = errors.New("realtime connection closed")
	ErrSendBufferFull      = errors.New("realtime send buffer full")
	ErrUnknownEvent        = errors.New("unknown realtime event")
	ErrMalformedEvent      = errors.New("malformed realtime event")
	ErrJoinChatUnavailable = errors.New("failed to join chat")

	// Conversation
	ErrNoTicketSelected = errors.New("no ticket selected")
	ErrEmptyMessage     = errors.New("message content is empty")
	ErrTicketIDRequired = errors.New("ticket ID is required")
	ErrInvalidStatus    = errors.New("invalid ticket status")
	ErrInvalidPriority  = errors.New("invalid ticket priority")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal error")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// APIError wraps a failed REST call with the information the backend sent back
type APIError struct {
	Err        error  // The underlying error
	Message    string // Message reported by the server
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError classifies an HTTP failure into one of the sentinel errors.
func NewAPIError(method, path string, statusCode int, message string) *APIError {
	e := &APIError{
		Message:    message,
		StatusCode: statusCode,
		Method:     method,
		Path:       path,
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		e.Err, e.Code = ErrUnauthorized, "UNAUTHORIZED"
	case statusCode == http.StatusForbidden:
		e.Err, e.Code = ErrForbidden, "FORBIDDEN"
	case statusCode == http.StatusNotFound:
		e.Err, e.Code = ErrNotFound, "NOT_FOUND"
	case statusCode == http.StatusTooManyRequests:
		e.Err, e.Code = ErrRateLimited, "RATE_LIMITED"
	case statusCode >= 500:
		e.Err, e.Code = ErrInternal, "INTERNAL_ERROR"
	default:
		e.Err, e.Code = ErrBadRequest, "BAD_REQUEST"
	}

	return e
}

// IsAuthError reports whether err means the stored token is no longer accepted.
// Both 401 and 403 from the profile endpoint are treated as an invalid token.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// StatusCode extracts the HTTP status from an APIError chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
