// Package apierror defines the gateway's error taxonomy and the
// deterministic mapping from backend error shapes onto the client-facing
// error envelope.
package apierror

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Kind classifies where in the request lifecycle an error originated.
type Kind int

const (
	// KindValidation marks a malformed or unsupported inbound request,
	// rejected before any backend call.
	KindValidation Kind = iota

	// KindConfiguration marks an invalid routing profile or backend
	// configuration. Fatal at startup.
	KindConfiguration

	// KindUpstreamTransport marks a network failure reaching the backend.
	KindUpstreamTransport

	// KindUpstreamContract marks a backend response violating the
	// expected shape.
	KindUpstreamContract

	// KindUpstream marks an error reported by the backend itself.
	KindUpstream
)

// Client-facing error types (the "error.type" field of the envelope).
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeAuthentication = "authentication_error"
	TypePermission     = "permission_error"
	TypeNotFound       = "not_found_error"
	TypeRateLimit      = "rate_limit_error"
	TypeOverloaded     = "overloaded_error"
	TypeAPI            = "api_error"
)

// Error is the gateway's error value. It carries the lifecycle kind, the
// wire type and HTTP status to answer with, and optionally the raw
// offending backend payload for diagnostics.
type Error struct {
	Kind    Kind
	Type    string
	Status  int
	Message string
	Raw     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Validation builds a request-validation error.
func Validation(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Type:    TypeInvalidRequest,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

// Configuration builds a startup configuration error.
func Configuration(format string, args ...any) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Type:    TypeInvalidRequest,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf(format, args...),
	}
}

// Transport builds an upstream transport error.
func Transport(err error) *Error {
	return &Error{
		Kind:    KindUpstreamTransport,
		Type:    TypeAPI,
		Status:  http.StatusBadGateway,
		Message: fmt.Sprintf("upstream connection failed: %v", err),
	}
}

// Contract builds an upstream contract-violation error.
func Contract(format string, args ...any) *Error {
	return &Error{
		Kind:    KindUpstreamContract,
		Type:    TypeAPI,
		Status:  http.StatusBadGateway,
		Message: fmt.Sprintf(format, args...),
	}
}

// FromUpstreamStatus maps a backend HTTP status and error body onto the
// client-facing taxonomy. The mapping is a fixed table; unclassified
// statuses fall through to api_error.
func FromUpstreamStatus(status int, body []byte) *Error {
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", status)
	}

	var errType string
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errType = TypeAuthentication
	case status == http.StatusTooManyRequests:
		errType = TypeRateLimit
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		errType = TypeInvalidRequest
	case status == http.StatusInternalServerError || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable || status == 529:
		errType = TypeOverloaded
	default:
		errType = TypeAPI
	}

	return &Error{
		Kind:    KindUpstream,
		Type:    errType,
		Status:  status,
		Message: message,
		Raw:     string(body),
	}
}

// AsError normalizes any error into an *Error, wrapping unknown values
// as generic api_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return &Error{
		Kind:    KindUpstream,
		Type:    TypeAPI,
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
	}
}
