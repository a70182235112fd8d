package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from a platform API.
type APIError struct {
	// Platform is the client name, e.g. "neon".
	Platform string

	// Method and Path identify the request.
	Method string
	Path   string

	// Status is the HTTP status code.
	Status int

	// Body is the response body, truncated.
	Body string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s %s returned %d", e.Platform, e.Method, e.Path, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return retryableStatus(e.Status)
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Platform  string
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Operation, strings.Join(e.Messages, "; "))
}

// NotFound reports whether any message describes a missing entity.
func (e *GraphQLError) NotFound() bool {
	for _, m := range e.Messages {
		lower := strings.ToLower(m)
		if strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a 404 response or a GraphQL
// not-found error.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusNotFound
	}
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return gqlErr.NotFound()
	}
	return false
}

// IsUnauthorized reports whether err is a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
