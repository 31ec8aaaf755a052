package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoQueries is returned when a completion parses but yields no usable query.
var ErrNoQueries = errors.New("llm: response contains no usable queries")

// APIError is a non-200 response from a chat completions endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether a retry may succeed. StatusCode 0 means no
// HTTP response was received.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// errorType is a low-cardinality label for failure metrics.
func errorType(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 500:
		return "server_error"
	case errors.As(err, &apiErr):
		return "client_error"
	case errors.Is(err, ErrNoQueries):
		return "empty_response"
	default:
		return "transport"
	}
}

func isTransientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return false
}
