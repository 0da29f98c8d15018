package apiclient

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying RateLimitedClient failures (spec.md §7).
// Use errors.Is(err, apiclient.ErrCancelled) etc. to check.
var (
	ErrNetworkUnavailable = errors.New("apiclient: network unavailable")
	ErrServerError        = errors.New("apiclient: server error")
	ErrCancelled          = errors.New("apiclient: cancelled")
)

// APIError wraps a non-2xx response with the parsed server message and,
// when present, the request-id response header for debugging flaky uploads.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("apiclient: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("apiclient: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
