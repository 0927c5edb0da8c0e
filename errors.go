// errors.go
// ---------
// This file defines the closed set of error kinds surfaced by the SDK.
// Every terminal failure of a dispatch is one of these types, so callers
// can handle each kind exhaustively with errors.As. Intermediate retry
// attempts are never observable as errors; only the final outcome is.
package discordbridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValidationError reports malformed client configuration. It is returned
// by New before any network activity can happen.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid client configuration: %s: %s", e.Field, e.Message)
}

// RateLimitedError is returned when the retry budget is exhausted while
// still receiving 429 responses for a route.
type RateLimitedError struct {
	// RetryAfter is the server-requested wait in seconds.
	RetryAfter float64
	// Global reports whether the throttle applies API-wide rather than
	// to a single route bucket.
	Global bool
	// Scope is the server-reported limit scope ("user", "global",
	// "shared"), empty when the header was absent.
	Scope string
	// Code is the optional numeric error code from the 429 body.
	Code    int
	Message string
}

func (e *RateLimitedError) Error() string {
	kind := "route"
	if e.Global {
		kind = "global"
	}
	return fmt.Sprintf("rate limited (%s): retry after %.3fs: %s", kind, e.RetryAfter, e.Message)
}

// APIError is the structured error envelope returned for any non-429
// failure status, including 5xx responses that outlived the retry budget.
type APIError struct {
	Status  int
	Code    int
	Message string
	// Errors holds the optional nested per-field validation tree exactly
	// as the server sent it.
	Errors json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d, code %d: %s", e.Status, e.Code, e.Message)
}

// NetworkTimeoutError is returned when a transfer exceeds the configured
// per-request timeout. The dispatcher never retries these: the request
// may or may not have taken effect remotely, and only the caller knows
// whether a resubmission is safe.
type NetworkTimeoutError struct {
	Timeout time.Duration
}

func (e *NetworkTimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Timeout)
}

// PayloadTooLargeError is returned before any transfer when an attachment
// exceeds the configured size ceiling.
type PayloadTooLargeError struct {
	Name    string
	Size    int64
	Ceiling int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("attachment %q is %d bytes, exceeds ceiling of %d bytes", e.Name, e.Size, e.Ceiling)
}
