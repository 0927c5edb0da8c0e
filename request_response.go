// request_response.go
// --------------------
// This file defines the request envelope callers hand to the dispatcher,
// the response envelope they get back, and the RateLimitInfo snapshot
// parsed from response headers. Optional header-derived values use
// pointer fields so "absent" and "zero" stay distinguishable.
package discordbridge

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/opengovern/discord-bridge/internal"
)

// File is an attachment uploaded as one part of a multipart request.
type File struct {
	Name string
	// ContentType defaults to application/octet-stream when empty.
	ContentType string
	Data        []byte
}

// RequestOptions is the optional part of a request envelope. A nil
// *RequestOptions is equivalent to the zero value.
type RequestOptions struct {
	// Query parameters; entries with empty values are omitted.
	Query map[string]string
	// Body is JSON-encoded. With Files present it becomes the
	// payload_json multipart part instead.
	Body  any
	Files []File
	// Headers are merged last and can override anything the dispatcher
	// sets.
	Headers map[string]string
	// Reason is sent percent-encoded as the X-Audit-Log-Reason header.
	Reason string
	// NoAuth suppresses the Authorization header for this request.
	NoAuth bool
}

// Response is the terminal success envelope of a dispatch.
type Response struct {
	Status  int
	Headers http.Header
	// Data is the raw response payload; nil for 204 responses.
	Data []byte
	// RateLimit is the snapshot parsed from this response's headers,
	// nil when the response carried none.
	RateLimit *RateLimitInfo
}

// RateLimitInfo is the quota snapshot a single response reports for its
// route bucket.
type RateLimitInfo struct {
	Limit     *int
	Remaining *int
	// ResetAt is the replenish instant in ms since the epoch.
	ResetAt *int64
	// ResetAfter is the relative replenish delay in seconds. When both
	// are present ResetAfter wins: it is immune to clock skew.
	ResetAfter *float64
	// Bucket is the server-assigned bucket hash for this route.
	Bucket string
	Global bool
	Scope  string
}

// rateLimitBody is the JSON envelope of a 429 response.
type rateLimitBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
	Code       int     `json:"code,omitempty"`
}

// apiErrorBody is the JSON envelope of any other 4xx/5xx response.
type apiErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// parseRateLimitInfo extracts the rate-limit snapshot from response
// headers, or nil when no rate-limit headers are present.
func parseRateLimitInfo(h http.Header) *RateLimitInfo {
	info := &RateLimitInfo{
		Bucket: h.Get("X-RateLimit-Bucket"),
		Global: h.Get("X-RateLimit-Global") == "true",
		Scope:  h.Get("X-RateLimit-Scope"),
	}
	seen := info.Bucket != "" || info.Global || info.Scope != ""

	if v := h.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Limit = &n
			seen = true
		}
	}
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = &n
			seen = true
		}
	}
	if ms, ok := internal.EpochSecondsToMs(h.Get("X-RateLimit-Reset")); ok {
		info.ResetAt = &ms
		seen = true
	}
	if v := h.Get("X-RateLimit-Reset-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			info.ResetAfter = &secs
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return info
}
