package discordbridge

import (
	"context"
	"time"
)

// Limiter is the contract the dispatcher relies on for route-level
// gating. BucketTracker is the canonical implementation; tests and
// embedders may substitute their own.
type Limiter interface {
	// Acquire blocks until a request on the route may proceed and claims
	// the route's in-flight settle slot.
	Acquire(ctx context.Context, routeKey string) error
	// Release settles the route's in-flight slot.
	Release(routeKey string)
	// Update records a response's quota snapshot for the route.
	Update(routeKey string, info *RateLimitInfo)
	// SetGlobalSuspension raises the API-wide suspension deadline;
	// it never lowers it.
	SetGlobalSuspension(until time.Time)
	// IsLimited reports whether a request on the route would wait.
	IsLimited(routeKey string) bool
	// DelayFor returns the wait a request on the route would incur.
	DelayFor(routeKey string) time.Duration
}
