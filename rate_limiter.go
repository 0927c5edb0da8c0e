// rate_limiter.go
// ----------------
// This file defines the BucketTracker type, which owns all rate-limit
// state for a client: per-route quota buckets, the route-to-server-hash
// associations learned from responses, and the single global suspension
// deadline. It decides whether a caller must wait and for how long.
//
// Responsibilities:
// - Storing quota snapshots keyed by route identity, or by the server's
//   own bucket hash once a response has revealed it.
// - Serializing same-route callers behind an in-flight settle slot, so a
//   burst cannot all read a stale "remaining = 1" and proceed together.
// - Calculating delay durations from bucket state and the global
//   suspension deadline, which always takes precedence.
package discordbridge

import (
	"context"
	"sync"
	"time"

	"github.com/opengovern/discord-bridge/internal"
)

// bucket is the quota snapshot for one logical route family. remaining
// is only meaningful until resetAt; after that instant the bucket counts
// as a full fresh quota until the next update.
type bucket struct {
	limit     int
	remaining int
	resetAt   int64 // ms since epoch, 0 when never updated
}

// delayMs returns how long a caller must wait on this bucket, in ms.
func (b *bucket) delayMs(nowMs int64) int64 {
	if b.resetAt == 0 || b.remaining > 0 || nowMs >= b.resetAt {
		return 0
	}
	return b.resetAt - nowMs
}

// BucketTracker is the single owner of all shared rate-limit state. Many
// concurrent dispatches read and update it; all mutation happens inside
// its own lock and no lock is ever held across a network transfer.
type BucketTracker struct {
	mu sync.Mutex
	// buckets is keyed by storage key: the derived route key until the
	// server reveals its bucket hash, then hash+major.
	buckets map[string]*bucket
	// hashes maps route key to the server-assigned bucket hash.
	hashes map[string]string
	// pending holds the per-route in-flight settle signal: while a
	// request on the route is awaiting its response, later callers wait
	// on this channel instead of trusting possibly stale quota state.
	pending map[string]chan struct{}
	// globalUntil is the API-wide suspension deadline in ms, 0 if none.
	globalUntil int64
}

var _ Limiter = (*BucketTracker)(nil)

func NewBucketTracker() *BucketTracker {
	return &BucketTracker{
		buckets: make(map[string]*bucket),
		hashes:  make(map[string]string),
		pending: make(map[string]chan struct{}),
	}
}

// Acquire blocks until a request on the route may proceed, then claims
// the route's in-flight settle slot. The caller must call Release once
// its response has settled (or the transfer failed). The wait is the
// larger of the global suspension remainder and the bucket's own reset
// delay; a route with no recorded state imposes no wait.
func (t *BucketTracker) Acquire(ctx context.Context, routeKey string) error {
	for {
		t.mu.Lock()
		nowMs := time.Now().UnixMilli()
		waitMs := t.globalDelayMsLocked(nowMs)
		if b, ok := t.buckets[t.storageKeyLocked(routeKey)]; ok {
			if d := b.delayMs(nowMs); d > waitMs {
				waitMs = d
			}
		}
		if waitMs <= 0 {
			settle, held := t.pending[routeKey]
			if !held {
				t.pending[routeKey] = make(chan struct{})
				t.mu.Unlock()
				return nil
			}
			t.mu.Unlock()
			// A previous call on this route is still awaiting the
			// response that will refresh remaining/reset. Wait for it to
			// settle, then recompute.
			select {
			case <-settle:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		t.mu.Unlock()

		timer := time.NewTimer(time.Duration(waitMs) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Release settles the route's in-flight slot, waking every waiter. Safe
// to call when no slot is held.
func (t *BucketTracker) Release(routeKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if settle, ok := t.pending[routeKey]; ok {
		delete(t.pending, routeKey)
		close(settle)
	}
}

// Update records the quota snapshot a response reported for the route.
// The most recent server-reported values always win. When the snapshot
// carries the server's bucket hash the route is re-keyed under it, so
// routes sharing a server bucket share one quota from then on.
func (t *BucketTracker) Update(routeKey string, info *RateLimitInfo) {
	if info == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if info.Bucket != "" && t.hashes[routeKey] != info.Bucket {
		oldKey := t.storageKeyLocked(routeKey)
		t.hashes[routeKey] = info.Bucket
		newKey := t.storageKeyLocked(routeKey)
		if b, ok := t.buckets[oldKey]; ok && oldKey != newKey {
			delete(t.buckets, oldKey)
			t.buckets[newKey] = b
		}
	}

	key := t.storageKeyLocked(routeKey)
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{}
		t.buckets[key] = b
	}
	if info.Limit != nil {
		b.limit = *info.Limit
	}
	if info.Remaining != nil {
		b.remaining = *info.Remaining
	}
	switch {
	case info.ResetAfter != nil:
		// Preferred: relative value, immune to clock skew.
		b.resetAt = time.Now().UnixMilli() + int64(*info.ResetAfter*1000)
	case info.ResetAt != nil:
		b.resetAt = *info.ResetAt
	}
}

// SetGlobalSuspension raises the API-wide suspension deadline. It is
// monotonic: a caller can never lower the current deadline.
func (t *BucketTracker) SetGlobalSuspension(until time.Time) {
	ms := until.UnixMilli()
	t.mu.Lock()
	defer t.mu.Unlock()
	if ms > t.globalUntil {
		t.globalUntil = ms
	}
}

// GlobalSuspendedUntil returns the current global deadline, or the zero
// time when none is active.
func (t *BucketTracker) GlobalSuspendedUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !internal.IsInFuture(t.globalUntil) {
		return time.Time{}
	}
	return time.UnixMilli(t.globalUntil)
}

// IsLimited reports whether a request on the route would have to wait.
func (t *BucketTracker) IsLimited(routeKey string) bool {
	return t.DelayFor(routeKey) > 0
}

// DelayFor returns how long a request on the route would have to wait
// right now. Pure query, no side effects.
func (t *BucketTracker) DelayFor(routeKey string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	nowMs := time.Now().UnixMilli()
	waitMs := t.globalDelayMsLocked(nowMs)
	if b, ok := t.buckets[t.storageKeyLocked(routeKey)]; ok {
		if d := b.delayMs(nowMs); d > waitMs {
			waitMs = d
		}
	}
	return time.Duration(waitMs) * time.Millisecond
}

func (t *BucketTracker) globalDelayMsLocked(nowMs int64) int64 {
	if t.globalUntil > nowMs {
		return t.globalUntil - nowMs
	}
	return 0
}

// storageKeyLocked resolves where the route's quota lives: under the
// server bucket hash (scoped by major parameter, so distinct resources
// sharing a hash still track separately) once learned, otherwise under
// the pessimistic derived route key.
func (t *BucketTracker) storageKeyLocked(routeKey string) string {
	hash, ok := t.hashes[routeKey]
	if !ok {
		return routeKey
	}
	return hash + ";" + majorParameter(routeKey)
}
