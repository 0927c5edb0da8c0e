// internal/time_parser.go
// ------------------------
// This internal package provides helper functions for converting the time
// formats carried by rate-limit headers and throttle bodies into a single
// internal representation: milliseconds since the UNIX epoch.
//
// Functions:
// - SecondsToMs: convert a decimal seconds duration ("64", "64.57") to ms.
// - EpochSecondsToMs: convert a decimal epoch-seconds timestamp to ms.
// - MsUntil: duration from now until a ms-epoch instant (0 if past).
// - IsInFuture: check if a given timestamp (ms) is in the future.
package internal

import (
	"math"
	"strconv"
	"time"
)

// SecondsToMs converts a decimal seconds string into milliseconds. The
// second return value reports whether the input parsed.
func SecondsToMs(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return int64(math.Round(secs * 1000)), true
}

// EpochSecondsToMs converts a decimal UNIX timestamp in seconds into
// milliseconds since the epoch.
func EpochSecondsToMs(s string) (int64, bool) {
	return SecondsToMs(s)
}

// MsUntil returns the duration from now until the given ms-epoch instant,
// or zero if the instant has passed.
func MsUntil(ms int64) time.Duration {
	delta := ms - time.Now().UnixMilli()
	if delta <= 0 {
		return 0
	}
	return time.Duration(delta) * time.Millisecond
}

// IsInFuture checks if a timestamp (in ms) is in the future relative to
// the current time.
func IsInFuture(ms int64) bool {
	return ms > time.Now().UnixMilli()
}
