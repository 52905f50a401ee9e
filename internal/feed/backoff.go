package feed

import "time"

// Reconnect policy. Both values are fixed, not configurable.
const (
	BackoffBase = 1 * time.Second
	BackoffCap  = 30 * time.Second
)

// BackoffCeiling returns the upper bound of the reconnect delay for a zero-based attempt:
// BackoffBase doubled per attempt, capped at BackoffCap.
func BackoffCeiling(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	d := BackoffBase
	for i := 0; i < attempt && d < BackoffCap; i++ {
		d *= 2
	}
	return min(d, BackoffCap)
}

// Backoff returns the "full jitter" reconnect delay: a uniform sample in [0, BackoffCeiling(attempt)).
// jitter is the sample in [0, 1); values outside are clamped.
func Backoff(attempt int, jitter float64) time.Duration {
	jitter = max(0, min(jitter, 1))
	return time.Duration(jitter * float64(BackoffCeiling(attempt)))
}
