package fusion

import "time"

// IsStale reports whether a sample captured at stamp is too old to use
// directly at time now. A sample exactly at the tolerance boundary is
// still fresh; only samples strictly older must be fast-forwarded.
func IsStale(stamp, now time.Time, tolerance time.Duration) bool {
	return now.Sub(stamp) > tolerance
}
