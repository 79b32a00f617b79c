package reelflow

import "time"

// ToPtr returns a pointer to the given value.
// This is useful for creating pointers to literals or converting values to pointers.
func ToPtr[T any](v T) *T {
	return &v
}

// Clock returns the current time. Engines take one so tests can pin timestamps.
type Clock func() time.Time

// UTCNow is the default Clock. Persisted timestamps are UTC without a monotonic reading.
func UTCNow() time.Time {
	return time.Now().UTC()
}
