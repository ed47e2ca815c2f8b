package task

import "time"

// Clock abstracts "now" for SLA on-track decisions.
//
// Normalizers compare SLA deadlines against the clock's now; injecting a
// fixed clock makes those decisions reproducible in tests and golden files.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. Production default.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Test use only.
type FixedClock struct {
	Instant time.Time
}

// NewFixedClock creates a clock pinned to the given instant.
func NewFixedClock(t time.Time) FixedClock {
	return FixedClock{Instant: t.UTC()}
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time {
	return c.Instant
}
