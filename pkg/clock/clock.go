// Package clock abstracts wall-clock time and timers, so that the playback
// synchronization logic can be driven by virtual time in tests.
package clock

import (
	"context"
	"time"
)

// CancelFunc stops a scheduled callback. Calling it more than once, or after
// a one-shot callback has already fired, is a no-op.
type CancelFunc func()

type Scheduler interface {
	Now() time.Time

	// After calls fn once after the duration d.
	After(d time.Duration, fn func()) CancelFunc

	// Every calls fn every interval until cancelled. The first call
	// happens one interval after Every is called.
	Every(interval time.Duration, fn func()) CancelFunc

	// WithTimeout is context.WithTimeout measured by this scheduler.
	WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc)
}
