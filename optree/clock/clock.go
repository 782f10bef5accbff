// Package clock provides the Clock collaborator optree injects for
// suspending between retries, with a real implementation backed by
// jonboulle/clockwork and a fake one for deterministic tests.
package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock suspends the calling goroutine for d, or returns early if ctx is
// canceled. It is the only sleep primitive optree uses.
type Clock interface {
	Delay(ctx context.Context, d time.Duration) error
}

type realClock struct {
	c clockwork.Clock
}

// New returns a Clock backed by the real wall clock.
func New() Clock {
	return &realClock{c: clockwork.NewRealClock()}
}

func (r *realClock) Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := r.c.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// Fake wraps a clockwork.FakeClock so tests can advance time without
// waiting on a real timer.
type Fake struct {
	clockwork.FakeClock
}

// NewFake returns a Fake clock set to the current time.
func NewFake() *Fake {
	return &Fake{FakeClock: *clockwork.NewFakeClock()}
}

func (f *Fake) Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := f.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
