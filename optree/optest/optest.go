// Package optest provides utilities for testing optree templates and
// handles: a deterministic Bundle backed by a nop logger, a clock that
// never actually sleeps, and a sequential id source.
package optest

import (
	"context"
	"testing"
	"time"

	"github.com/opscascade/cascade/optree"
	"github.com/opscascade/cascade/optree/clock"
	"github.com/opscascade/cascade/optree/idgen"
	"github.com/opscascade/cascade/pkg/logger"
)

// NewBundle returns a Bundle for testing: a nop logger, an instant
// clock, a sequential id source, and numTries=1.
func NewBundle(t *testing.T) optree.Bundle {
	t.Helper()

	return optree.Bundle{
		Logger:        logger.Nop(),
		Clock:         NewInstantClock(),
		IDs:           idgen.NewSequential(),
		NumTries:      1,
		RetryInterval: time.Millisecond,
	}
}

// NewLoggingBundle is like NewBundle but logs through [logger.Test], so
// a failing test prints the engine's phase/retry trail.
func NewLoggingBundle(t *testing.T) optree.Bundle {
	t.Helper()

	return optree.Bundle{
		Logger:        logger.Test(t),
		Clock:         NewInstantClock(),
		IDs:           idgen.NewSequential(),
		NumTries:      1,
		RetryInterval: time.Millisecond,
	}
}

// instantClock never actually suspends; it lets retry-loop tests run
// without real sleeps while still calling through the Clock interface.
type instantClock struct{}

// NewInstantClock returns a clock.Clock whose Delay returns immediately.
func NewInstantClock() clock.Clock {
	return instantClock{}
}

func (instantClock) Delay(_ context.Context, _ time.Duration) error {
	return nil
}
