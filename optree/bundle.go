package optree

import (
	"time"

	"github.com/google/uuid"

	"github.com/opscascade/cascade/optree/clock"
	"github.com/opscascade/cascade/optree/idgen"
	"github.com/opscascade/cascade/pkg/logger"
)

// Bundle carries the collaborators every Template shares: a logger, the
// Clock and IdSource injected per spec §6, and the engine's default
// retry policy. It is analogous to the teacher's operations.Bundle.
type Bundle struct {
	Logger        logger.Logger
	Clock         clock.Clock
	IDs           idgen.IdSource
	NumTries      uint
	RetryInterval time.Duration
}

// withDefaults fills zero-valued fields with the spec's defaults
// (numTries=1, retryInterval=1s) and a nop logger/real clock/ksuid
// source, so a caller can construct a Bundle{} and still get a sane
// template.
func (b Bundle) withDefaults() Bundle {
	if b.Logger == nil {
		b.Logger = logger.Nop()
	}
	if b.Clock == nil {
		b.Clock = clock.New()
	}
	if b.IDs == nil {
		b.IDs = idgen.New()
	}
	if b.NumTries == 0 {
		b.NumTries = 1
	}
	if b.RetryInterval == 0 {
		b.RetryInterval = time.Second
	}
	return b
}

// newTraceID mints a per-call correlation id, logged with the start,
// completion, failure and failed-attempt messages of one Exec or Undo
// call. Every call mints its own, including the nested Exec/Undo calls
// on children and grafts.
func newTraceID() string {
	return uuid.NewString()
}
