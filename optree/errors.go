package optree

import (
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
)

// Sentinel error kinds, per spec's BadInput/NotFound/Conflict status-code
// analogues. UserFailure and ChildFailure are not separate sentinel types:
// they travel as Outcome.Err entries inside a *ResultsError.
var (
	ErrBadInput = errors.New("optree: bad input")
	ErrNotFound = errors.New("optree: execution id not found")
	ErrConflict = errors.New("optree: conflicting execution state")
)

// ResultsError is the top-level error a failing Exec/Undo raises. Its
// Results is the context's full execResults/undoResults at the moment of
// failure, not just the last error, per data model invariant 6.
type ResultsError struct {
	Results []Outcome
}

func (e *ResultsError) Error() string {
	if n := len(e.Results); n > 0 {
		if last := e.Results[n-1]; last.Err != nil {
			return fmt.Sprintf("optree: raised with %d result(s), last error: %v", n, last.Err)
		}
	}
	return fmt.Sprintf("optree: raised with %d result(s)", len(e.Results))
}

// Unwrap exposes the last recorded error, if any, so errors.Is/As can
// reach sentinel kinds (ErrBadInput etc.) that were wrapped into it.
func (e *ResultsError) Unwrap() error {
	for i := len(e.Results) - 1; i >= 0; i-- {
		if e.Results[i].Err != nil {
			return e.Results[i].Err
		}
	}
	return nil
}

func newResultsError(results []Outcome) *ResultsError {
	cp := make([]Outcome, len(results))
	copy(cp, results)
	return &ResultsError{Results: cp}
}

// NewUnrecoverableError marks err so the retry loop driving exec/undo
// stops retrying and surfaces it immediately, mirroring
// avast/retry-go's retry.Unrecoverable.
func NewUnrecoverableError(err error) error {
	return retry.Unrecoverable(err)
}
