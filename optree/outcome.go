package optree

// Outcome is the tagged-variant result unit that execResults/undoResults
// accumulate: either a successful Value or a non-nil Err, never both
// meaningfully populated. Heterogeneous results (different templates'
// OUT types) coexist in one slice via this erasure.
type Outcome struct {
	Value any
	Err   error
}

func valueOutcome(v any) Outcome {
	return Outcome{Value: v}
}

func errOutcome(err error) Outcome {
	return Outcome{Err: err}
}

// Failed reports whether this outcome represents a failure.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
