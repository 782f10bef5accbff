package optree

import (
	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"
)

// parallelCompositeID is the shared Definition ID for every composite
// built by NewParallelComposite; composites are created fresh per
// AddChild call and never looked up by id, so the id only needs to be
// stable for logging.
const parallelCompositeID = "optree.parallel-composite"

// NewParallelComposite builds the built-in template from §4.8: a node
// whose PreDuringExecOnlyHook fans children out concurrently via
// golang.org/x/sync/errgroup and whose PreDuringUndoOnlyHook mirrors
// that for undo. Every child always runs, regardless of earlier
// failures; the composite's own user exec/undo are left nil so the
// retry loop around them trivially succeeds, per spec's observation
// that the composite "is not ternary itself" but presents as one child
// of the visible tree.
func NewParallelComposite(bundle Bundle, children []*Handle) *Handle {
	tmpl := NewOperation[[]*Handle, []Outcome](
		bundle,
		Definition{ID: parallelCompositeID, Version: semver.MustParse("1.0.0"), Description: "fan children out concurrently and join"},
		nil,
		nil,
		Hooks[[]*Handle, []Outcome]{
			PreDuringExecOnlyHook: fanOutExec,
			PreDuringUndoOnlyHook: fanOutUndo,
		},
	)
	return tmpl.Create(children)
}

func fanOutExec(b Bundle, children []*Handle, ctx *Context, h *Handle) (any, error) {
	results := make([][]Outcome, len(children))
	errs := make([]error, len(children))

	ctx.mu.Lock()
	numTries, retryInterval := ctx.numTries, ctx.retryInterval
	ctx.mu.Unlock()

	var g errgroup.Group
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			r, err := child.Exec(WithNumTries(numTries), WithRetryInterval(retryInterval))
			results[i] = r
			errs[i] = err
			return nil // never short-circuit: every child always runs to completion.
		})
	}
	_ = g.Wait()

	return joinFanOut(h, ctx, results, errs, false)
}

func fanOutUndo(b Bundle, children []*Handle, ctx *Context, h *Handle) (any, error) {
	results := make([][]Outcome, len(children))
	errs := make([]error, len(children))

	ctx.mu.Lock()
	numTries, retryInterval := ctx.numTries, ctx.retryInterval
	ctx.mu.Unlock()

	var g errgroup.Group
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			r, err := child.Undo(WithNumTries(numTries), WithRetryInterval(retryInterval))
			results[i] = r
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return joinFanOut(h, ctx, results, errs, true)
}

// joinFanOut concatenates per-child result arrays and appends them
// directly to the walk's accumulated results, bypassing the generic
// single-value hook-return wrapping so the composite's contribution to
// execResults/undoResults is the flat concatenation the spec describes,
// not a nested slice-in-one-Outcome.
func joinFanOut(h *Handle, ctx *Context, results [][]Outcome, errs []error, isUndo bool) (any, error) {
	var concatenated []Outcome
	failed := false
	for i, r := range results {
		concatenated = append(concatenated, r...)
		if errs[i] != nil {
			failed = true
		}
	}

	h.appendAll(ctx, concatenated, isUndo)

	if failed {
		return nil, newResultsError(concatenated)
	}
	return nil, nil
}
