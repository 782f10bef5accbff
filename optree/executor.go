package optree

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
)

// Exec runs the phase sequence described in spec §4.5: before-slot hooks,
// before-child, during-slot hooks wrapping a bounded retry loop around
// the user's exec function, after-slot hooks, and after-child. It
// returns the context's accumulated execResults on success, or raises
// them (wrapped in *ResultsError) on failure.
func (h *Handle) Exec(opts ...ExecOption) ([]Outcome, error) {
	ctx, err := h.tmpl.context(h.execID)
	if err != nil {
		return nil, err
	}

	ctx.mu.Lock()
	switch {
	case ctx.undoing:
		ctx.mu.Unlock()
		return nil, fmt.Errorf("exec %q while undoing: %w", h.execID, ErrConflict)
	case ctx.executing:
		// Re-entrant exec while already executing is a graft request,
		// per §4.4/§9 design notes: drain whatever is pending and return
		// without restarting the phase sequence.
		ctx.mu.Unlock()
		if err := h.checkGraft(ctx, h.tmpl.bundle, false); err != nil {
			return ctx.ExecResults(), err
		}
		return ctx.ExecResults(), nil
	}
	needsReset := ctx.phases != (Phases{}) || len(ctx.execResults) > 0
	ctx.mu.Unlock()

	if needsReset {
		if err := h.Reset(); err != nil {
			return nil, err
		}
	}

	ctx.mu.Lock()
	ctx.executing = true
	policy := resolvePolicy(ctx, opts)
	ctx.mu.Unlock()

	bundle := h.tmpl.bundle
	def := h.tmpl.Definition()
	trace := newTraceID()
	bundle.Logger.Debugw("optree: exec started",
		"execID", h.execID, "trace", trace,
		"id", def.ID, "version", def.versionString(), "description", def.Description)

	results, err := h.execPhases(ctx, bundle, policy, trace)

	ctx.mu.Lock()
	ctx.executing = false
	ctx.mu.Unlock()

	if err != nil {
		bundle.Logger.Warnw("optree: exec failed",
			"execID", h.execID, "trace", trace, "error", err,
			"id", def.ID, "version", def.versionString())
		return results, err
	}
	bundle.Logger.Debugw("optree: exec completed",
		"execID", h.execID, "trace", trace,
		"id", def.ID, "version", def.versionString())
	return results, nil
}

func (h *Handle) execPhases(ctx *Context, bundle Bundle, policy retryPolicy, trace string) ([]Outcome, error) {
	hooks := h.tmpl.hooks

	// Step 1: before-slot leading hooks.
	if err := h.fireHookPair(ctx, bundle, false, hooks.preBefore, hooks.preBeforeExecOnly); err != nil {
		return h.abortExec(ctx)
	}

	// Step 2: before child.
	ctx.mu.Lock()
	before := ctx.beforeChild
	if before != nil {
		ctx.phases.BeforeChildExecuted = true
	}
	ctx.mu.Unlock()

	if before != nil {
		childResults, err := before.Exec(WithNumTries(policy.numTries), WithRetryInterval(policy.retryInterval))
		h.appendAll(ctx, childResults, false)
		if err != nil {
			return h.abortExec(ctx)
		}
		ctx.mu.Lock()
		ctx.phases.BeforeChildSucceeded = true
		ctx.mu.Unlock()
	}

	// Step 3: before-slot trailing hooks.
	if err := h.fireHookPair(ctx, bundle, false, hooks.postBefore, hooks.postBeforeExecOnly); err != nil {
		return h.abortExec(ctx)
	}
	ctx.mu.Lock()
	ctx.phases.CompletedBeforeChild = true
	ctx.mu.Unlock()

	// Step 4: during-slot leading hooks.
	if err := h.fireHookPair(ctx, bundle, false, hooks.preDuring, hooks.preDuringExecOnly); err != nil {
		return h.abortExec(ctx)
	}

	// Step 5-6: bounded retry loop around the user's exec, then merge
	// this attempt's opResults into execResults regardless of outcome.
	if err := h.runExecRetryLoop(ctx, bundle, policy, trace); err != nil {
		return h.abortExec(ctx)
	}

	// Step 7: during-slot trailing hooks.
	if err := h.fireHookPair(ctx, bundle, false, hooks.postDuring, hooks.postDuringExecOnly); err != nil {
		return h.abortExec(ctx)
	}
	ctx.mu.Lock()
	ctx.phases.CompletedExecFunction = true
	ctx.mu.Unlock()

	// Step 8: after-slot leading hooks.
	if err := h.fireHookPair(ctx, bundle, false, hooks.preAfter, hooks.preAfterExecOnly); err != nil {
		return h.abortExec(ctx)
	}

	// Step 9: after child, mirror of step 2.
	ctx.mu.Lock()
	after := ctx.afterChild
	if after != nil {
		ctx.phases.AfterChildExecuted = true
	}
	ctx.mu.Unlock()

	if after != nil {
		childResults, err := after.Exec(WithNumTries(policy.numTries), WithRetryInterval(policy.retryInterval))
		h.appendAll(ctx, childResults, false)
		if err != nil {
			return h.abortExec(ctx)
		}
		ctx.mu.Lock()
		ctx.phases.AfterChildSucceeded = true
		ctx.mu.Unlock()
	}

	// Step 10: after-slot trailing hooks.
	if err := h.fireHookPair(ctx, bundle, false, hooks.postAfter, hooks.postAfterExecOnly); err != nil {
		return h.abortExec(ctx)
	}
	ctx.mu.Lock()
	ctx.phases.CompletedAfterChild = true
	ctx.mu.Unlock()

	return ctx.ExecResults(), nil
}

// runExecRetryLoop implements §4.5 step 5-6: up to policy.numTries
// attempts of the user exec, with preDuringTry/postDuringTry hooks
// firing around every attempt including the one that succeeds (§9 open
// question 3), and a Clock delay between failed attempts.
func (h *Handle) runExecRetryLoop(ctx *Context, bundle Bundle, policy retryPolicy, trace string) error {
	hooks := h.tmpl.hooks

	ctx.mu.Lock()
	ctx.phases.ExecFunctionExecuted = true
	ctx.opResults = nil
	ctx.mu.Unlock()

	if h.tmpl.execFn == nil {
		// No user exec: treat as a trivially succeeding attempt so the
		// phase sequence (and hooks around it) still run.
		ctx.mu.Lock()
		ctx.phases.ExecFunctionSucceeded = true
		ctx.mu.Unlock()
	} else {
		succeeded := false
		for attempt := uint(1); attempt <= policy.numTries; attempt++ {
			ctx.mu.Lock()
			ctx.phases.ExecFunctionAttempt = attempt
			params := ctx.params
			ctx.mu.Unlock()

			if err := h.fireHookPair(ctx, bundle, false, hooks.preDuringTry, hooks.preDuringTryExecOnly); err != nil {
				return err
			}

			value, execErr := h.tmpl.execFn(bundle, params, ctx, h)
			ctx.mu.Lock()
			if execErr == nil {
				ctx.opResults = append(ctx.opResults, valueOutcome(value))
				ctx.phases.ExecFunctionSucceeded = true
			} else {
				ctx.opResults = append(ctx.opResults, errOutcome(execErr))
			}
			ctx.mu.Unlock()

			if execErr != nil {
				bundle.Logger.Infow("optree: exec attempt failed", "execID", h.execID, "trace", trace, "attempt", attempt, "error", execErr)
			}

			if postErr := h.fireHookPair(ctx, bundle, false, hooks.postDuringTry, hooks.postDuringTryExecOnly); postErr != nil {
				return postErr
			}

			if execErr == nil {
				succeeded = true
				break
			}
			if !retry.IsRecoverable(execErr) {
				break
			}
			if attempt < policy.numTries {
				if delayErr := bundle.Clock.Delay(context.Background(), policy.retryInterval); delayErr != nil {
					ctx.mu.Lock()
					ctx.opResults = append(ctx.opResults, errOutcome(delayErr))
					ctx.mu.Unlock()
					break
				}
			}
		}

		ctx.mu.Lock()
		opResults := make([]Outcome, len(ctx.opResults))
		copy(opResults, ctx.opResults)
		ctx.execResults = append(ctx.execResults, opResults...)
		ctx.mu.Unlock()

		if !succeeded {
			return fmt.Errorf("exec %q: user exec did not succeed within %d attempt(s)", h.execID, policy.numTries)
		}
		return nil
	}

	ctx.mu.Lock()
	opResults := make([]Outcome, len(ctx.opResults))
	copy(opResults, ctx.opResults)
	ctx.execResults = append(ctx.execResults, opResults...)
	ctx.mu.Unlock()
	return nil
}

// abortExec snapshots execResults, clears executing, and raises.
func (h *Handle) abortExec(ctx *Context) ([]Outcome, error) {
	ctx.mu.Lock()
	ctx.executing = false
	results := make([]Outcome, len(ctx.execResults))
	copy(results, ctx.execResults)
	ctx.mu.Unlock()

	return results, newResultsError(results)
}

func (h *Handle) appendAll(ctx *Context, outcomes []Outcome, isUndo bool) {
	ctx.mu.Lock()
	if isUndo {
		ctx.undoResults = append(ctx.undoResults, outcomes...)
	} else {
		ctx.execResults = append(ctx.execResults, outcomes...)
	}
	ctx.mu.Unlock()
}

func (h *Handle) appendOutcome(ctx *Context, o Outcome, isUndo bool) {
	h.appendAll(ctx, []Outcome{o}, isUndo)
}

// fireHookPair invokes the non-nil hooks in order, appending any
// returned value/error to the walk's result sequence, then checks for
// a staged pendingDuringChild (§4.7: "after each hook and between
// phases"). A hook that returns a *ResultsError (the parallel
// composite's fan-out hooks do) has already merged its own results
// into this walk's sequence itself, so it is propagated without a
// second, redundant append.
func (h *Handle) fireHookPair(ctx *Context, bundle Bundle, isUndo bool, fns ...untypedHookFunc) error {
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		val, err := fn(bundle, ctx.Params(), ctx, h)
		if _, alreadyMerged := err.(*ResultsError); (val != nil || err != nil) && !alreadyMerged {
			h.appendOutcome(ctx, Outcome{Value: val, Err: err}, isUndo)
		}
		if err != nil {
			return err
		}
	}
	return h.checkGraft(ctx, bundle, isUndo)
}

// checkGraft drains a staged pendingDuringChild, if any, per §4.5 step D.
func (h *Handle) checkGraft(ctx *Context, bundle Bundle, isUndo bool) error {
	ctx.mu.Lock()
	pending := ctx.pendingDuringChild
	ctx.mu.Unlock()
	if pending == nil {
		return nil
	}
	return h.graftPending(ctx, bundle, pending, isUndo)
}

// graftPending executes the staged child, files it into the slot
// dictated by the current phase, and propagates its outcome. The
// pending slot is cleared before the child runs, never only after
// success (§9 open question 2), so a repeated exec cannot re-run it.
func (h *Handle) graftPending(ctx *Context, bundle Bundle, pending *Handle, isUndo bool) error {
	ctx.mu.Lock()
	ctx.pendingDuringChild = nil
	phases := ctx.phases
	ctx.mu.Unlock()

	var results []Outcome
	var err error
	if isUndo {
		results, err = pending.Undo()
	} else {
		results, err = pending.Exec()
	}

	var slot slotKey
	var before bool
	switch {
	case phases.CompletedExecFunction:
		slot = afterSlot
		before = !phases.AfterChildSucceeded
	case phases.CompletedBeforeChild && !phases.CompletedExecFunction:
		slot = duringSlot
		before = !phases.ExecFunctionSucceeded
	default:
		slot = beforeSlot
		before = !phases.BeforeChildSucceeded
	}

	ctx.mu.Lock()
	g := ctx.slot(slot)
	if before {
		g.beforePosition = append(g.beforePosition, pending)
	} else {
		g.afterPosition = append(g.afterPosition, pending)
	}
	ctx.mu.Unlock()

	h.appendAll(ctx, results, isUndo)
	return err
}
