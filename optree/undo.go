package optree

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
)

// Undo walks the mirror order described in spec §4.6: it reverses
// exactly the phases whose *Executed flag was set during the matching
// Exec, including undo of any during-children grafted along the way,
// newest-first within each slot.
func (h *Handle) Undo(opts ...ExecOption) ([]Outcome, error) {
	ctx, err := h.tmpl.context(h.execID)
	if err != nil {
		return nil, err
	}

	ctx.mu.Lock()
	if ctx.undoing || ctx.executing {
		ctx.mu.Unlock()
		return nil, fmt.Errorf("undo %q: %w", h.execID, ErrConflict)
	}
	ctx.undoing = true
	policy := resolvePolicy(ctx, opts)
	ctx.mu.Unlock()

	bundle := h.tmpl.bundle
	def := h.tmpl.Definition()
	trace := newTraceID()
	bundle.Logger.Debugw("optree: undo started",
		"execID", h.execID, "trace", trace,
		"id", def.ID, "version", def.versionString(), "description", def.Description)

	results, err := h.undoPhases(ctx, bundle, policy, trace)

	ctx.mu.Lock()
	ctx.undoing = false
	ctx.mu.Unlock()

	if err != nil {
		bundle.Logger.Warnw("optree: undo failed",
			"execID", h.execID, "trace", trace, "error", err,
			"id", def.ID, "version", def.versionString())
		return results, err
	}
	bundle.Logger.Debugw("optree: undo completed",
		"execID", h.execID, "trace", trace,
		"id", def.ID, "version", def.versionString())
	return results, nil
}

func (h *Handle) undoPhases(ctx *Context, bundle Bundle, policy retryPolicy, trace string) ([]Outcome, error) {
	hooks := h.tmpl.hooks

	// Step 1.
	if err := h.fireHookPair(ctx, bundle, true, hooks.postAfterUndoOnly, hooks.postAfter); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 2: after-positioned grafts of the after-slot composite.
	if err := h.undoSlotPosition(ctx, bundle, afterSlot, true, policy); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 3: after child.
	ctx.mu.Lock()
	executed := ctx.phases.AfterChildExecuted
	after := ctx.afterChild
	ctx.mu.Unlock()
	if executed && after != nil {
		childResults, err := after.Undo(WithNumTries(policy.numTries), WithRetryInterval(policy.retryInterval))
		h.appendAll(ctx, childResults, true)
		if err != nil {
			return h.abortUndo(ctx)
		}
	}

	// Step 4: before-positioned grafts of the after-slot composite.
	if err := h.undoSlotPosition(ctx, bundle, afterSlot, false, policy); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 5.
	if err := h.fireHookPair(ctx, bundle, true,
		hooks.preAfterUndoOnly, hooks.preAfter,
		hooks.postDuringUndoOnly, hooks.postDuring,
	); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 6: after-positioned grafts of the during-slot composite.
	if err := h.undoSlotPosition(ctx, bundle, duringSlot, true, policy); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 7: undo retry loop around the user's undo function.
	if err := h.runUndoRetryLoop(ctx, bundle, policy, trace); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 8: before-positioned grafts of the during-slot composite.
	if err := h.undoSlotPosition(ctx, bundle, duringSlot, false, policy); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 9.
	if err := h.fireHookPair(ctx, bundle, true,
		hooks.preDuringUndoOnly, hooks.preDuring,
		hooks.postBeforeUndoOnly, hooks.postBefore,
	); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 10: after-positioned grafts of the before-slot composite.
	if err := h.undoSlotPosition(ctx, bundle, beforeSlot, true, policy); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 11: before child.
	ctx.mu.Lock()
	executed = ctx.phases.BeforeChildExecuted
	before := ctx.beforeChild
	ctx.mu.Unlock()
	if executed && before != nil {
		childResults, err := before.Undo(WithNumTries(policy.numTries), WithRetryInterval(policy.retryInterval))
		h.appendAll(ctx, childResults, true)
		if err != nil {
			return h.abortUndo(ctx)
		}
	}

	// Step 12: before-positioned grafts of the before-slot composite.
	if err := h.undoSlotPosition(ctx, bundle, beforeSlot, false, policy); err != nil {
		return h.abortUndo(ctx)
	}

	// Step 13.
	if err := h.fireHookPair(ctx, bundle, true, hooks.preBeforeUndoOnly, hooks.preBefore); err != nil {
		return h.abortUndo(ctx)
	}

	return ctx.UndoResults(), nil
}

// undoSlotPosition undoes the after- or before-positioned grafts of one
// slot's composite, newest-first, per the "mirror order" glossary entry.
func (h *Handle) undoSlotPosition(ctx *Context, bundle Bundle, slot slotKey, afterPosition bool, policy retryPolicy) error {
	ctx.mu.Lock()
	g, ok := ctx.duringChildren[slot]
	var grafts []*Handle
	if ok {
		if afterPosition {
			grafts = append([]*Handle(nil), g.afterPosition...)
		} else {
			grafts = append([]*Handle(nil), g.beforePosition...)
		}
	}
	ctx.mu.Unlock()

	for i := len(grafts) - 1; i >= 0; i-- {
		results, err := grafts[i].Undo(WithNumTries(policy.numTries), WithRetryInterval(policy.retryInterval))
		h.appendAll(ctx, results, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// runUndoRetryLoop implements §4.6 step 7: up to policy.numTries
// attempts of the user's undo function, no Try hooks (those exist only
// around the exec retry loop), delay between failed attempts.
func (h *Handle) runUndoRetryLoop(ctx *Context, bundle Bundle, policy retryPolicy, trace string) error {
	ctx.mu.Lock()
	execFunctionExecuted := ctx.phases.ExecFunctionExecuted
	execFunctionSucceeded := ctx.phases.ExecFunctionSucceeded
	ctx.opUndoResults = nil
	ctx.mu.Unlock()

	if !execFunctionExecuted || !execFunctionSucceeded || h.tmpl.undoFn == nil {
		return nil
	}

	succeeded := false
	for attempt := uint(1); attempt <= policy.numTries; attempt++ {
		ctx.mu.Lock()
		ctx.phases.UndoFunctionAttempt = attempt
		params := ctx.params
		ctx.mu.Unlock()

		value, undoErr := h.tmpl.undoFn(bundle, params, ctx, h)
		ctx.mu.Lock()
		if undoErr == nil {
			ctx.opUndoResults = append(ctx.opUndoResults, valueOutcome(value))
			ctx.phases.UndoFunctionSucceeded = true
		} else {
			ctx.opUndoResults = append(ctx.opUndoResults, errOutcome(undoErr))
		}
		ctx.mu.Unlock()

		if undoErr == nil {
			succeeded = true
			break
		}
		bundle.Logger.Infow("optree: undo attempt failed", "execID", h.execID, "trace", trace, "attempt", attempt, "error", undoErr)
		if !retry.IsRecoverable(undoErr) {
			break
		}
		if attempt < policy.numTries {
			if delayErr := bundle.Clock.Delay(context.Background(), policy.retryInterval); delayErr != nil {
				ctx.mu.Lock()
				ctx.opUndoResults = append(ctx.opUndoResults, errOutcome(delayErr))
				ctx.mu.Unlock()
				break
			}
		}
	}

	ctx.mu.Lock()
	opUndoResults := make([]Outcome, len(ctx.opUndoResults))
	copy(opUndoResults, ctx.opUndoResults)
	ctx.undoResults = append(ctx.undoResults, opUndoResults...)
	ctx.mu.Unlock()

	if !succeeded {
		return fmt.Errorf("undo %q: user undo did not succeed within %d attempt(s)", h.execID, policy.numTries)
	}
	return nil
}

func (h *Handle) abortUndo(ctx *Context) ([]Outcome, error) {
	ctx.mu.Lock()
	ctx.undoing = false
	results := make([]Outcome, len(ctx.undoResults))
	copy(results, ctx.undoResults)
	ctx.mu.Unlock()

	return results, newResultsError(results)
}
