package optree

// untypedHookFunc is the type-erased shape every hook is stored as on a
// Template, mirroring the teacher's AsUntyped conversion for operation
// handlers. A non-nil returned value is appended to execResults/
// undoResults (§4.7); a non-nil error aborts the current phase exactly
// like a failing exec/undo.
type untypedHookFunc func(b Bundle, params any, ctx *Context, h *Handle) (any, error)

// HookFunc is the typed hook signature a caller writes against. params
// is the Context's params, already asserted back to IN.
type HookFunc[IN, OUT any] func(b Bundle, params IN, ctx *Context, h *Handle) (any, error)

// Hooks is the full 24-point lifecycle catalog for one Template. Every
// field is optional. Naming follows spec §4.7's three dimensions: slot
// (Before/During/DuringTry/After), position (Pre/Post), specialization
// (Hook fires on both walks, ExecOnlyHook fires only during Exec,
// UndoOnlyHook only during Undo). DuringTry hooks fire inside the exec
// retry loop only; undo's retry loop has no Try hooks, per §4.6 step 7.
type Hooks[IN, OUT any] struct {
	PreBeforeHook         HookFunc[IN, OUT]
	PreBeforeExecOnlyHook HookFunc[IN, OUT]
	PreBeforeUndoOnlyHook HookFunc[IN, OUT]

	PostBeforeHook         HookFunc[IN, OUT]
	PostBeforeExecOnlyHook HookFunc[IN, OUT]
	PostBeforeUndoOnlyHook HookFunc[IN, OUT]

	PreDuringHook         HookFunc[IN, OUT]
	PreDuringExecOnlyHook HookFunc[IN, OUT]
	PreDuringUndoOnlyHook HookFunc[IN, OUT]

	PostDuringHook         HookFunc[IN, OUT]
	PostDuringExecOnlyHook HookFunc[IN, OUT]
	PostDuringUndoOnlyHook HookFunc[IN, OUT]

	PreDuringTryHook         HookFunc[IN, OUT]
	PreDuringTryExecOnlyHook HookFunc[IN, OUT]
	PreDuringTryUndoOnlyHook HookFunc[IN, OUT]

	PostDuringTryHook         HookFunc[IN, OUT]
	PostDuringTryExecOnlyHook HookFunc[IN, OUT]
	PostDuringTryUndoOnlyHook HookFunc[IN, OUT]

	PreAfterHook         HookFunc[IN, OUT]
	PreAfterExecOnlyHook HookFunc[IN, OUT]
	PreAfterUndoOnlyHook HookFunc[IN, OUT]

	PostAfterHook         HookFunc[IN, OUT]
	PostAfterExecOnlyHook HookFunc[IN, OUT]
	PostAfterUndoOnlyHook HookFunc[IN, OUT]
}

// hookSet is the type-erased storage form held by a Template.
type hookSet struct {
	preBefore, preBeforeExecOnly, preBeforeUndoOnly       untypedHookFunc
	postBefore, postBeforeExecOnly, postBeforeUndoOnly    untypedHookFunc
	preDuring, preDuringExecOnly, preDuringUndoOnly       untypedHookFunc
	postDuring, postDuringExecOnly, postDuringUndoOnly    untypedHookFunc
	preDuringTry, preDuringTryExecOnly, preDuringTryUndoOnly   untypedHookFunc
	postDuringTry, postDuringTryExecOnly, postDuringTryUndoOnly untypedHookFunc
	preAfter, preAfterExecOnly, preAfterUndoOnly          untypedHookFunc
	postAfter, postAfterExecOnly, postAfterUndoOnly       untypedHookFunc
}

func wrapHook[IN, OUT any](f HookFunc[IN, OUT]) untypedHookFunc {
	if f == nil {
		return nil
	}
	return func(b Bundle, params any, ctx *Context, h *Handle) (any, error) {
		in, _ := params.(IN)
		return f(b, in, ctx, h)
	}
}

func (hs Hooks[IN, OUT]) asUntyped() hookSet {
	return hookSet{
		preBefore:         wrapHook(hs.PreBeforeHook),
		preBeforeExecOnly: wrapHook(hs.PreBeforeExecOnlyHook),
		preBeforeUndoOnly: wrapHook(hs.PreBeforeUndoOnlyHook),

		postBefore:         wrapHook(hs.PostBeforeHook),
		postBeforeExecOnly: wrapHook(hs.PostBeforeExecOnlyHook),
		postBeforeUndoOnly: wrapHook(hs.PostBeforeUndoOnlyHook),

		preDuring:         wrapHook(hs.PreDuringHook),
		preDuringExecOnly: wrapHook(hs.PreDuringExecOnlyHook),
		preDuringUndoOnly: wrapHook(hs.PreDuringUndoOnlyHook),

		postDuring:         wrapHook(hs.PostDuringHook),
		postDuringExecOnly: wrapHook(hs.PostDuringExecOnlyHook),
		postDuringUndoOnly: wrapHook(hs.PostDuringUndoOnlyHook),

		preDuringTry:         wrapHook(hs.PreDuringTryHook),
		preDuringTryExecOnly: wrapHook(hs.PreDuringTryExecOnlyHook),
		preDuringTryUndoOnly: wrapHook(hs.PreDuringTryUndoOnlyHook),

		postDuringTry:         wrapHook(hs.PostDuringTryHook),
		postDuringTryExecOnly: wrapHook(hs.PostDuringTryExecOnlyHook),
		postDuringTryUndoOnly: wrapHook(hs.PostDuringTryUndoOnlyHook),

		preAfter:         wrapHook(hs.PreAfterHook),
		preAfterExecOnly: wrapHook(hs.PreAfterExecOnlyHook),
		preAfterUndoOnly: wrapHook(hs.PreAfterUndoOnlyHook),

		postAfter:         wrapHook(hs.PostAfterHook),
		postAfterExecOnly: wrapHook(hs.PostAfterExecOnlyHook),
		postAfterUndoOnly: wrapHook(hs.PostAfterUndoOnlyHook),
	}
}
