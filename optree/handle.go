package optree

import "time"

// Handle is a live, copyable view onto one Context: it exclusively owns
// that context's mutable fields (via the template's history map) and is
// the public API surface described in spec §4.5/§6.
type Handle struct {
	tmpl   *Template
	execID string
}

// GetExecID returns the opaque execution id this handle is bound to.
func (h *Handle) GetExecID() string {
	return h.execID
}

// GetContext returns the raw Context backing this handle.
func (h *Handle) GetContext() (*Context, error) {
	return h.tmpl.context(h.execID)
}

// Reset clears phase flags and result buffers on this context (keeping
// params, beforeChild, afterChild) and recursively resets before- and
// after-children, per §4.4.
func (h *Handle) Reset() error {
	ctx, err := h.tmpl.context(h.execID)
	if err != nil {
		return err
	}

	ctx.mu.Lock()
	before, after := ctx.beforeChild, ctx.afterChild
	ctx.reset()
	ctx.mu.Unlock()

	if before != nil {
		if err := before.Reset(); err != nil {
			return err
		}
	}
	if after != nil {
		if err := after.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// ResetAll walks up parent references to the root and resets from
// there, per §4.4.
func (h *Handle) ResetAll() error {
	root, err := h.root()
	if err != nil {
		return err
	}
	return root.Reset()
}

func (h *Handle) root() (*Handle, error) {
	cur := h
	for {
		ctx, err := cur.tmpl.context(cur.execID)
		if err != nil {
			return nil, err
		}
		ctx.mu.Lock()
		parent := ctx.parent
		ctx.mu.Unlock()
		if parent == nil {
			return cur, nil
		}
		cur = parent
	}
}

// AddParent sets this handle's parent back-reference. The back-reference
// is weak: used only for ExecAll/UndoAll traversal, never ownership.
func (h *Handle) AddParent(parent *Handle) error {
	ctx, err := h.tmpl.context(h.execID)
	if err != nil {
		return err
	}
	ctx.mu.Lock()
	ctx.parent = parent
	ctx.mu.Unlock()
	return nil
}

// ExecAll resolves to the root of this handle's lineage and execs it, so
// a caller holding any node in a tree can drive the whole walk.
func (h *Handle) ExecAll(opts ...ExecOption) ([]Outcome, error) {
	root, err := h.root()
	if err != nil {
		return nil, err
	}
	return root.Exec(opts...)
}

// UndoAll resolves to the root of this handle's lineage and undoes it.
func (h *Handle) UndoAll(opts ...ExecOption) ([]Outcome, error) {
	root, err := h.root()
	if err != nil {
		return nil, err
	}
	return root.Undo(opts...)
}

// ExecOption configures one Exec or Undo call's retry policy, overriding
// the template's Bundle defaults (numTries=1, retryInterval=1s).
type ExecOption func(*retryPolicy)

type retryPolicy struct {
	numTries      uint
	retryInterval time.Duration
}

// WithNumTries overrides the number of attempts for one Exec/Undo call.
func WithNumTries(n uint) ExecOption {
	return func(p *retryPolicy) { p.numTries = n }
}

// WithRetryInterval overrides the delay between attempts for one
// Exec/Undo call.
func WithRetryInterval(d time.Duration) ExecOption {
	return func(p *retryPolicy) { p.retryInterval = d }
}

func resolvePolicy(ctx *Context, opts []ExecOption) retryPolicy {
	p := retryPolicy{numTries: ctx.numTries, retryInterval: ctx.retryInterval}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
