package optree

import "fmt"

// AddChildOption configures one AddChild call.
type AddChildOption func(*addChildOpts)

type addChildOpts struct {
	before     bool
	noParallel bool
}

// Before routes the child into the before-slot instead of the default
// after-slot.
func Before() AddChildOption {
	return func(o *addChildOpts) { o.before = true }
}

// NoParallel, when child is a collection, collapses it into a linear
// chain instead of wrapping it in a parallel composite.
func NoParallel() AddChildOption {
	return func(o *addChildOpts) { o.noParallel = true }
}

// AddChild attaches child (a *Handle or a []*Handle) to this handle, per
// §4.2. If this context is currently executing, the child is staged as
// a pendingDuringChild instead and grafted in by the executor (step D).
// Returns this handle (fluent), per spec's addChild contract.
func (h *Handle) AddChild(child any, opts ...AddChildOption) (*Handle, error) {
	var o addChildOpts
	for _, opt := range opts {
		opt(&o)
	}

	target, err := resolveChild(h.tmpl.bundle, child, o.noParallel)
	if err != nil {
		return nil, err
	}

	ctx, err := h.tmpl.context(h.execID)
	if err != nil {
		return nil, err
	}

	ctx.mu.Lock()
	executing := ctx.executing
	if executing {
		pending := ctx.pendingDuringChild
		ctx.mu.Unlock()

		if pending != nil {
			if _, err := pending.AddChild(target); err != nil {
				return nil, err
			}
			return h, nil
		}

		if err := target.AddParent(h); err != nil {
			return nil, err
		}
		ctx.mu.Lock()
		ctx.pendingDuringChild = target
		ctx.mu.Unlock()
		return h, nil
	}
	ctx.mu.Unlock()

	if err := h.insertChild(target, o.before); err != nil {
		return nil, err
	}
	if err := target.AddParent(h); err != nil {
		return nil, err
	}
	return h, nil
}

// resolveChild normalizes child into a single Handle: a lone *Handle
// passes through; a []*Handle collapses to a linear chain (noParallel)
// or a parallel composite (default). Anything else is BadInput.
func resolveChild(bundle Bundle, child any, noParallel bool) (*Handle, error) {
	switch v := child.(type) {
	case *Handle:
		if v == nil {
			return nil, fmt.Errorf("addChild: nil handle: %w", ErrBadInput)
		}
		return v, nil
	case []*Handle:
		if len(v) == 0 {
			return nil, fmt.Errorf("addChild: empty collection: %w", ErrBadInput)
		}
		if noParallel {
			return chainLinear(v), nil
		}
		return NewParallelComposite(bundle, v), nil
	default:
		return nil, fmt.Errorf("addChild: unsupported child type %T: %w", child, ErrBadInput)
	}
}

// chainLinear collapses a collection into a sequential chain: the first
// element becomes finalChild, the rest are appended as its
// after-descendants in order.
func chainLinear(children []*Handle) *Handle {
	head := children[0]
	tail := head
	for _, c := range children[1:] {
		if _, err := tail.AddChild(c); err != nil {
			// chainLinear only runs immediately after Create, before any
			// exec has started, so insertion into an idle after-slot
			// cannot itself fail with a retryable or user error here.
			continue
		}
		tail = c
	}
	return head
}

// insertChild implements invariant 2's before/after slot insertion,
// outside of the during-graft path.
func (h *Handle) insertChild(child *Handle, before bool) error {
	ctx, err := h.tmpl.context(h.execID)
	if err != nil {
		return err
	}

	if before {
		ctx.mu.Lock()
		existing := ctx.beforeChild
		ctx.mu.Unlock()

		if existing == nil {
			ctx.mu.Lock()
			ctx.beforeChild = child
			ctx.mu.Unlock()
			return nil
		}
		// Left-rotation: new child becomes the root before-child, the
		// previous one becomes its after-child, so the previous child's
		// own action still runs before root's but after the new child's
		// (spec.md §8 S2: AddChild(a, Before()) then AddChild(b, Before())
		// executes B, A, root, not A, B, root).
		if _, err := child.AddChild(existing); err != nil {
			return err
		}
		ctx.mu.Lock()
		ctx.beforeChild = child
		ctx.mu.Unlock()
		return nil
	}

	ctx.mu.Lock()
	existing := ctx.afterChild
	ctx.mu.Unlock()

	if existing == nil {
		ctx.mu.Lock()
		ctx.afterChild = child
		ctx.mu.Unlock()
		return nil
	}
	// Tail-chaining: recurse into the after-slot so the new child
	// becomes the tail of the existing chain.
	_, err = existing.AddChild(child)
	return err
}
