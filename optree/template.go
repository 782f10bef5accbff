package optree

import (
	"fmt"
	"sync"
)

// untypedFunc is the type-erased storage form of a user exec or undo
// function, mirroring the teacher's
// OperationHandler[IN,OUT,DEP] + AsUntyped pattern.
type untypedFunc func(b Bundle, params any, ctx *Context, h *Handle) (any, error)

// ExecFunc is the user's reversible action. UndoFunc has the same shape
// and is invoked to reverse it.
type ExecFunc[IN, OUT any] func(b Bundle, params IN, ctx *Context, h *Handle) (OUT, error)

// UndoFunc reverses what ExecFunc did.
type UndoFunc[IN, OUT any] func(b Bundle, params IN, ctx *Context, h *Handle) (OUT, error)

// Template is the immutable operation definition shared by every Handle
// created from it: the user's exec/undo functions, the hook catalog,
// the injected Bundle, and the Context store (history) keyed by
// execution id.
type Template struct {
	def     Definition
	bundle  Bundle
	execFn  untypedFunc
	undoFn  untypedFunc
	hooks   hookSet

	mu      sync.Mutex
	history map[string]*Context
}

// NewOperation builds a Template from typed exec/undo functions and a
// typed hook record, erasing IN/OUT at construction so the resulting
// Template can sit anywhere in a tree alongside templates of other
// types — the same erasure the teacher uses for OperationRegistry.
func NewOperation[IN, OUT any](
	bundle Bundle,
	def Definition,
	exec ExecFunc[IN, OUT],
	undo UndoFunc[IN, OUT],
	hooks Hooks[IN, OUT],
) *Template {
	t := &Template{
		def:     def,
		bundle:  bundle.withDefaults(),
		hooks:   hooks.asUntyped(),
		history: make(map[string]*Context),
	}
	if exec != nil {
		t.execFn = func(b Bundle, params any, ctx *Context, h *Handle) (any, error) {
			in, _ := params.(IN)
			return exec(b, in, ctx, h)
		}
	}
	if undo != nil {
		t.undoFn = func(b Bundle, params any, ctx *Context, h *Handle) (any, error) {
			in, _ := params.(IN)
			return undo(b, in, ctx, h)
		}
	}
	return t
}

// Definition returns the template's identity.
func (t *Template) Definition() Definition {
	return t.def
}

// Create allocates a fresh Context keyed by a newly minted execution id,
// stores params, and returns a Handle bound to it.
func (t *Template) Create(params any) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.bundle.IDs.NewID()
	t.history[id] = newContext(id, params, t.bundle)

	return &Handle{tmpl: t, execID: id}
}

// Get returns a Handle for any existing execution id in the template's
// history. Fails with ErrNotFound if the id is unknown.
func (t *Template) Get(execID string) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.history[execID]; !ok {
		return nil, fmt.Errorf("get %q: %w", execID, ErrNotFound)
	}
	return &Handle{tmpl: t, execID: execID}, nil
}

// GetContext returns the raw Context for execID. Fails with ErrNotFound
// if the id is unknown.
func (t *Template) GetContext(execID string) (*Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, ok := t.history[execID]
	if !ok {
		return nil, fmt.Errorf("getContext %q: %w", execID, ErrNotFound)
	}
	return ctx, nil
}

func (t *Template) context(execID string) (*Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, ok := t.history[execID]
	if !ok {
		return nil, fmt.Errorf("execID %q: %w", execID, ErrNotFound)
	}
	return ctx, nil
}
