package optree_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscascade/cascade/optree"
	"github.com/opscascade/cascade/optree/optest"
)

// counter is the external state S1/S6 mutate: V starts at 0, Add(n)
// adds n with undo subtracting it.
type counter struct {
	mu sync.Mutex
	v  int
}

func (c *counter) add(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v += n
	return c.v
}

func (c *counter) sub(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v -= n
	return c.v
}

func (c *counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func newAddTemplate(t *testing.T, bundle optree.Bundle, c *counter) *optree.Template {
	t.Helper()
	return optree.NewOperation[int, int](
		bundle,
		optree.Definition{ID: "add"},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			return c.add(n), nil
		},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			return c.sub(n), nil
		},
		optree.Hooks[int, int]{},
	)
}

// S1: sequential chain. Root Add(1), after-chain Add(1), Add(1).
func Test_SequentialChain(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	tmpl := newAddTemplate(t, bundle, c)

	root := tmpl.Create(1)
	second := tmpl.Create(1)
	third := tmpl.Create(1)

	_, err := root.AddChild(second)
	require.NoError(t, err)
	_, err = root.AddChild(third)
	require.NoError(t, err)

	results, err := root.Exec()
	require.NoError(t, err)
	assert.Equal(t, 3, c.value())

	var values []int
	for _, o := range results {
		require.NoError(t, o.Err)
		if v, ok := o.Value.(int); ok {
			values = append(values, v)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, values)
}

// S2: before-rotation. root.addChild(A,true).addChild(B,true) makes
// execution order B, A, root.
func Test_BeforeRotation(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	var order []string
	mkTemplate := func(name string) *optree.Template {
		return optree.NewOperation[int, int](
			bundle,
			optree.Definition{ID: name},
			func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
				order = append(order, name)
				return n, nil
			},
			nil,
			optree.Hooks[int, int]{},
		)
	}

	rootTmpl, aTmpl, bTmpl := mkTemplate("root"), mkTemplate("A"), mkTemplate("B")
	root := rootTmpl.Create(0)
	a := aTmpl.Create(0)
	b := bTmpl.Create(0)

	_, err := root.AddChild(a, optree.Before())
	require.NoError(t, err)
	_, err = root.AddChild(b, optree.Before())
	require.NoError(t, err)

	_, err = root.Exec()
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A", "root"}, order)
}

// S3: retry. Add(n) fails on attempt 0, succeeds on attempt 1 with
// numTries=2: invoked twice, delayed once, final value advances by n.
func Test_Retry(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	var attempts int
	delays := &delayCounter{}
	bundle.Clock = delays

	tmpl := optree.NewOperation[int, int](
		bundle,
		optree.Definition{ID: "flaky-add"},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			attempts++
			if attempts == 1 {
				return 0, errors.New("boom")
			}
			return n, nil
		},
		nil,
		optree.Hooks[int, int]{},
	)

	h := tmpl.Create(5)
	results, err := h.Exec(optree.WithNumTries(2), optree.WithRetryInterval(10*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, delays.count)

	var sawErr, sawValue bool
	for _, o := range results {
		if o.Err != nil {
			sawErr = true
		}
		if v, ok := o.Value.(int); ok && v == 5 {
			sawValue = true
		}
	}
	assert.True(t, sawErr)
	assert.True(t, sawValue)
}

type delayCounter struct {
	count int
}

func (d *delayCounter) Delay(_ context.Context, _ time.Duration) error {
	d.count++
	return nil
}

// S4: dynamic graft. A PreDuringExecOnlyHook calls handle.AddChild then
// handle.Exec, causing the graft to run before the user action
// completes; on undo the graft is undone after the user action's undo.
func Test_DynamicGraft(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	addTmpl := newAddTemplate(t, bundle, c)

	graftTmpl := optree.NewOperation[int, int](
		bundle,
		optree.Definition{ID: "graft-source"},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			return c.add(n), nil
		},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			return c.sub(n), nil
		},
		optree.Hooks[int, int]{
			PreDuringExecOnlyHook: func(_ optree.Bundle, _ int, _ *optree.Context, h *optree.Handle) (any, error) {
				grafted := addTmpl.Create(5)
				if _, err := h.AddChild(grafted); err != nil {
					return nil, err
				}
				if _, err := h.Exec(); err != nil {
					return nil, err
				}
				return nil, nil
			},
		},
	)

	h := graftTmpl.Create(1)
	_, err := h.Exec()
	require.NoError(t, err)
	assert.Equal(t, 6, c.value())

	_, err = h.Undo()
	require.NoError(t, err)
	assert.Equal(t, 0, c.value())
}

// S5: parallel fanout. Add(1), Add(2), Add(3) leave V at 6 with results
// for all three children.
func Test_ParallelFanout(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	addTmpl := newAddTemplate(t, bundle, c)

	children := []*optree.Handle{
		addTmpl.Create(1),
		addTmpl.Create(2),
		addTmpl.Create(3),
	}
	composite := optree.NewParallelComposite(bundle, children)

	results, err := composite.Exec()
	require.NoError(t, err)
	assert.Equal(t, 6, c.value())
	assert.Len(t, results, 3)
}

// If one child fails, results still include outcomes for all three and
// the composite raises.
func Test_ParallelFanout_PartialFailure(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	ok1 := newAddTemplate(t, bundle, c).Create(1)
	ok2 := newAddTemplate(t, bundle, c).Create(3)

	failTmpl := optree.NewOperation[int, int](
		bundle,
		optree.Definition{ID: "always-fails"},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			return 0, errors.New("child failed")
		},
		nil,
		optree.Hooks[int, int]{},
	)
	failing := failTmpl.Create(2)

	composite := optree.NewParallelComposite(bundle, []*optree.Handle{ok1, failing, ok2})
	results, err := composite.Exec()
	require.Error(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 4, c.value())
}

// S6: undo after failure. Chain Add(1),Add(1),Add(1),Add(1) with a
// user limit throwing once V would exceed 3: the fourth add fails and
// exec raises at V=3; undo restores V to 0, undoing only the three that
// succeeded, in reverse, and not the failed fourth.
func Test_UndoAfterFailure(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}

	addTmpl := newAddTemplate(t, bundle, c)
	limitTmpl := optree.NewOperation[int, int](
		bundle,
		optree.Definition{ID: "limited-add"},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			if c.value()+n > 3 {
				return 0, errors.New("limit exceeded")
			}
			return c.add(n), nil
		},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			return c.sub(n), nil
		},
		optree.Hooks[int, int]{},
	)

	root := addTmpl.Create(1)
	second := addTmpl.Create(1)
	third := limitTmpl.Create(1)
	fourth := limitTmpl.Create(1)

	_, err := root.AddChild(second)
	require.NoError(t, err)
	_, err = second.AddChild(third)
	require.NoError(t, err)
	_, err = third.AddChild(fourth)
	require.NoError(t, err)

	_, err = root.Exec()
	require.Error(t, err)
	assert.Equal(t, 3, c.value())

	_, err = root.Undo()
	require.NoError(t, err)
	assert.Equal(t, 0, c.value())
}

// Reset leaves beforeChild/afterChild/params intact and
// empties execResults, undoResults, and all phases flags.
func Test_Reset(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	tmpl := newAddTemplate(t, bundle, c)

	root := tmpl.Create(1)
	child := tmpl.Create(1)
	_, err := root.AddChild(child)
	require.NoError(t, err)

	_, err = root.Exec()
	require.NoError(t, err)

	require.NoError(t, root.Reset())

	ctx, err := root.GetContext()
	require.NoError(t, err)
	assert.Empty(t, ctx.ExecResults())
	assert.Empty(t, ctx.UndoResults())
	assert.Equal(t, optree.Phases{}, ctx.Phases())
	assert.Equal(t, 1, ctx.Params())
	assert.NotNil(t, ctx.AfterChild())
}

// AddChild rejects a nil handle and an unsupported type with BadInput.
func Test_AddChild_BadInput(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	tmpl := newAddTemplate(t, bundle, c)
	root := tmpl.Create(1)

	var nilHandle *optree.Handle
	_, err := root.AddChild(nilHandle)
	require.ErrorIs(t, err, optree.ErrBadInput)

	_, err = root.AddChild("not a handle")
	require.ErrorIs(t, err, optree.ErrBadInput)

	_, err = root.AddChild([]*optree.Handle{})
	require.ErrorIs(t, err, optree.ErrBadInput)
}

// ExecAll/UndoAll called from a non-root handle still drive the whole
// tree: root's action runs/undoes along with the leaf's.
func Test_ExecAllUndoAll_FromNonRoot(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	tmpl := newAddTemplate(t, bundle, c)

	root := tmpl.Create(1)
	leaf := tmpl.Create(1)
	_, err := root.AddChild(leaf)
	require.NoError(t, err)

	results, err := leaf.ExecAll()
	require.NoError(t, err)
	assert.Equal(t, 2, c.value())
	assert.Len(t, results, 2)

	results, err = leaf.UndoAll()
	require.NoError(t, err)
	assert.Equal(t, 0, c.value())
	assert.Len(t, results, 2)
}

// NoParallel collapses an AddChild'd collection into a linear chain
// instead of a parallel composite: children run in slice order, one at
// a time, leaving an observable sequential trace.
func Test_AddChild_NoParallelCollapsesToChain(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	var order []string
	mkTemplate := func(name string) *optree.Template {
		return optree.NewOperation[int, int](
			bundle,
			optree.Definition{ID: name},
			func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
				order = append(order, name)
				return n, nil
			},
			nil,
			optree.Hooks[int, int]{},
		)
	}

	rootTmpl := mkTemplate("root")
	root := rootTmpl.Create(0)
	children := []*optree.Handle{
		mkTemplate("first").Create(0),
		mkTemplate("second").Create(0),
		mkTemplate("third").Create(0),
	}

	_, err := root.AddChild(children, optree.NoParallel())
	require.NoError(t, err)

	_, err = root.Exec()
	require.NoError(t, err)

	assert.Equal(t, []string{"root", "first", "second", "third"}, order)
}

func Test_NotFound(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}
	tmpl := newAddTemplate(t, bundle, c)

	_, err := tmpl.Get("does-not-exist")
	require.ErrorIs(t, err, optree.ErrNotFound)
}

// undo invoked while already undoing (here: re-entrantly, via a hook)
// fails with Conflict.
func Test_UndoConflict(t *testing.T) {
	t.Parallel()

	bundle := optest.NewBundle(t)
	c := &counter{}

	var conflictErr error
	tmpl := optree.NewOperation[int, int](
		bundle,
		optree.Definition{ID: "reentrant-undo"},
		func(_ optree.Bundle, n int, _ *optree.Context, _ *optree.Handle) (int, error) {
			return c.add(n), nil
		},
		func(_ optree.Bundle, n int, _ *optree.Context, h *optree.Handle) (int, error) {
			_, conflictErr = h.Undo()
			return c.sub(n), nil
		},
		optree.Hooks[int, int]{},
	)

	h := tmpl.Create(1)
	_, err := h.Exec()
	require.NoError(t, err)

	_, err = h.Undo()
	require.NoError(t, err)
	require.ErrorIs(t, conflictErr, optree.ErrConflict)
}
