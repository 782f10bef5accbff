// Package optree implements a command-pattern operation tree: a ternary
// (before -> self -> after) structure of reversible operations that
// execute with bounded retry, accept dynamically-grafted during-children
// while running, and undo in the exact mirror order of what succeeded.
//
// A Template is an immutable operation definition (its exec function,
// undo function, and lifecycle hook catalog). Create allocates a fresh
// Context and returns a Handle bound to it. Handles are assembled into a
// tree with AddChild, then driven with Exec/Undo (single node) or
// ExecAll/UndoAll (root-relative).
//
//	add := optree.NewOperation(bundle, optree.Definition{ID: "add"},
//	    func(b optree.Bundle, n int, ctx *optree.Context, h *optree.Handle) (int, error) {
//	        total += n
//	        return total, nil
//	    },
//	    func(b optree.Bundle, n int, ctx *optree.Context, h *optree.Handle) (int, error) {
//	        total -= n
//	        return total, nil
//	    },
//	    optree.Hooks[int, int]{},
//	)
//	root := add.Create(1)
//	results, err := root.Exec()
package optree
