package query

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/jmapstore/core/pkg/bitmap"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// frame is one level of the explicit evaluation stack: an Operator node
// being folded, its combinator, how many children have been folded so
// far, and the running accumulator.
type frame struct {
	op          Op
	children    []Filter
	nextChild   int
	accumulator *roaring.Bitmap
}

// Evaluate resolves filter into the bitmap of matching document IDs,
// using an explicit stack rather than recursion, per spec.md §4.8. A
// FilterNone evaluates to every live document.
func Evaluate(r store.Reader, account types.AccountID, collection types.Collection, defaultLang string, filter Filter) (*roaring.Bitmap, error) {
	switch filter.Kind {
	case FilterNone:
		return bitmap.Live(r, account, collection)
	case FilterDocumentSet:
		live, err := bitmap.Live(r, account, collection)
		if err != nil {
			return nil, err
		}
		if filter.DocumentSet == nil {
			return roaring.New(), nil
		}
		return roaring.And(filter.DocumentSet, live), nil
	case FilterCondition:
		return evalLeaf(r, account, collection, defaultLang, filter.Condition)
	case FilterOperator:
		return evalOperator(r, account, collection, defaultLang, filter)
	default:
		return roaring.New(), nil
	}
}

// evalOperator walks root's subtree with an explicit stack of frames
// instead of recursing, per spec.md §4.8. Each frame accumulates its
// children's bitmaps via its own combinator; when a frame is exhausted
// (or, for AND, its accumulator has gone empty — the short-circuit) it
// is finalized and folded into its parent frame.
func evalOperator(r store.Reader, account types.AccountID, collection types.Collection, defaultLang string, root Filter) (*roaring.Bitmap, error) {
	live, err := bitmap.Live(r, account, collection)
	if err != nil {
		return nil, err
	}

	stack := []*frame{newFrame(root, live)}
	var result *roaring.Bitmap

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		done := top.nextChild >= len(top.children)
		shortCircuit := top.op == OpAnd && top.accumulator.IsEmpty()
		if done || shortCircuit {
			finalized := finalizeFrame(top, live)
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				result = finalized
				break
			}
			parent := stack[len(stack)-1]
			parent.accumulator = combine(parent.op, parent.accumulator, finalized)
			continue
		}

		child := top.children[top.nextChild]
		top.nextChild++

		if child.Kind == FilterOperator {
			stack = append(stack, newFrame(child, live))
			continue
		}
		bm, err := Evaluate(r, account, collection, defaultLang, child)
		if err != nil {
			return nil, err
		}
		top.accumulator = combine(top.op, top.accumulator, bm)
	}

	if result == nil {
		result = roaring.New()
	}
	return result, nil
}

func newFrame(f Filter, live *roaring.Bitmap) *frame {
	fr := &frame{op: f.Op, children: f.Children}
	if f.Op == OpAnd {
		fr.accumulator = live.Clone()
	} else {
		fr.accumulator = roaring.New()
	}
	return fr
}

// combine folds a child's bitmap into acc according to op. NOT folds its
// children by union first (finalizeFrame then subtracts that union from
// the live set), so Operator{NOT, [a, b]} means "live minus (a or b)".
func combine(op Op, acc, child *roaring.Bitmap) *roaring.Bitmap {
	switch op {
	case OpAnd:
		return roaring.And(acc, child)
	default: // OpOr, OpNot
		return roaring.Or(acc, child)
	}
}

// finalizeFrame applies NOT's live-set subtraction once every child has
// been folded; AND/OR frames are already in their final shape.
func finalizeFrame(f *frame, live *roaring.Bitmap) *roaring.Bitmap {
	if f.op == OpNot {
		return roaring.AndNot(live, f.accumulator)
	}
	return f.accumulator
}
