package query

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// Request is the full input to a query call: the filter tree, sort keys,
// and JMAP-style pagination parameters, per spec.md §4.8 and §6's
// query/queryChanges method surface.
type Request struct {
	Account         types.AccountID
	Collection      types.Collection
	DefaultLanguage string
	Filter          Filter
	Sort            []SortKey
	Position        int
	Anchor          *types.DocumentID
	AnchorOffset    int
	Limit           int

	// ACLGrant, when non-nil, restricts the candidate set to documents
	// the caller's token actually grants access to, per spec.md §4.8's
	// ACL-filtering rule. nil means the account is not shared (or the
	// caller already owns it outright) and every live document is a
	// candidate.
	ACLGrant *roaring.Bitmap
}

// Result is a resolved, paginated, sorted query result.
type Result struct {
	IDs           []types.DocumentID
	Position      int
	Total         int
	HasMoreResult bool
}

// Run evaluates req's filter, applies ACL masking, sorts, and paginates,
// returning the requested window. The candidate bitmap is evaluated
// fresh on every call (no cross-call caching): spec.md §4.8 does not ask
// for incremental query maintenance, only queryChanges's since-based
// diffing (left to pkg/jmapmethod, which calls pkg/changelog directly).
func Run(r store.Reader, req Request) (Result, error) {
	candidates, err := Evaluate(r, req.Account, req.Collection, req.DefaultLanguage, req.Filter)
	if err != nil {
		return Result{}, err
	}
	if req.ACLGrant != nil {
		candidates = roaring.And(candidates, req.ACLGrant)
	}

	sorted, err := Sort(r, req.Account, req.Collection, candidates, req.Sort)
	if err != nil {
		return Result{}, err
	}

	window, start, hasMore, err := Page(sorted, req.Position, req.Anchor, req.AnchorOffset, req.Limit)
	if err != nil {
		return Result{}, err
	}

	return Result{
		IDs:           window,
		Position:      start,
		Total:         len(sorted),
		HasMoreResult: hasMore,
	}, nil
}
