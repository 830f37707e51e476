package jmapmethod

import (
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/query"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// QueryChangesRequest is the generic input to any Foo/queryChanges call.
// Query's own Position/Anchor/Limit are ignored: queryChanges always
// resorts and re-filters the whole collection, since it has to know every
// result's index to report Added entries correctly.
type QueryChangesRequest struct {
	Query           query.Request
	SinceQueryState types.JMAPState
	MaxChanges      int
	// UpToID, when set, restricts the comparison to the prefix of the
	// result list ending at (and including) this id, per RFC 8620 §5.6 —
	// a client that has only fetched that many results need not be told
	// about changes further down the list.
	UpToID *types.DocumentID
}

// AddedItem is one entry in a QueryChangesResponse's Added list: a
// document that now belongs in the result window, and the index the
// client should insert it at (after first removing any existing
// occurrence), per RFC 8620 §5.6.
type AddedItem struct {
	ID    types.DocumentID
	Index int
}

// QueryChangesResponse is the generic result of a Foo/queryChanges call.
type QueryChangesResponse struct {
	OldQueryState types.JMAPState
	NewQueryState types.JMAPState
	Removed       []types.DocumentID
	Added         []AddedItem
	Total         int
}

// QueryChanges implements the naive (but RFC-8620-compliant) queryChanges
// algorithm: since this engine does not maintain a persistent, incremental
// result-window cache per query (spec.md's Non-goals exclude cross-client
// serializable query state), it re-evaluates the full filter+sort and
// reports every document touched since SinceQueryState as either Removed
// (no longer in the result set) or Added (present, at its current index)
// — a client applying Added-after-removing-existing stays correct even
// though this conservatively reports unmoved documents as Added too.
func QueryChanges(r store.Reader, ctx RequestContext, req QueryChangesRequest) (QueryChangesResponse, error) {
	full, err := query.Run(r, withFullWindow(req.Query))
	if err != nil {
		return QueryChangesResponse{}, err
	}
	results := full.IDs
	if req.UpToID != nil {
		if idx := indexOfID(results, *req.UpToID); idx >= 0 {
			results = results[:idx+1]
		}
	}
	position := make(map[types.DocumentID]int, len(results))
	for i, id := range results {
		position[id] = i
	}

	changes, err := changelog.New().Changes(r, req.Query.Account, req.Query.Collection, req.SinceQueryState, ctx.clampMaxChanges(req.MaxChanges))
	if err != nil {
		return QueryChangesResponse{}, err
	}

	resp := QueryChangesResponse{
		OldQueryState: req.SinceQueryState,
		NewQueryState: changes.NewState,
		Total:         len(results),
	}
	touched := append(append(append([]types.DocumentID{}, changes.Created...), changes.Updated...), changes.Destroyed...)
	seen := map[types.DocumentID]bool{}
	for _, id := range touched {
		if seen[id] {
			continue
		}
		seen[id] = true
		if idx, ok := position[id]; ok {
			resp.Added = append(resp.Added, AddedItem{ID: id, Index: idx})
		} else {
			resp.Removed = append(resp.Removed, id)
		}
	}
	return resp, nil
}

func withFullWindow(req query.Request) query.Request {
	out := req
	out.Position = 0
	out.Anchor = nil
	out.AnchorOffset = 0
	out.Limit = 0
	return out
}

func indexOfID(ids []types.DocumentID, target types.DocumentID) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}
