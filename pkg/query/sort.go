package query

import (
	"bytes"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// SortKey is one comparator in a multi-key sort, per spec.md §4.8:
// either an indexed field's stored bytes (resolved via val_stored, the
// same bytes pkg/pipeline wrote) or a caller-computed value looked up by
// document ID.
type SortKey struct {
	Field      uint8
	Descending bool
	// Computed, when non-nil, supplies the sort value directly instead of
	// reading val_stored — for derived sort keys the ORM layer doesn't
	// persist as a plain indexed field (e.g. a thread's most-recent
	// message date).
	Computed func(types.DocumentID) []byte
}

// Sort orders candidates (a bitmap of document IDs) by keys, breaking
// ties on ascending document_id for a stable, deterministic order, per
// spec.md §4.8.
func Sort(r store.Reader, account types.AccountID, collection types.Collection, candidates *roaring.Bitmap, keys []SortKey) ([]types.DocumentID, error) {
	ids := make([]types.DocumentID, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		ids = append(ids, types.DocumentID(it.Next()))
	}

	type resolved struct {
		id     types.DocumentID
		values [][]byte
	}
	rows := make([]resolved, len(ids))
	for i, id := range ids {
		values := make([][]byte, len(keys))
		for k, key := range keys {
			v, err := resolveSortValue(r, account, collection, id, key)
			if err != nil {
				return nil, err
			}
			values[k] = v
		}
		rows[i] = resolved{id: id, values: values}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, key := range keys {
			cmp := bytes.Compare(rows[i].values[k], rows[j].values[k])
			if cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return rows[i].id < rows[j].id
	})

	out := make([]types.DocumentID, len(rows))
	for i, row := range rows {
		out[i] = row.id
	}
	return out, nil
}

func resolveSortValue(r store.Reader, account types.AccountID, collection types.Collection, id types.DocumentID, key SortKey) ([]byte, error) {
	if key.Computed != nil {
		return key.Computed(id), nil
	}
	data, _, err := r.Get(store.FamilyValues, store.ValStoredKey(account, collection, id, key.Field))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Page applies JMAP-style position/anchor/limit pagination to an
// already-sorted document list. position is a 0-based offset used when
// anchor is nil; when anchor is non-nil, the window starts anchorOffset
// positions relative to the anchor's index in sorted (which must be
// found, or KindInvalidArgs is returned — RFC 8620 §5.5's "anchorNotFound").
// A zero limit means unlimited.
func Page(sorted []types.DocumentID, position int, anchor *types.DocumentID, anchorOffset int, limit int) ([]types.DocumentID, int, bool, error) {
	start := position
	if anchor != nil {
		idx := indexOf(sorted, *anchor)
		if idx < 0 {
			return nil, 0, false, jmaperr.New(jmaperr.KindInvalidArgs, "anchor document not found in the result set")
		}
		start = idx + anchorOffset
	}
	if start < 0 {
		start = 0
	}
	if start > len(sorted) {
		start = len(sorted)
	}

	end := len(sorted)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	hasMore := end < len(sorted)
	return sorted[start:end], start, hasMore, nil
}

func indexOf(ids []types.DocumentID, target types.DocumentID) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}
