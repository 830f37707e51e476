package query

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

func openTestEngine(t *testing.T) *store.BoltEngine {
	t.Helper()
	e, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

const (
	fieldRole uint8 = iota
	fieldSortOrder
)

func seedMailboxes(t *testing.T, e *store.BoltEngine, account types.AccountID) {
	t.Helper()
	if err := e.Update(func(w store.Writer) error {
		col := types.CollectionMailbox
		for _, id := range []uint32{1, 2, 3, 4} {
			if err := w.MergeBitmap(store.FamilyBitmaps, store.BMUsedKey(account, col), store.BitmapDelta{{ID: id, Set: true}}); err != nil {
				return err
			}
		}
		// Documents 1 and 3 are tagged "inbox"-like role.
		if err := w.MergeBitmap(store.FamilyBitmaps, store.BMTagKey(account, col, fieldRole, types.TagText("inbox")),
			store.BitmapDelta{{ID: 1, Set: true}, {ID: 3, Set: true}}); err != nil {
			return err
		}
		// sortOrder values, stored + indexed, descending document order on purpose.
		sortOrders := map[uint32]int32{1: 30, 2: 10, 3: 20, 4: 10}
		for id, order := range sortOrders {
			val := beInt32(order)
			if err := w.Put(store.FamilyValues, store.ValStoredKey(account, col, types.DocumentID(id), fieldSortOrder), val); err != nil {
				return err
			}
			if err := w.Put(store.FamilyIndexes, store.IdxKey(account, col, fieldSortOrder, val, types.DocumentID(id)), nil); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func beInt32(v int32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func TestEvaluateConditionMatchesTag(t *testing.T) {
	e := openTestEngine(t)
	account := types.AccountID(1)
	seedMailboxes(t, e, account)

	filter := Filter{Kind: FilterCondition, Condition: Condition{Kind: ConditionTag, Field: fieldRole, Tag: types.TagText("inbox")}}
	var bm *roaring.Bitmap
	if err := e.View(func(r store.Reader) error {
		var err error
		bm, err = Evaluate(r, account, types.CollectionMailbox, "en", filter)
		return err
	}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if bm.GetCardinality() != 2 || !bm.Contains(1) || !bm.Contains(3) {
		t.Fatalf("expected documents 1 and 3, got %v", bm.ToArray())
	}
}

func TestEvaluateAndShortCircuits(t *testing.T) {
	e := openTestEngine(t)
	account := types.AccountID(1)
	seedMailboxes(t, e, account)

	filter := Filter{
		Kind: FilterOperator,
		Op:   OpAnd,
		Children: []Filter{
			{Kind: FilterCondition, Condition: Condition{Kind: ConditionTag, Field: fieldRole, Tag: types.TagText("inbox")}},
			{Kind: FilterCondition, Condition: Condition{Kind: ConditionTag, Field: fieldRole, Tag: types.TagText("nonexistent")}},
		},
	}
	var bm *roaring.Bitmap
	if err := e.View(func(r store.Reader) error {
		var err error
		bm, err = Evaluate(r, account, types.CollectionMailbox, "en", filter)
		return err
	}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !bm.IsEmpty() {
		t.Fatalf("expected empty intersection, got %v", bm.ToArray())
	}
}

func TestEvaluateNotSubtractsFromLive(t *testing.T) {
	e := openTestEngine(t)
	account := types.AccountID(1)
	seedMailboxes(t, e, account)

	filter := Filter{
		Kind: FilterOperator,
		Op:   OpNot,
		Children: []Filter{
			{Kind: FilterCondition, Condition: Condition{Kind: ConditionTag, Field: fieldRole, Tag: types.TagText("inbox")}},
		},
	}
	var bm *roaring.Bitmap
	if err := e.View(func(r store.Reader) error {
		var err error
		bm, err = Evaluate(r, account, types.CollectionMailbox, "en", filter)
		return err
	}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if bm.GetCardinality() != 2 || !bm.Contains(2) || !bm.Contains(4) {
		t.Fatalf("expected documents 2 and 4 (everything but the inbox role), got %v", bm.ToArray())
	}
}

func TestSortStableTieBreakOnDocumentID(t *testing.T) {
	e := openTestEngine(t)
	account := types.AccountID(1)
	seedMailboxes(t, e, account)

	candidates := roaring.New()
	candidates.AddMany([]uint32{1, 2, 3, 4})

	var ids []types.DocumentID
	if err := e.View(func(r store.Reader) error {
		var err error
		ids, err = Sort(r, account, types.CollectionMailbox, candidates, []SortKey{{Field: fieldSortOrder}})
		return err
	}); err != nil {
		t.Fatalf("sort: %v", err)
	}

	// sortOrder: 2->10, 4->10, 3->20, 1->30; ties broken by ascending doc id.
	want := []types.DocumentID{2, 4, 3, 1}
	if len(ids) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(ids))
	}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("position %d: expected %d, got %d (%v)", i, id, ids[i], ids)
		}
	}
}

func TestPagePositionAndLimit(t *testing.T) {
	ids := []types.DocumentID{2, 4, 3, 1}
	window, start, hasMore, err := Page(ids, 1, nil, 0, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if start != 1 || !hasMore {
		t.Fatalf("expected start=1 hasMore=true, got start=%d hasMore=%v", start, hasMore)
	}
	if len(window) != 2 || window[0] != 4 || window[1] != 3 {
		t.Fatalf("unexpected window: %v", window)
	}
}

func TestPageAnchorNotFoundErrors(t *testing.T) {
	ids := []types.DocumentID{2, 4, 3, 1}
	missing := types.DocumentID(99)
	if _, _, _, err := Page(ids, 0, &missing, 0, 0); err == nil {
		t.Fatal("expected an error for an anchor not present in the result set")
	}
}

func TestRunAppliesACLMask(t *testing.T) {
	e := openTestEngine(t)
	account := types.AccountID(1)
	seedMailboxes(t, e, account)

	grant := roaring.New()
	grant.Add(1) // caller only has access to document 1

	req := Request{
		Account:    account,
		Collection: types.CollectionMailbox,
		Filter:     None(),
		Sort:       []SortKey{{Field: fieldSortOrder}},
		ACLGrant:   grant,
	}
	var result Result
	if err := e.View(func(r store.Reader) error {
		var err error
		result, err = Run(r, req)
		return err
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.IDs) != 1 || result.IDs[0] != 1 {
		t.Fatalf("expected ACL to mask the result down to document 1, got %v", result.IDs)
	}
}
