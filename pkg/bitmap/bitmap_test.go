package bitmap

import (
	"testing"

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

func TestLiveExcludesTombstoned(t *testing.T) {
	e := openTestEngine(t)
	account := types.AccountID(1)
	col := types.CollectionMail

	if err := e.Update(func(w store.Writer) error {
		if err := w.MergeBitmap(store.FamilyBitmaps, store.BMUsedKey(account, col), store.BitmapDelta{
			{ID: 1, Set: true}, {ID: 2, Set: true}, {ID: 3, Set: true},
		}); err != nil {
			return err
		}
		return w.MergeBitmap(store.FamilyBitmaps, store.BMTombstonedKey(account, col), store.BitmapDelta{
			{ID: 2, Set: true},
		})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := e.View(func(r store.Reader) error {
		live, err := Live(r, account, col)
		if err != nil {
			return err
		}
		if live.GetCardinality() != 2 || !live.Contains(1) || !live.Contains(3) {
			t.Fatalf("unexpected live set: %v", live.ToArray())
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRangeToBitmapComparators(t *testing.T) {
	e := openTestEngine(t)
	account := types.AccountID(1)
	col := types.CollectionMailbox
	field := uint8(5)

	if err := e.Update(func(w store.Writer) error {
		if err := w.MergeBitmap(store.FamilyBitmaps, store.BMUsedKey(account, col), store.BitmapDelta{
			{ID: 10, Set: true}, {ID: 20, Set: true}, {ID: 30, Set: true},
		}); err != nil {
			return err
		}
		for docID, val := range map[uint32]byte{10: 1, 20: 2, 30: 3} {
			k := store.IdxKey(account, col, field, []byte{val}, types.DocumentID(docID))
			if err := w.Put(store.FamilyIndexes, k, nil); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := e.View(func(r store.Reader) error {
		ge, err := RangeToBitmap(r, account, col, field, Ge, []byte{2})
		if err != nil {
			return err
		}
		if ge.GetCardinality() != 2 || !ge.Contains(20) || !ge.Contains(30) {
			t.Fatalf("Ge result wrong: %v", ge.ToArray())
		}
		lt, err := RangeToBitmap(r, account, col, field, Lt, []byte{2})
		if err != nil {
			return err
		}
		if lt.GetCardinality() != 1 || !lt.Contains(10) {
			t.Fatalf("Lt result wrong: %v", lt.ToArray())
		}
		eq, err := RangeToBitmap(r, account, col, field, Eq, []byte{2})
		if err != nil {
			return err
		}
		if eq.GetCardinality() != 1 || !eq.Contains(20) {
			t.Fatalf("Eq result wrong: %v", eq.ToArray())
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
