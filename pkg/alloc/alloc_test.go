package alloc

import (
	"testing"

	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

func TestAllocateSmallestFree(t *testing.T) {
	e, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	a, err := New(e, 16)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	account, col := types.AccountID(1), types.CollectionMail

	id, err := a.Allocate(account, col)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected first id 0, got %d", id)
	}

	id2, err := a.Allocate(account, col)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if id2 != 1 {
		t.Fatalf("expected second id 1, got %d", id2)
	}
}

func TestReleaseReturnsIDToPool(t *testing.T) {
	e, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()
	a, _ := New(e, 16)
	account, col := types.AccountID(1), types.CollectionMail

	id, _ := a.Allocate(account, col)
	a.Release(account, col, id)

	again, err := a.Allocate(account, col)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if again != id {
		t.Fatalf("expected released id %d to be reused, got %d", id, again)
	}
}

func TestAllocateSkipsCommittedIDs(t *testing.T) {
	e, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()
	account, col := types.AccountID(2), types.CollectionMailbox

	if err := e.Update(func(w store.Writer) error {
		return w.MergeBitmap(store.FamilyBitmaps, store.BMUsedKey(account, col), store.BitmapDelta{
			{ID: 0, Set: true}, {ID: 1, Set: true},
		})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a, _ := New(e, 16)
	id, err := a.Allocate(account, col)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if id != 2 {
		t.Fatalf("expected id 2, got %d", id)
	}
}
