package changelog

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

func appendEntries(t *testing.T, e *store.BoltEngine, account types.AccountID, col types.Collection, entries ...ChangeEntry) {
	t.Helper()
	l := New()
	if err := e.Update(func(w store.Writer) error {
		for _, entry := range entries {
			if err := l.Append(w, account, col, entry); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestInitialResolvesToAllThenExact(t *testing.T) {
	e := openTestEngine(t)
	account, col := types.AccountID(1), types.CollectionMailbox
	appendEntries(t, e, account, col,
		ChangeEntry{ChangeID: 1, Created: []uint32{1, 2}},
		ChangeEntry{ChangeID: 2, Updated: []uint32{1}},
	)

	l := New()
	var resp Response
	if err := e.View(func(r store.Reader) error {
		var err error
		resp, err = l.Changes(r, account, col, types.Initial, 0)
		return err
	}); err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(resp.Created) != 2 || len(resp.Updated) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.NewState != types.Exact(2) {
		t.Fatalf("expected Exact(2), got %v", resp.NewState)
	}
}

func TestExactSinceUnknownStateErrors(t *testing.T) {
	e := openTestEngine(t)
	account, col := types.AccountID(1), types.CollectionMailbox
	appendEntries(t, e, account, col, ChangeEntry{ChangeID: 5, Created: []uint32{1}})

	l := New()
	err := e.View(func(r store.Reader) error {
		_, err := l.Changes(r, account, col, types.Exact(3), 0)
		return err
	})
	if err == nil {
		t.Fatal("expected error resolving a compacted-away state")
	}
}

func TestMaxChangesTruncationSetsIntermediate(t *testing.T) {
	e := openTestEngine(t)
	account, col := types.AccountID(1), types.CollectionIdentity
	appendEntries(t, e, account, col,
		ChangeEntry{ChangeID: 1, Created: []uint32{1}},
		ChangeEntry{ChangeID: 2, Created: []uint32{2}},
		ChangeEntry{ChangeID: 3, Created: []uint32{3}},
	)

	l := New()
	var resp Response
	if err := e.View(func(r store.Reader) error {
		var err error
		resp, err = l.Changes(r, account, col, types.Initial, 2)
		return err
	}); err != nil {
		t.Fatalf("changes: %v", err)
	}
	if !resp.HasMoreChanges {
		t.Fatal("expected has_more_changes")
	}
	if resp.NewState.Kind != types.StateIntermediate {
		t.Fatalf("expected an Intermediate state, got %v", resp.NewState)
	}
}

func TestHasChildrenChanges(t *testing.T) {
	e := openTestEngine(t)
	account, col := types.AccountID(1), types.CollectionMailbox
	appendEntries(t, e, account, col, ChangeEntry{ChangeID: 1, ChildUpdated: []uint32{7}})

	l := New()
	var resp Response
	if err := e.View(func(r store.Reader) error {
		var err error
		resp, err = l.Changes(r, account, col, types.Initial, 0)
		return err
	}); err != nil {
		t.Fatalf("changes: %v", err)
	}
	if !resp.HasChildrenChanges {
		t.Fatal("expected has_children_changes")
	}
}

func TestCompactionCancelsInsertThenDelete(t *testing.T) {
	e := openTestEngine(t)
	account, col := types.AccountID(1), types.CollectionMailbox
	appendEntries(t, e, account, col,
		ChangeEntry{ChangeID: 1, Created: []uint32{1}},
		ChangeEntry{ChangeID: 2, Destroyed: []uint32{1}},
		ChangeEntry{ChangeID: 3, Created: []uint32{2}},
		ChangeEntry{ChangeID: 4, Created: []uint32{3}},
	)

	if err := Compact(e, account, col, 1); err != nil {
		t.Fatalf("compact: %v", err)
	}

	l := New()
	var resp Response
	if err := e.View(func(r store.Reader) error {
		var err error
		resp, err = l.Changes(r, account, col, types.Initial, 0)
		return err
	}); err != nil {
		t.Fatalf("changes: %v", err)
	}
	for _, id := range resp.Created {
		if id == 1 {
			t.Fatal("expected document 1's insert+delete to cancel out during compaction")
		}
	}
	if len(resp.Created) != 2 {
		t.Fatalf("expected documents 2 and 3 to remain created, got %v", resp.Created)
	}
}

func TestCompactionDropsChildUpdateForDestroyedDocument(t *testing.T) {
	e := openTestEngine(t)
	account, col := types.AccountID(1), types.CollectionMailbox
	appendEntries(t, e, account, col,
		ChangeEntry{ChangeID: 1, ChildUpdated: []uint32{9}},
		ChangeEntry{ChangeID: 2, Destroyed: []uint32{9}},
		ChangeEntry{ChangeID: 3, Created: []uint32{10}},
	)

	if err := Compact(e, account, col, 0); err != nil {
		t.Fatalf("compact: %v", err)
	}

	l := New()
	var resp Response
	if err := e.View(func(r store.Reader) error {
		var err error
		resp, err = l.Changes(r, account, col, types.Initial, 0)
		return err
	}); err != nil {
		t.Fatalf("changes: %v", err)
	}
	for _, id := range resp.Destroyed {
		if id == 9 {
			t.Fatal("expected a child-update-only document destroyed within the window to be dropped, not reported destroyed")
		}
	}
}
