package pipeline

import (
	"testing"

	"github.com/jmapstore/core/pkg/blobstore"
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/fts"
	"github.com/jmapstore/core/pkg/orm"
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

func newTestPipeline(e store.Engine) *Pipeline {
	return New(e, changelog.New(), NewSingleNodeRaftAssigner(1), blobstore.New(e))
}

func TestApplyInsertWritesBitmapStoredAndIndex(t *testing.T) {
	e := openTestEngine(t)
	p := newTestPipeline(e)
	account := types.AccountID(1)
	doc := types.DocumentID(42)

	batch := WriteBatch{
		Account: account,
		Entries: []WriteAction{
			{
				Collection: types.CollectionMailbox,
				DocumentID: doc,
				Kind:       ActionInsert,
				Fields: []orm.UpdateField{
					{Property: orm.MailboxName, Op: orm.OpText, Options: orm.OptStore | orm.OptSort, Text: "Inbox"},
					{Property: orm.MailboxSortOrder, Op: orm.OpInteger, Options: orm.OptStore | orm.OptSort, Integer: 5},
				},
			},
		},
	}
	if err := p.Apply(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := e.View(func(r store.Reader) error {
		bm, err := store.ReadBitmap(r, store.FamilyBitmaps, store.BMUsedKey(account, types.CollectionMailbox))
		if err != nil {
			return err
		}
		if !bm.Contains(uint32(doc)) {
			t.Fatal("expected document in bm_used after insert")
		}

		stored, found, err := r.Get(store.FamilyValues, store.ValStoredKey(account, types.CollectionMailbox, doc, orm.MailboxName))
		if err != nil {
			return err
		}
		if !found || string(stored) != "Inbox" {
			t.Fatalf("expected val_stored to carry the mailbox name, got %q found=%v", stored, found)
		}

		it, err := r.Iterator(store.FamilyIndexes, store.IdxPrefix(account, types.CollectionMailbox, orm.MailboxName), false)
		if err != nil {
			return err
		}
		defer it.Close()
		if !it.Next() {
			t.Fatal("expected an idx entry for the sorted name field")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	var resp changelog.Response
	if err := e.View(func(r store.Reader) error {
		var err error
		resp, err = changelog.New().Changes(r, account, types.CollectionMailbox, types.Initial, 0)
		return err
	}); err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(resp.Created) != 1 || resp.Created[0] != doc {
		t.Fatalf("expected the mailbox to appear as created, got %+v", resp)
	}

	if err := e.View(func(r store.Reader) error {
		it, err := r.Iterator(store.FamilyLogs, store.LogRaftPrefix(), false)
		if err != nil {
			return err
		}
		defer it.Close()
		if !it.Next() {
			t.Fatal("expected a raft log entry recording the batch")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestApplyFullTextFieldIndexesTerms(t *testing.T) {
	e := openTestEngine(t)
	p := newTestPipeline(e)
	account := types.AccountID(1)
	doc := types.DocumentID(7)

	batch := WriteBatch{
		Account:         account,
		DefaultLanguage: "en",
		Entries: []WriteAction{
			{
				Collection: types.CollectionMail,
				DocumentID: doc,
				Kind:       ActionInsert,
				Fields: []orm.UpdateField{
					{Property: orm.EmailSubject, Op: orm.OpText, Options: orm.OptStore | orm.OptFullText, Text: "quarterly invoice attached"},
				},
			},
		},
	}
	if err := p.Apply(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := e.View(func(r store.Reader) error {
		data, found, err := r.Get(store.FamilyValues, store.ValTermIndexKey(account, types.CollectionMail, doc))
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("expected a compressed positional term index")
		}
		idx, err := fts.Decompress(data)
		if err != nil {
			return err
		}
		if len(idx.Fields) != 1 || len(idx.Fields[0].Terms) != 3 {
			t.Fatalf("expected 3 indexed terms, got %+v", idx)
		}

		invoiceTerm := fts.TermID("invoice")
		bm, err := store.ReadBitmap(r, store.FamilyBitmaps, store.BMTermKey(account, types.CollectionMail, orm.EmailSubject, invoiceTerm, true))
		if err != nil {
			return err
		}
		if !bm.Contains(uint32(doc)) {
			t.Fatal("expected the document in the exact-term bitmap for 'invoice'")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestApplyMultiValuedTagReconcilesMembership(t *testing.T) {
	e := openTestEngine(t)
	p := newTestPipeline(e)
	account := types.AccountID(1)
	doc := types.DocumentID(3)
	inboxID, archiveID, sentID := types.DocumentID(10), types.DocumentID(11), types.DocumentID(12)

	insert := WriteBatch{
		Account: account,
		Entries: []WriteAction{
			{
				Collection: types.CollectionMail,
				DocumentID: doc,
				Kind:       ActionInsert,
				Fields: []orm.UpdateField{
					{Property: orm.EmailMailboxIDs, Op: orm.OpTag, Options: orm.OptStore, Tag: types.TagID(inboxID)},
					{Property: orm.EmailMailboxIDs, Op: orm.OpTag, Options: orm.OptStore, Tag: types.TagID(archiveID)},
				},
			},
		},
	}
	if err := p.Apply(insert); err != nil {
		t.Fatalf("apply insert: %v", err)
	}

	checkMembership := func(mailbox types.DocumentID, want bool) {
		t.Helper()
		if err := e.View(func(r store.Reader) error {
			bm, err := store.ReadBitmap(r, store.FamilyBitmaps,
				store.BMTagKey(account, types.CollectionMail, orm.EmailMailboxIDs, types.TagID(mailbox)))
			if err != nil {
				return err
			}
			if bm.Contains(uint32(doc)) != want {
				t.Fatalf("mailbox %d membership = %v, want %v", mailbox, bm.Contains(uint32(doc)), want)
			}
			return nil
		}); err != nil {
			t.Fatalf("view: %v", err)
		}
	}
	checkMembership(inboxID, true)
	checkMembership(archiveID, true)
	checkMembership(sentID, false)

	var stored []types.TagValue
	if err := e.View(func(r store.Reader) error {
		raw, found, err := r.Get(store.FamilyValues, store.ValStoredKey(account, types.CollectionMail, doc, orm.EmailMailboxIDs))
		if err != nil || !found {
			t.Fatalf("expected a stored mailboxIds value, found=%v err=%v", found, err)
		}
		v, err := orm.DecodeValue(raw)
		if err != nil {
			return err
		}
		stored = v.Tags
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored mailbox tags, got %d: %+v", len(stored), stored)
	}

	// An update moving the email out of inbox and into sent should clear
	// inbox's bitmap, keep archive's, and set sent's — not just overwrite
	// the last one touched.
	update := WriteBatch{
		Account: account,
		Entries: []WriteAction{
			{
				Collection: types.CollectionMail,
				DocumentID: doc,
				Kind:       ActionUpdate,
				Fields: []orm.UpdateField{
					{Property: orm.EmailMailboxIDs, Op: orm.OpTag, Options: orm.OptStore, Tag: types.TagID(archiveID)},
					{Property: orm.EmailMailboxIDs, Op: orm.OpTag, Options: orm.OptStore, Tag: types.TagID(sentID)},
				},
			},
		},
	}
	if err := p.Apply(update); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	checkMembership(inboxID, false)
	checkMembership(archiveID, true)
	checkMembership(sentID, true)
}

func TestApplyBlobFieldStoresAndRefcounts(t *testing.T) {
	e := openTestEngine(t)
	p := newTestPipeline(e)
	account := types.AccountID(1)
	doc := types.DocumentID(9)

	batch := WriteBatch{
		Account: account,
		Entries: []WriteAction{
			{
				Collection: types.CollectionMail,
				DocumentID: doc,
				Kind:       ActionInsert,
				Fields: []orm.UpdateField{
					{Property: orm.EmailBodyText, Op: orm.OpBinary, Options: orm.OptStoreAsBlob, Binary: []byte("body content"), BlobIndex: 0},
				},
			},
		},
	}
	if err := p.Apply(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var hash types.BlobHash
	if err := e.View(func(r store.Reader) error {
		refs, err := readBlobRefs(r, account, types.CollectionMail, doc)
		if err != nil {
			return err
		}
		if len(refs) != 1 {
			t.Fatalf("expected 1 blob reference, got %d", len(refs))
		}
		hash = refs[0].Hash
		refcount, err := store.ReadInt(r, store.FamilyValues, store.ValBlobRefKey(hash))
		if err != nil {
			return err
		}
		if refcount != 1 {
			t.Fatalf("expected refcount 1, got %d", refcount)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	// Deleting the document should release the blob reference.
	del := WriteBatch{
		Account: account,
		Entries: []WriteAction{
			{Collection: types.CollectionMail, DocumentID: doc, Kind: ActionDelete},
		},
	}
	if err := p.Apply(del); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if err := e.View(func(r store.Reader) error {
		bm, err := store.ReadBitmap(r, store.FamilyBitmaps, store.BMTombstonedKey(account, types.CollectionMail))
		if err != nil {
			return err
		}
		if !bm.Contains(uint32(doc)) {
			t.Fatal("expected the document in bm_tombstoned after delete")
		}
		refcount, err := store.ReadInt(r, store.FamilyValues, store.ValBlobRefKey(hash))
		if err != nil {
			return err
		}
		if refcount != 0 {
			t.Fatalf("expected refcount 0 after delete, got %d", refcount)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
