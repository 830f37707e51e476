package jmapmethod

import (
	"testing"

	"github.com/jmapstore/core/pkg/alloc"
	"github.com/jmapstore/core/pkg/blobstore"
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/orm"
	"github.com/jmapstore/core/pkg/pipeline"
	"github.com/jmapstore/core/pkg/query"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

type harness struct {
	engine *store.BoltEngine
	reg    *orm.Registry
	alloc  *alloc.Allocator
	pipe   *pipeline.Pipeline
}

func newHarness(t *testing.T) harness {
	t.Helper()
	e, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	a, err := alloc.New(e, 16)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	return harness{
		engine: e,
		reg:    orm.NewRegistry(orm.MailboxSchema{}),
		alloc:  a,
		pipe:   pipeline.New(e, changelog.New(), pipeline.NewSingleNodeRaftAssigner(1), blobstore.New(e)),
	}
}

func (h harness) createMailbox(t *testing.T, account types.AccountID, key, name string) types.DocumentID {
	t.Helper()
	resp, err := Set(h.engine, h.reg, h.alloc, h.pipe, DefaultContext(), SetRequest{
		Account:    account,
		Collection: types.CollectionMailbox,
		Create: map[string]func(d *orm.Diff){
			key: func(d *orm.Diff) {
				d.Set(orm.MailboxName, types.Value{Kind: types.KindText, Text: name})
			},
		},
	})
	if err != nil {
		t.Fatalf("set create: %v", err)
	}
	if len(resp.NotCreated) != 0 {
		t.Fatalf("unexpected notCreated: %v", resp.NotCreated)
	}
	id, ok := resp.Created[key]
	if !ok {
		t.Fatalf("expected %q in created", key)
	}
	return id
}

func TestSetCreateThenGet(t *testing.T) {
	h := newHarness(t)
	account := types.AccountID(1)
	id := h.createMailbox(t, account, "a", "Inbox")

	var r getResult
	h.engine.View(func(reader store.Reader) error {
		resp, err := Get(reader, DefaultContext(), GetRequest{Account: account, Collection: types.CollectionMailbox})
		r = getResult{resp, err}
		return nil
	})
	if r.err != nil {
		t.Fatalf("get: %v", r.err)
	}
	if len(r.resp.List) != 1 {
		t.Fatalf("expected 1 document, got %d", len(r.resp.List))
	}
	if r.resp.List[0].ID != id {
		t.Fatalf("expected document id %v, got %v", id, r.resp.List[0].ID)
	}
	if r.resp.List[0].Properties[orm.MailboxName].Text != "Inbox" {
		t.Fatalf("expected name Inbox, got %q", r.resp.List[0].Properties[orm.MailboxName].Text)
	}
	if r.resp.State == types.Initial {
		t.Fatal("expected a non-initial state after a create")
	}
}

type getResult struct {
	resp GetResponse
	err  error
}

func TestSetCreateInvalidDoesNotBlockSibling(t *testing.T) {
	h := newHarness(t)
	account := types.AccountID(1)

	resp, err := Set(h.engine, h.reg, h.alloc, h.pipe, DefaultContext(), SetRequest{
		Account:    account,
		Collection: types.CollectionMailbox,
		Create: map[string]func(d *orm.Diff){
			"good": func(d *orm.Diff) {
				d.Set(orm.MailboxName, types.Value{Kind: types.KindText, Text: "Inbox"})
			},
			"bad": func(d *orm.Diff) {
				// no name set: fails MailboxSchema.Validate's required-name check
			},
		},
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := resp.Created["good"]; !ok {
		t.Fatalf("expected good to be created, got %+v", resp)
	}
	if _, ok := resp.NotCreated["bad"]; !ok {
		t.Fatalf("expected bad to be rejected, got %+v", resp)
	}
}

func TestSetUpdateAndDestroy(t *testing.T) {
	h := newHarness(t)
	account := types.AccountID(1)
	id := h.createMailbox(t, account, "a", "Inbox")

	resp, err := Set(h.engine, h.reg, h.alloc, h.pipe, DefaultContext(), SetRequest{
		Account:    account,
		Collection: types.CollectionMailbox,
		Update: map[types.DocumentID]func(d *orm.Diff){
			id: func(d *orm.Diff) {
				d.Set(orm.MailboxName, types.Value{Kind: types.KindText, Text: "Archive"})
			},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(resp.Updated) != 1 || resp.Updated[0] != id {
		t.Fatalf("expected %v updated, got %+v", id, resp)
	}

	destroyResp, err := Set(h.engine, h.reg, h.alloc, h.pipe, DefaultContext(), SetRequest{
		Account:    account,
		Collection: types.CollectionMailbox,
		Destroy:    []types.DocumentID{id},
	})
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(destroyResp.Destroyed) != 1 {
		t.Fatalf("expected 1 destroyed, got %+v", destroyResp)
	}

	if err := h.engine.View(func(r store.Reader) error {
		_, ok, err := Load(r, account, types.CollectionMailbox, id)
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("expected document to no longer be live after destroy")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSetDestroyNotFound(t *testing.T) {
	h := newHarness(t)
	account := types.AccountID(1)

	resp, err := Set(h.engine, h.reg, h.alloc, h.pipe, DefaultContext(), SetRequest{
		Account:    account,
		Collection: types.CollectionMailbox,
		Destroy:    []types.DocumentID{999},
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := resp.NotDestroyed[999]; !ok {
		t.Fatalf("expected 999 in notDestroyed, got %+v", resp)
	}
}

func TestSetIfInStateMismatchFailsWholeCall(t *testing.T) {
	h := newHarness(t)
	account := types.AccountID(1)
	h.createMailbox(t, account, "a", "Inbox")

	stale := types.Initial
	_, err := Set(h.engine, h.reg, h.alloc, h.pipe, DefaultContext(), SetRequest{
		Account:    account,
		Collection: types.CollectionMailbox,
		IfInState:  &stale,
		Create: map[string]func(d *orm.Diff){
			"b": func(d *orm.Diff) {
				d.Set(orm.MailboxName, types.Value{Kind: types.KindText, Text: "Sent"})
			},
		},
	})
	if err == nil {
		t.Fatal("expected a stateMismatch error")
	}
}

func TestChangesReportsCreatedDocument(t *testing.T) {
	h := newHarness(t)
	account := types.AccountID(1)

	var changesErr error
	var resp changelog.Response
	h.engine.View(func(r store.Reader) error {
		resp, changesErr = Changes(r, DefaultContext(), ChangesRequest{Account: account, Collection: types.CollectionMailbox, SinceState: types.Initial})
		return nil
	})
	if changesErr != nil {
		t.Fatalf("changes before create: %v", changesErr)
	}
	if len(resp.Created) != 0 {
		t.Fatalf("expected no changes yet, got %+v", resp)
	}

	id := h.createMailbox(t, account, "a", "Inbox")

	h.engine.View(func(r store.Reader) error {
		resp, changesErr = Changes(r, DefaultContext(), ChangesRequest{Account: account, Collection: types.CollectionMailbox, SinceState: types.Initial})
		return nil
	})
	if changesErr != nil {
		t.Fatalf("changes after create: %v", changesErr)
	}
	if len(resp.Created) != 1 || resp.Created[0] != id {
		t.Fatalf("expected %v in created, got %+v", id, resp)
	}
}

func TestQueryAndQueryChanges(t *testing.T) {
	h := newHarness(t)
	account := types.AccountID(1)
	inbox := h.createMailbox(t, account, "a", "Inbox")

	var queryErr error
	var qresp QueryResponse
	h.engine.View(func(r store.Reader) error {
		qresp, queryErr = Query(r, query.Request{Account: account, Collection: types.CollectionMailbox, Filter: query.None()})
		return nil
	})
	if queryErr != nil {
		t.Fatalf("query: %v", queryErr)
	}
	if len(qresp.IDs) != 1 || qresp.IDs[0] != inbox {
		t.Fatalf("expected [%v], got %v", inbox, qresp.IDs)
	}

	sent := h.createMailbox(t, account, "b", "Sent")

	var qcErr error
	var qcresp QueryChangesResponse
	h.engine.View(func(r store.Reader) error {
		qcresp, qcErr = QueryChanges(r, DefaultContext(), QueryChangesRequest{
			Query:           query.Request{Account: account, Collection: types.CollectionMailbox, Filter: query.None()},
			SinceQueryState: qresp.QueryState,
		})
		return nil
	})
	if qcErr != nil {
		t.Fatalf("queryChanges: %v", qcErr)
	}
	if len(qcresp.Added) != 1 || qcresp.Added[0].ID != sent {
		t.Fatalf("expected %v added, got %+v", sent, qcresp)
	}
	if len(qcresp.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %+v", qcresp.Removed)
	}
}
