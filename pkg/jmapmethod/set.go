package jmapmethod

import (
	"github.com/jmapstore/core/pkg/alloc"
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/orm"
	"github.com/jmapstore/core/pkg/pipeline"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// SetRequest is the generic input to any Foo/set call. Create and Update
// carry a patch function rather than an already-built orm.Diff because an
// update's Diff must be tracked against its freshly loaded base document,
// which Set itself loads — a transport layer only needs to know how to
// turn the JSON patch it received into Diff.Set/Clear/Tag/Untag/ACLUpdate
// calls, not how a document is stored.
type SetRequest struct {
	Account         types.AccountID
	Collection      types.Collection
	DefaultLanguage string

	// IfInState, when non-nil, must match the collection's current state
	// or the whole call fails with stateMismatch before anything is
	// validated or written, per RFC 8620 §5.3.
	IfInState *types.JMAPState

	Create  map[string]func(d *orm.Diff)
	Update  map[types.DocumentID]func(d *orm.Diff)
	Destroy []types.DocumentID
}

// SetResponse is the generic result of a Foo/set call: every create,
// update, and destroy is resolved independently, so a single invalid
// object never prevents its siblings from committing.
type SetResponse struct {
	OldState types.JMAPState
	NewState types.JMAPState

	Created   map[string]types.DocumentID
	Updated   []types.DocumentID
	Destroyed []types.DocumentID

	NotCreated   map[string]*jmaperr.Error
	NotUpdated   map[types.DocumentID]*jmaperr.Error
	NotDestroyed map[types.DocumentID]*jmaperr.Error
}

// Set validates every create/update/destroy in req against a snapshot read
// of the store, then applies every item that validated cleanly as one
// atomic pipeline.WriteBatch — so the whole call shares a single ChangeID
// and raft entry, but one object's invalidProperties/notFound never blocks
// a sibling's success. A pipeline.Apply failure (a storage-layer error, not
// a validation error) fails the whole call: at that point every item
// already validated, so there is nothing left to partially recover.
func Set(engine store.Engine, reg *orm.Registry, allocator *alloc.Allocator, pipe *pipeline.Pipeline, ctx RequestContext, req SetRequest) (SetResponse, error) {
	if err := ctx.checkSetSize(len(req.Create) + len(req.Update) + len(req.Destroy)); err != nil {
		return SetResponse{}, err
	}

	resp := SetResponse{
		Created:      map[string]types.DocumentID{},
		NotCreated:   map[string]*jmaperr.Error{},
		NotUpdated:   map[types.DocumentID]*jmaperr.Error{},
		NotDestroyed: map[types.DocumentID]*jmaperr.Error{},
	}
	var batch pipeline.WriteBatch
	batch.Account = req.Account
	batch.DefaultLanguage = req.DefaultLanguage

	var allocated []types.DocumentID
	releaseAllocated := func() {
		for _, id := range allocated {
			allocator.Release(req.Account, req.Collection, id)
		}
	}

	err := engine.View(func(r store.Reader) error {
		state, err := changelog.New().CurrentState(r, req.Account, req.Collection)
		if err != nil {
			return err
		}
		resp.OldState = state
		if req.IfInState != nil && *req.IfInState != state {
			return jmaperr.New(jmaperr.KindStateMismatch, "ifInState does not match the collection's current state")
		}

		env := &StoreEnv{Reader: r, Account: req.Account}

		for _, id := range req.Destroy {
			live, err := env.Exists(req.Collection, id)
			if err != nil {
				return err
			}
			if !live {
				resp.NotDestroyed[id] = jmaperr.New(jmaperr.KindSetNotFound, "document does not exist")
				continue
			}
			batch.Entries = append(batch.Entries, pipeline.WriteAction{Collection: req.Collection, DocumentID: id, Kind: pipeline.ActionDelete})
			resp.Destroyed = append(resp.Destroyed, id)
		}

		for key, patch := range req.Create {
			id, err := allocator.Allocate(req.Account, req.Collection)
			if err != nil {
				return err
			}
			allocated = append(allocated, id)

			diff := orm.TrackChanges(nil)
			patch(diff)
			fields, err := reg.InsertValidate(env, req.Collection, id, diff)
			if err != nil {
				resp.NotCreated[key] = asTyped(err)
				continue
			}
			batch.Entries = append(batch.Entries, pipeline.WriteAction{Collection: req.Collection, DocumentID: id, Kind: pipeline.ActionInsert, Fields: fields})
			resp.Created[key] = id
		}

		for id, patch := range req.Update {
			base, ok, err := Load(r, req.Account, req.Collection, id)
			if err != nil {
				return err
			}
			if !ok {
				resp.NotUpdated[id] = jmaperr.New(jmaperr.KindSetNotFound, "document does not exist")
				continue
			}
			diff := orm.TrackChanges(base)
			patch(diff)
			fields, err := reg.MergeValidate(env, req.Collection, id, diff)
			if err != nil {
				resp.NotUpdated[id] = asTyped(err)
				continue
			}
			batch.Entries = append(batch.Entries, pipeline.WriteAction{Collection: req.Collection, DocumentID: id, Kind: pipeline.ActionUpdate, Fields: fields})
			resp.Updated = append(resp.Updated, id)
		}
		return nil
	})
	if err != nil {
		releaseAllocated()
		return SetResponse{}, err
	}

	if len(batch.Entries) > 0 {
		if err := pipe.Apply(batch); err != nil {
			releaseAllocated()
			return SetResponse{}, err
		}
	} else {
		releaseAllocated() // nothing committed; every create that was allocated must have failed validation
	}

	if err := engine.View(func(r store.Reader) error {
		state, err := changelog.New().CurrentState(r, req.Account, req.Collection)
		resp.NewState = state
		return err
	}); err != nil {
		return SetResponse{}, err
	}
	return resp, nil
}

// asTyped normalizes err into a *jmaperr.Error, wrapping anything else as
// an internalError rather than letting a bare error leak into a SetError
// map.
func asTyped(err error) *jmaperr.Error {
	if e, ok := jmaperr.As(err); ok {
		return e
	}
	return jmaperr.Wrap(jmaperr.KindInternalError, err)
}
