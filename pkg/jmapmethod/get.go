package jmapmethod

import (
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/orm"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// GetRequest is the generic input to any Foo/get call, per RFC 8620 §5.1.
type GetRequest struct {
	Account    types.AccountID
	Collection types.Collection

	// IDs, when nil, means "every live document"; the call fails with
	// requestTooLarge when that is more than
	// RequestContext.MaxObjectsInGet. A non-nil empty slice means "none",
	// matching the JMAP convention that null and [] are distinct requests.
	IDs *[]types.DocumentID

	// Properties, when nil, returns every stored property. A non-nil
	// filter narrows each returned Document's Properties map to this set.
	Properties []uint8
}

// GetResponse is the generic result of a Foo/get call.
type GetResponse struct {
	List     []*orm.Document
	NotFound []types.DocumentID
	State    types.JMAPState
}

// Get resolves req against r: loads every named (or, if none were named,
// every live) document, reporting ids that no longer resolve in NotFound
// rather than failing the whole call, per get.rs's per-id resolution.
func Get(r store.Reader, ctx RequestContext, req GetRequest) (GetResponse, error) {
	ids, err := resolveGetIDs(r, req)
	if err != nil {
		return GetResponse{}, err
	}
	if err := ctx.checkGetSize(len(ids)); err != nil {
		return GetResponse{}, err
	}

	resp := GetResponse{}
	for _, id := range ids {
		doc, ok, err := Load(r, req.Account, req.Collection, id)
		if err != nil {
			return GetResponse{}, err
		}
		if !ok {
			resp.NotFound = append(resp.NotFound, id)
			continue
		}
		if req.Properties != nil {
			doc.Properties = filterProperties(doc.Properties, req.Properties)
		}
		resp.List = append(resp.List, doc)
	}

	state, err := changelog.New().CurrentState(r, req.Account, req.Collection)
	if err != nil {
		return GetResponse{}, err
	}
	resp.State = state
	return resp, nil
}

func resolveGetIDs(r store.Reader, req GetRequest) ([]types.DocumentID, error) {
	if req.IDs == nil {
		return LiveIDs(r, req.Account, req.Collection)
	}
	return *req.IDs, nil
}

func filterProperties(props map[uint8]types.Value, keep []uint8) map[uint8]types.Value {
	out := make(map[uint8]types.Value, len(keep))
	for _, p := range keep {
		if v, ok := props[p]; ok {
			out[p] = v
		}
	}
	return out
}
