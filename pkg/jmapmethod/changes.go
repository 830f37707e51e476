package jmapmethod

import (
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// ChangesRequest is the generic input to any Foo/changes call.
type ChangesRequest struct {
	Account       types.AccountID
	Collection    types.Collection
	SinceState    types.JMAPState
	MaxChanges    int // 0 means "no client preference"; clamped by RequestContext
}

// Changes resolves req against the change log, clamping the client's
// requested page size to the server's own RequestContext.MaxChanges.
func Changes(r store.Reader, ctx RequestContext, req ChangesRequest) (changelog.Response, error) {
	max := ctx.clampMaxChanges(req.MaxChanges)
	return changelog.New().Changes(r, req.Account, req.Collection, req.SinceState, max)
}
