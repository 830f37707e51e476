package jmapmethod

import (
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/query"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// QueryResponse wraps pkg/query.Result with the JMAP state token every
// Foo/query response carries, so a caller (and QueryChanges, below) never
// has to fetch it separately.
type QueryResponse struct {
	query.Result
	QueryState types.JMAPState
}

// Query runs req.Query through pkg/query and attaches the collection's
// current state token.
func Query(r store.Reader, req query.Request) (QueryResponse, error) {
	result, err := query.Run(r, req)
	if err != nil {
		return QueryResponse{}, err
	}
	state, err := changelog.New().CurrentState(r, req.Account, req.Collection)
	if err != nil {
		return QueryResponse{}, err
	}
	return QueryResponse{Result: result, QueryState: state}, nil
}
