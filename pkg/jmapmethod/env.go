package jmapmethod

import (
	"time"

	"github.com/jmapstore/core/pkg/bitmap"
	"github.com/jmapstore/core/pkg/orm"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// StoreEnv implements orm.ValidationEnv directly against a store.Reader for
// one account, the concrete environment every Get/Set call in this package
// builds a Schema's Normalize/Validate calls against.
type StoreEnv struct {
	Reader  store.Reader
	Account types.AccountID

	// Clock, when set, overrides Now() — used by tests to make validation
	// deterministic. Defaults to time.Now().
	Clock func() time.Time
}

func (e *StoreEnv) Exists(collection types.Collection, id types.DocumentID) (bool, error) {
	live, err := bitmap.Live(e.Reader, e.Account, collection)
	if err != nil {
		return false, err
	}
	return live.Contains(uint32(id)), nil
}

func (e *StoreEnv) FindByTag(collection types.Collection, field uint8, value types.TagValue) ([]types.DocumentID, error) {
	bm, err := bitmap.Get(e.Reader, e.Account, collection, field, value)
	if err != nil {
		return nil, err
	}
	out := make([]types.DocumentID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, types.DocumentID(it.Next()))
	}
	return out, nil
}

func (e *StoreEnv) CountLive(collection types.Collection) (int, error) {
	bm, err := bitmap.Live(e.Reader, e.Account, collection)
	if err != nil {
		return 0, err
	}
	return int(bm.GetCardinality()), nil
}

func (e *StoreEnv) ParentOf(collection types.Collection, id types.DocumentID, field uint8) (types.DocumentID, bool, error) {
	raw, ok, err := e.Reader.Get(store.FamilyValues, store.ValStoredKey(e.Account, collection, id, field))
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := orm.DecodeValue(raw)
	if err != nil {
		return 0, false, err
	}
	if v.Kind != types.KindID {
		return 0, false, nil
	}
	return v.ID, true, nil
}

func (e *StoreEnv) Now() int64 {
	clock := e.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().UnixMicro()
}
