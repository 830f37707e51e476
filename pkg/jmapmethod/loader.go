package jmapmethod

import (
	"github.com/jmapstore/core/pkg/bitmap"
	"github.com/jmapstore/core/pkg/orm"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// Load materializes a document's full property bag from val_stored,
// returning ok=false if the document is not live (never existed, or was
// tombstoned). val_stored is self-describing (encodeStoredValue prefixes
// every payload with its own PropertyKind byte), so the loader needs no
// schema-specific knowledge of which properties exist.
func Load(r store.Reader, account types.AccountID, collection types.Collection, id types.DocumentID) (*orm.Document, bool, error) {
	live, err := bitmap.Live(r, account, collection)
	if err != nil {
		return nil, false, err
	}
	if !live.Contains(uint32(id)) {
		return nil, false, nil
	}

	doc := orm.NewDocument(account, collection, id)
	prefix := store.ValStoredPrefix(account, collection, id)
	it, err := r.Iterator(store.FamilyValues, prefix, false)
	if err != nil {
		return nil, false, err
	}
	defer it.Close()
	for it.Next() {
		key := it.Key()
		field := key[len(key)-1]
		v, err := orm.DecodeValue(it.Value())
		if err != nil {
			return nil, false, err
		}
		doc.Properties[field] = v
	}
	return doc, true, nil
}

// LiveIDs returns every live document id in (account, collection), in
// ascending order, for a get call that named no ids (meaning "every
// object").
func LiveIDs(r store.Reader, account types.AccountID, collection types.Collection) ([]types.DocumentID, error) {
	live, err := bitmap.Live(r, account, collection)
	if err != nil {
		return nil, err
	}
	out := make([]types.DocumentID, 0, live.GetCardinality())
	it := live.Iterator()
	for it.HasNext() {
		out = append(out, types.DocumentID(it.Next()))
	}
	return out, nil
}
