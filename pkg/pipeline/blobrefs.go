package pipeline

import (
	"encoding/binary"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// readBlobRefs decodes the val_blob list a document currently references,
// returning an empty list (not an error) if the document has none.
func readBlobRefs(r store.Reader, account types.AccountID, collection types.Collection, doc types.DocumentID) ([]types.BlobID, error) {
	data, found, err := r.Get(store.FamilyValues, store.ValBlobKey(account, collection, doc))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return decodeBlobRefs(data)
}

func appendBlobRef(w store.Writer, account types.AccountID, collection types.Collection, doc types.DocumentID, blob types.BlobID) error {
	existing, err := readBlobRefs(w, account, collection, doc)
	if err != nil {
		return err
	}
	existing = append(existing, blob)
	return w.Put(store.FamilyValues, store.ValBlobKey(account, collection, doc), encodeBlobRefs(existing))
}

func encodeBlobRefs(refs []types.BlobID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(refs)))
	for _, b := range refs {
		buf = append(buf, b.Hash[:]...)
		var inner [4]byte
		binary.BigEndian.PutUint32(inner[:], uint32(b.InnerPartID))
		buf = append(buf, inner[:]...)
	}
	return buf
}

func decodeBlobRefs(data []byte) ([]types.BlobID, error) {
	if len(data) < 4 {
		return nil, jmaperr.New(jmaperr.KindDataCorruption, "truncated blob reference list")
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	out := make([]types.BlobID, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(data) < 36 {
			return nil, jmaperr.New(jmaperr.KindDataCorruption, "truncated blob reference entry")
		}
		var hash types.BlobHash
		copy(hash[:], data[:32])
		inner := int32(binary.BigEndian.Uint32(data[32:36]))
		out = append(out, types.BlobID{Hash: hash, InnerPartID: inner})
		data = data[36:]
	}
	return out, nil
}
