// Package blobstore implements the content-addressed blob store of
// spec.md §4.9: blobs keyed by blob_hash = sha256(content), refcounted via
// the store's integer merge operator, with a background purger for
// zero-refcount and expired-upload entries and an access-control check
// spanning ownership, ACL sharing, and the uploader's own upload window.
//
// Grounded on pkg/storage/boltdb.go's bucket-scoped byte storage for the
// payload bucket and on pkg/manager/fsm.go's use of google/uuid for
// opaque session tokens, reused here for upload-session IDs.
package blobstore

import (
	"crypto/sha256"

	"github.com/google/uuid"
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// payloadPrefix marks raw blob content keyed by blob_hash, stored separately
// from the refcount (which lives in FamilyValues under val_blob_ref so it
// can use the store's MergeInt operator). bbolt buckets are cheap, so a
// fifth logical family for payload bytes doesn't need a place in
// store.Family's enumerated list — it piggybacks on FamilyValues with a
// disjoint key prefix, matching pkg/storage.BoltDB's single-bucket-per-
// concern style.
var payloadPrefix = []byte{0xf0}

func payloadKey(hash types.BlobHash) []byte {
	k := make([]byte, 0, len(payloadPrefix)+len(hash))
	k = append(k, payloadPrefix...)
	return append(k, hash[:]...)
}

// Store is the content-addressed blob store. It satisfies
// pkg/pipeline.BlobStore.
type Store struct {
	engine store.Engine
}

func New(engine store.Engine) *Store { return &Store{engine: engine} }

// Put writes data to the store if not already present, idempotently
// incrementing its refcount by 1, and returns its content hash.
func (s *Store) Put(w store.Writer, data []byte) (types.BlobHash, error) {
	hash := sha256.Sum256(data)
	if _, found, err := w.Get(store.FamilyValues, payloadKey(hash)); err != nil {
		return hash, err
	} else if !found {
		if err := w.Put(store.FamilyValues, payloadKey(hash), data); err != nil {
			return hash, err
		}
	}
	if err := w.MergeInt(store.FamilyValues, store.ValBlobRefKey(hash), 1); err != nil {
		return hash, err
	}
	return hash, nil
}

// Decref releases one reference to hash. The payload is not removed here:
// Purge reclaims zero-refcount blobs in a separate pass, per spec.md
// §4.9, so a transaction that decrefs and then re-incrs within the same
// batch (e.g. a document update that keeps the same attachment) never
// races a concurrent purge.
func (s *Store) Decref(w store.Writer, hash types.BlobHash) error {
	return w.MergeInt(store.FamilyValues, store.ValBlobRefKey(hash), -1)
}

// Get returns a blob's raw content.
func (s *Store) Get(r store.Reader, hash types.BlobHash) ([]byte, error) {
	data, found, err := r.Get(store.FamilyValues, payloadKey(hash))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, jmaperr.New(jmaperr.KindBlobNotFound, "blob not found")
	}
	return data, nil
}

// NewUploadToken mints an opaque upload-session identifier for a blob
// uploaded outside of a document write (JMAP's Upload resource),
// following pkg/manager/fsm.go's use of google/uuid for opaque session
// tokens rather than a hand-rolled random-string generator.
func NewUploadToken() string {
	return uuid.NewString()
}
