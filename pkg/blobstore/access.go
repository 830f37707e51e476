package blobstore

import (
	"time"

	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// AccessByDocument and AccessByUpload implement spec.md §4.9's blob
// access-control rule: the caller
// must either (a) hold a token granting access to the account that owns
// a live document referencing hash, (b) hold upload-session proof within
// its window, or neither of which succeeding denies access.
//
// Checking (a) against "some live document in an accessible account
// references this hash" would require scanning every val_blob list,
// which the blob store has no index for; the caller (pkg/jmapmethod, at
// the JMAP download/get-blob handler) is expected to have already
// resolved hash from a document it loaded and already knows is within
// token's accessible accounts — so AccessByDocument takes that account
// directly rather than rediscovering it here.
func (s *Store) AccessByDocument(token types.ACLToken, owningAccount types.AccountID) bool {
	return token.HasAccess(owningAccount)
}

// AccessByUpload reports whether token (the upload-session string
// presented by the caller) grants account read access to its blob within
// the upload window.
func (s *Store) AccessByUpload(r store.Reader, uploadToken string, account types.AccountID, now time.Time) (types.BlobHash, bool, error) {
	return s.CanAccessUpload(r, uploadToken, account, now)
}
