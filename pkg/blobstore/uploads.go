package blobstore

import (
	"encoding/binary"
	"time"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// UploadWindow is how long an uploaded-but-not-yet-referenced blob stays
// protected from purge and accessible to its uploader, per spec.md §4.9.
const UploadWindow = time.Hour

var uploadPrefix = []byte{0xf1}

func uploadKey(token string) []byte {
	k := make([]byte, 0, len(uploadPrefix)+len(token))
	k = append(k, uploadPrefix...)
	return append(k, token...)
}

// upload is the record kept for an in-flight JMAP Upload, identified by
// its opaque token.
type upload struct {
	Account   types.AccountID
	Hash      types.BlobHash
	ExpiresAt int64 // unix micros
}

func encodeUpload(u upload) []byte {
	buf := make([]byte, 4+32+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(u.Account))
	copy(buf[4:36], u.Hash[:])
	binary.BigEndian.PutUint64(buf[36:44], uint64(u.ExpiresAt))
	return buf
}

func decodeUpload(data []byte) (upload, error) {
	if len(data) != 44 {
		return upload{}, jmaperr.New(jmaperr.KindDataCorruption, "truncated upload record")
	}
	var u upload
	u.Account = types.AccountID(binary.BigEndian.Uint32(data[0:4]))
	copy(u.Hash[:], data[4:36])
	u.ExpiresAt = int64(binary.BigEndian.Uint64(data[36:44]))
	return u, nil
}

// RecordUpload registers token as an upload session for account, proving
// access to hash until the window expires or the blob is referenced by a
// committed document (whichever keeps it alive longer, since a live
// document reference keeps the refcount positive regardless of this
// record).
func (s *Store) RecordUpload(w store.Writer, token string, account types.AccountID, hash types.BlobHash, now time.Time) error {
	u := upload{Account: account, Hash: hash, ExpiresAt: now.Add(UploadWindow).UnixMicro()}
	return w.Put(store.FamilyValues, uploadKey(token), encodeUpload(u))
}

// CanAccessUpload reports whether account may still read the blob behind
// token: it must be the uploader, and the upload window must not have
// expired.
func (s *Store) CanAccessUpload(r store.Reader, token string, account types.AccountID, now time.Time) (types.BlobHash, bool, error) {
	data, found, err := r.Get(store.FamilyValues, uploadKey(token))
	if err != nil || !found {
		return types.BlobHash{}, false, err
	}
	u, err := decodeUpload(data)
	if err != nil {
		return types.BlobHash{}, false, err
	}
	if u.Account != account || now.UnixMicro() > u.ExpiresAt {
		return types.BlobHash{}, false, nil
	}
	return u.Hash, true, nil
}

// Purge scans every val_blob_ref entry at zero refcount and removes its
// payload, per spec.md §4.9. Expired upload records are also dropped so
// CanAccessUpload stops granting access once the window has passed, even
// if the blob itself is still referenced by a live document.
func (s *Store) Purge(now time.Time) (purged int, err error) {
	err = s.engine.Update(func(w store.Writer) error {
		it, iterErr := w.Iterator(store.FamilyValues, []byte{}, false)
		if iterErr != nil {
			return iterErr
		}
		defer it.Close()

		var zeroRefHashes [][]byte
		var expiredUploadKeys [][]byte
		for it.Next() {
			key := it.Key()
			// val_blob_ref keys are exactly the bare 32-byte hash (see
			// store.ValBlobRefKey); payload and upload keys always carry a
			// leading 0xf0/0xf1 tag byte, so length alone disambiguates.
			if len(key) == 32 {
				v := it.Value()
				if len(v) == 8 && allZero(v) {
					hashCopy := append([]byte(nil), key...)
					zeroRefHashes = append(zeroRefHashes, hashCopy)
				}
				continue
			}
			if len(key) > 0 && key[0] == uploadPrefix[0] {
				data := it.Value()
				u, decodeErr := decodeUpload(data)
				if decodeErr != nil {
					continue
				}
				if now.UnixMicro() > u.ExpiresAt {
					expiredUploadKeys = append(expiredUploadKeys, append([]byte(nil), key...))
				}
			}
		}

		for _, hashBytes := range zeroRefHashes {
			var hash types.BlobHash
			copy(hash[:], hashBytes)
			if err := w.Delete(store.FamilyValues, payloadKey(hash)); err != nil {
				return err
			}
			if err := w.Delete(store.FamilyValues, store.ValBlobRefKey(hash)); err != nil {
				return err
			}
			purged++
		}
		for _, key := range expiredUploadKeys {
			if err := w.Delete(store.FamilyValues, key); err != nil {
				return err
			}
		}
		return nil
	})
	return purged, err
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
