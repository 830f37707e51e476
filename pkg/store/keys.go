// Package store implements the key/value façade (spec.md §4.1): the byte
// layout of every key family, a pluggable ordered KV engine with merge
// operators, and the bbolt-backed implementation the core ships with.
//
// Grounded on pkg/storage/boltdb.go (the teacher's bucket-per-entity, Update/
// View transaction style), generalized from fixed entity buckets to the
// spec's four column families, and on
// _examples/AKJUS-bsc-erigon/erigon-lib/kv/tables.go for the big-endian
// key-prefix-for-range-scan convention.
package store

import (
	"encoding/binary"

	"github.com/jmapstore/core/pkg/types"
)

// Family names the four column families from spec.md §4.1. Each is a
// top-level bbolt bucket.
type Family string

const (
	FamilyBitmaps Family = "bitmaps"
	FamilyValues  Family = "values"
	FamilyIndexes Family = "indexes"
	FamilyLogs    Family = "logs"
)

// Families lists every family, used to create buckets on open.
func Families() []Family {
	return []Family{FamilyBitmaps, FamilyValues, FamilyIndexes, FamilyLogs}
}

// Key family prefix bytes, used only within FamilyLogs to keep raft log
// entries in a contiguous range disjoint from change-log entries.
const (
	logPrefixChange byte = 0x01
	logPrefixRaft   byte = 0x02
)

func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// BMUsedKey: bm_used(account, collection) — the ID-space "document exists"
// bitmap.
func BMUsedKey(account types.AccountID, collection types.Collection) []byte {
	k := make([]byte, 4+1)
	putU32(k, uint32(account))
	k[4] = byte(collection)
	return k
}

// BMTombstonedKey: bm_tombstoned(account, collection).
func BMTombstonedKey(account types.AccountID, collection types.Collection) []byte {
	k := BMUsedKey(account, collection)
	k = append(k, 0xff) // disjoint suffix from BMUsedKey's bare prefix
	return k
}

// BMTagKey: bm_tag(account, collection, field, tag_value).
func BMTagKey(account types.AccountID, collection types.Collection, field uint8, value types.TagValue) []byte {
	k := make([]byte, 0, 4+1+1+1+len(value.Bytes()))
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection), field, byte(value.Kind))
	k = append(k, value.Bytes()...)
	return k
}

// BMTermKey: bm_term(account, collection, field, term_hash, is_exact).
func BMTermKey(account types.AccountID, collection types.Collection, field uint8, termHash uint64, isExact bool) []byte {
	k := make([]byte, 0, 4+1+1+8+1)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection), field)
	k = appendU64(k, termHash)
	if isExact {
		k = append(k, 1)
	} else {
		k = append(k, 0)
	}
	return k
}

// ValStoredKey: val_stored(account, collection, document_id, field).
func ValStoredKey(account types.AccountID, collection types.Collection, doc types.DocumentID, field uint8) []byte {
	k := make([]byte, 0, 4+1+4+1)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection))
	k = appendU32(k, uint32(doc))
	k = append(k, field)
	return k
}

// ValStoredPrefix returns the (account, collection, document_id) prefix
// shared by every ValStoredKey for that document, for a range scan
// reading back all of a document's stored properties at once (the field
// byte that follows varies per key).
func ValStoredPrefix(account types.AccountID, collection types.Collection, doc types.DocumentID) []byte {
	k := make([]byte, 0, 4+1+4)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection))
	k = appendU32(k, uint32(doc))
	return k
}

// ValTermIndexKey: val_term_index(account, collection, document_id).
func ValTermIndexKey(account types.AccountID, collection types.Collection, doc types.DocumentID) []byte {
	k := make([]byte, 0, 4+1+4)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection))
	k = appendU32(k, uint32(doc))
	return k
}

// ValBlobKey: val_blob(account, collection, document_id) — the list of
// blobs a document references.
func ValBlobKey(account types.AccountID, collection types.Collection, doc types.DocumentID) []byte {
	k := ValTermIndexKey(account, collection, doc)
	return append(k, 'b')
}

// ValBlobRefKey: val_blob_ref(blob_hash) — integer-merged refcount.
func ValBlobRefKey(hash types.BlobHash) []byte {
	k := make([]byte, len(hash))
	copy(k, hash[:])
	return k
}

// IdxKey: idx(account, collection, field, value_bytes, document_id) —
// secondary index, value bytes encoded so lexicographic scan equals the
// intended sort order.
func IdxKey(account types.AccountID, collection types.Collection, field uint8, valueBytes []byte, doc types.DocumentID) []byte {
	k := make([]byte, 0, 4+1+1+len(valueBytes)+4)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection), field)
	k = append(k, valueBytes...)
	k = appendU32(k, uint32(doc))
	return k
}

// IdxPrefix returns the (account, collection, field) prefix shared by every
// IdxKey for that field, for range scans.
func IdxPrefix(account types.AccountID, collection types.Collection, field uint8) []byte {
	k := make([]byte, 0, 4+1+1)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection), field)
	return k
}

// LogChangeKey: log_change(account, collection, change_id).
func LogChangeKey(account types.AccountID, collection types.Collection, changeID types.ChangeID) []byte {
	k := make([]byte, 0, 1+4+1+8)
	k = append(k, logPrefixChange)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection))
	k = appendU64(k, uint64(changeID))
	return k
}

// LogChangePrefix returns the (account, collection) prefix for range scans
// over change entries.
func LogChangePrefix(account types.AccountID, collection types.Collection) []byte {
	k := make([]byte, 0, 1+4+1)
	k = append(k, logPrefixChange)
	k = appendU32(k, uint32(account))
	k = append(k, byte(collection))
	return k
}

// LogRaftKey: log_raft(term, index). The logPrefixRaft byte keeps raft
// entries in a contiguous range disjoint from change-log entries even
// though both live in FamilyLogs.
func LogRaftKey(id types.RaftID) []byte {
	k := make([]byte, 0, 1+8+8)
	k = append(k, logPrefixRaft)
	k = appendU64(k, id.Term)
	k = appendU64(k, id.Index)
	return k
}

// LogRaftPrefix is the shared prefix of every raft log key.
func LogRaftPrefix() []byte { return []byte{logPrefixRaft} }

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	putU32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	putU64(tmp[:], v)
	return append(b, tmp[:]...)
}
