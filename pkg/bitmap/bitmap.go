// Package bitmap implements the compressed document-ID bitmap primitives
// of spec.md §4.2: get, intersect, union, and range-to-bitmap over secondary
// indexes, always intersected with the live bm_used ∖ bm_tombstoned set
// before being returned to a caller.
//
// Grounded on _examples/3esmit-turbo-geth/ethdb/bitmapdb/dbutils.go and
// _examples/AKJUS-bsc-erigon, both of which vendor RoaringBitmap for
// exactly this shape of problem (sharded, mergeable sets of integer IDs
// over an ordered KV store) — the teacher itself has no bitmap need.
package bitmap

import (
	"bytes"

	"github.com/RoaringBitmap/roaring"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// Comparator selects how a range_to_bitmap scan relates to the query
// value.
type Comparator uint8

const (
	Eq Comparator = iota
	Lt
	Le
	Gt
	Ge
)

// Live returns bm_used ∖ bm_tombstoned for (account, collection): the set
// of document IDs that currently exist.
func Live(r store.Reader, account types.AccountID, collection types.Collection) (*roaring.Bitmap, error) {
	used, err := store.ReadBitmap(r, store.FamilyBitmaps, store.BMUsedKey(account, collection))
	if err != nil {
		return nil, err
	}
	tombstoned, err := store.ReadBitmap(r, store.FamilyBitmaps, store.BMTombstonedKey(account, collection))
	if err != nil {
		return nil, err
	}
	return roaring.AndNot(used, tombstoned), nil
}

// clampToLive intersects bm with the live document set, so every bitmap
// this package returns is safe to hand straight to the query engine.
func clampToLive(r store.Reader, account types.AccountID, collection types.Collection, bm *roaring.Bitmap) (*roaring.Bitmap, error) {
	live, err := Live(r, account, collection)
	if err != nil {
		return nil, err
	}
	return roaring.And(bm, live), nil
}

// Get returns the tag-membership bitmap for a single tag, clamped to live
// documents.
func Get(r store.Reader, account types.AccountID, collection types.Collection, field uint8, value types.TagValue) (*roaring.Bitmap, error) {
	bm, err := store.ReadBitmap(r, store.FamilyBitmaps, store.BMTagKey(account, collection, field, value))
	if err != nil {
		return nil, err
	}
	return clampToLive(r, account, collection, bm)
}

// GetTerm returns the full-text term bitmap for (field, term_hash,
// is_exact), clamped to live documents.
func GetTerm(r store.Reader, account types.AccountID, collection types.Collection, field uint8, termHash uint64, isExact bool) (*roaring.Bitmap, error) {
	bm, err := store.ReadBitmap(r, store.FamilyBitmaps, store.BMTermKey(account, collection, field, termHash, isExact))
	if err != nil {
		return nil, err
	}
	return clampToLive(r, account, collection, bm)
}

// Key identifies one tag or term bitmap to combine in Intersect/Union.
type Key struct {
	Field    uint8
	Tag      *types.TagValue
	TermHash uint64
	IsExact  bool
	IsTerm   bool
}

func (bk Key) load(r store.Reader, account types.AccountID, collection types.Collection) (*roaring.Bitmap, error) {
	if bk.IsTerm {
		return GetTerm(r, account, collection, bk.Field, bk.TermHash, bk.IsExact)
	}
	return Get(r, account, collection, bk.Field, *bk.Tag)
}

// Intersect ANDs together the bitmaps named by keys, clamped to live
// documents. An empty keys list yields the empty bitmap (not "everything"):
// callers that mean "no filter" should use Live directly.
func Intersect(r store.Reader, account types.AccountID, collection types.Collection, keys []Key) (*roaring.Bitmap, error) {
	if len(keys) == 0 {
		return roaring.New(), nil
	}
	acc, err := keys[0].load(r, account, collection)
	if err != nil {
		return nil, err
	}
	for _, k := range keys[1:] {
		if acc.IsEmpty() {
			break // short-circuit: AND of empty with anything is empty
		}
		bm, err := k.load(r, account, collection)
		if err != nil {
			return nil, err
		}
		acc = roaring.And(acc, bm)
	}
	return acc, nil
}

// Union ORs together the bitmaps named by keys, clamped to live documents.
func Union(r store.Reader, account types.AccountID, collection types.Collection, keys []Key) (*roaring.Bitmap, error) {
	acc := roaring.New()
	for _, k := range keys {
		bm, err := k.load(r, account, collection)
		if err != nil {
			return nil, err
		}
		acc = roaring.Or(acc, bm)
	}
	return acc, nil
}

// RangeToBitmap scans the idx(account, collection, field, value, doc)
// family for entries whose value satisfies `cmp value`, and unions the
// matching document IDs into a bitmap, clamped to live documents.
func RangeToBitmap(r store.Reader, account types.AccountID, collection types.Collection, field uint8, cmp Comparator, value []byte) (*roaring.Bitmap, error) {
	prefix := store.IdxPrefix(account, collection, field)
	reverse := cmp == Lt || cmp == Le
	it, err := r.Iterator(store.FamilyIndexes, prefix, reverse)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := roaring.New()
	for it.Next() {
		k := it.Key()
		valBytes := k[len(prefix) : len(k)-4]
		docBytes := k[len(k)-4:]
		docID := beDecodeU32(docBytes)

		cmpResult := bytes.Compare(valBytes, value)
		matches, stop := evalComparator(cmp, cmpResult)
		if stop {
			break
		}
		if matches {
			out.Add(docID)
		}
	}
	return clampToLive(r, account, collection, out)
}

// evalComparator reports whether the scanned value (compared against the
// query value via cmpResult = bytes.Compare(scanned, query)) satisfies cmp,
// and whether the scan (ordered ascending for Eq/Gt/Ge, descending for
// Lt/Le) can stop because no further keys can match.
func evalComparator(cmp Comparator, cmpResult int) (matches, stop bool) {
	switch cmp {
	case Eq:
		if cmpResult == 0 {
			return true, false
		}
		if cmpResult > 0 {
			return false, true // ascending scan has passed all equal keys
		}
		return false, false
	case Ge:
		return cmpResult >= 0, false
	case Gt:
		return cmpResult > 0, false
	case Le:
		return cmpResult <= 0, false
	case Lt:
		return cmpResult < 0, false
	default:
		return false, true
	}
}

func beDecodeU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
