package store

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

// BitmapOp is one operand of a bitmap merge delta: set or clear a single
// document ID.
type BitmapOp struct {
	ID  uint32
	Set bool
}

// BitmapDelta is the compact delta spec.md §4.1's bitmap merge operator
// folds into the current bitmap. An empty result after folding deletes the
// key.
type BitmapDelta []BitmapOp

// MergeBitmap implements the façade's bitmap merge operator: read the
// current roaring bitmap (or start empty), apply every op in delta, write
// the result back, deleting the key if it becomes empty.
func (t *boltTxn) MergeBitmap(family Family, key []byte, delta BitmapDelta) error {
	cur, found, err := t.Get(family, key)
	if err != nil {
		return err
	}
	bm := roaring.New()
	if found {
		if _, err := bm.FromBuffer(cur); err != nil {
			return fmt.Errorf("decode bitmap at key: %w", err)
		}
	}
	for _, op := range delta {
		if op.Set {
			bm.Add(op.ID)
		} else {
			bm.Remove(op.ID)
		}
	}
	if bm.IsEmpty() {
		return t.Delete(family, key)
	}
	bm.RunOptimize()
	buf, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("encode bitmap: %w", err)
	}
	return t.Put(family, key, buf)
}

// MergeInt implements the signed 64-bit additive integer merge operator
// used for blob refcounts. Unlike MergeBitmap, a result of zero is kept
// (not deleted): the blob purger (pkg/blobstore) is responsible for
// reclaiming zero-refcount blobs, so the key must stay visible to its scan.
func (t *boltTxn) MergeInt(family Family, key []byte, delta int64) error {
	cur, found, err := t.Get(family, key)
	if err != nil {
		return err
	}
	var v int64
	if found {
		if len(cur) != 8 {
			return fmt.Errorf("corrupt integer value at key (len=%d)", len(cur))
		}
		v = int64(binary.BigEndian.Uint64(cur))
	}
	v += delta
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return t.Put(family, key, buf[:])
}

// ReadBitmap loads and decodes the roaring bitmap stored at key, returning
// an empty bitmap (not an error) if the key is absent.
func ReadBitmap(r Reader, family Family, key []byte) (*roaring.Bitmap, error) {
	cur, found, err := r.Get(family, key)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if found {
		if _, err := bm.FromBuffer(cur); err != nil {
			return nil, fmt.Errorf("decode bitmap: %w", err)
		}
	}
	return bm, nil
}

// ReadInt loads the signed 64-bit integer stored at key, returning 0 if
// absent.
func ReadInt(r Reader, family Family, key []byte) (int64, error) {
	cur, found, err := r.Get(family, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	if len(cur) != 8 {
		return 0, fmt.Errorf("corrupt integer value (len=%d)", len(cur))
	}
	return int64(binary.BigEndian.Uint64(cur)), nil
}
