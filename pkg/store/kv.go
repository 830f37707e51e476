package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmapstore/core/pkg/log"
	bolt "go.etcd.io/bbolt"
)

// Reader is the read side of the façade: point get and prefix iteration,
// forward or backward.
type Reader interface {
	Get(family Family, key []byte) ([]byte, bool, error)
	Iterator(family Family, prefix []byte, reverse bool) (Iterator, error)
}

// Iterator walks keys sharing a prefix, forward or backward. Valid keys
// after Close has been deferred produce no more results.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Close() error
}

// Writer extends Reader with the mutating operations available inside an
// atomic batch: point writes, deletes, and the two required merge
// operators from spec.md §4.1.
type Writer interface {
	Reader
	Put(family Family, key, value []byte) error
	Delete(family Family, key []byte) error
	MergeBitmap(family Family, key []byte, delta BitmapDelta) error
	MergeInt(family Family, key []byte, delta int64) error
}

// Engine is the pluggable ordered KV store every other core subsystem
// depends on. BoltEngine is the only implementation shipped, but the
// interface exists so pkg/pipeline, pkg/query etc. never import bbolt
// directly.
type Engine interface {
	View(func(Reader) error) error
	Update(func(Writer) error) error
	Close() error
}

// BoltEngine implements Engine on top of go.etcd.io/bbolt, following the
// bucket-per-family, db.Update/db.View transaction style of
// pkg/storage/boltdb.go.
type BoltEngine struct {
	db *bolt.DB
}

// Open creates or opens the bbolt file at <dataDir>/store.db, creating the
// four column-family buckets if absent.
func Open(dataDir string) (*BoltEngine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "store.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, f := range Families() {
			if _, err := tx.CreateBucketIfNotExists([]byte(f)); err != nil {
				return fmt.Errorf("create bucket %s: %w", f, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	log.WithComponent("store").Info().Str("path", dbPath).Msg("opened store")
	return &BoltEngine{db: db}, nil
}

func (e *BoltEngine) Close() error { return e.db.Close() }

func (e *BoltEngine) View(fn func(Reader) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTxn{tx: tx})
	})
}

func (e *BoltEngine) Update(fn func(Writer) error) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTxn{tx: tx})
	})
}

type boltTxn struct {
	tx *bolt.Tx
}

func (t *boltTxn) bucket(f Family) *bolt.Bucket { return t.tx.Bucket([]byte(f)) }

func (t *boltTxn) Get(family Family, key []byte) ([]byte, bool, error) {
	v := t.bucket(family).Get(key)
	if v == nil {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *boltTxn) Put(family Family, key, value []byte) error {
	return t.bucket(family).Put(key, value)
}

func (t *boltTxn) Delete(family Family, key []byte) error {
	return t.bucket(family).Delete(key)
}

func (t *boltTxn) Iterator(family Family, prefix []byte, reverse bool) (Iterator, error) {
	b := t.bucket(family)
	c := b.Cursor()
	return &boltIterator{c: c, prefix: prefix, reverse: reverse, started: false}, nil
}

type boltIterator struct {
	c        *bolt.Cursor
	prefix   []byte
	reverse  bool
	started  bool
	key, val []byte
}

func (it *boltIterator) Next() bool {
	var k, v []byte
	if !it.started {
		it.started = true
		if it.reverse {
			k, v = it.seekLastWithPrefix()
		} else {
			k, v = it.c.Seek(it.prefix)
		}
	} else if it.reverse {
		k, v = it.c.Prev()
	} else {
		k, v = it.c.Next()
	}
	if k == nil || !bytes.HasPrefix(k, it.prefix) {
		it.key, it.val = nil, nil
		return false
	}
	it.key = append([]byte(nil), k...)
	it.val = append([]byte(nil), v...)
	return true
}

// seekLastWithPrefix positions the cursor at the last key sharing prefix,
// by seeking to the prefix's successor and stepping back one.
func (it *boltIterator) seekLastWithPrefix() ([]byte, []byte) {
	upper := prefixUpperBound(it.prefix)
	if upper == nil {
		// prefix is all 0xff: last key in the bucket qualifies if any does.
		k, v := it.c.Last()
		return k, v
	}
	k, v := it.c.Seek(upper)
	if k == nil {
		return it.c.Last()
	}
	return it.c.Prev()
}

func prefixUpperBound(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

func (it *boltIterator) Key() []byte   { return it.key }
func (it *boltIterator) Value() []byte { return it.val }
func (it *boltIterator) Close() error  { return nil }
