package security

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// CAStore persists the root CA's serialized key material. Kept as a
// narrow interface (rather than depending on pkg/store's document-shaped
// Reader/Writer) since a CA is a single opaque blob, not an
// (account, collection, document) keyed value.
type CAStore interface {
	SaveCA(data []byte) error
	GetCA() ([]byte, error)
	Close() error
}

var caBucket = []byte("ca")

// boltCAStore is a CAStore backed by its own small BoltDB file, following
// pkg/raft/storage.go's pattern of giving each narrow durable-scalar
// concern its own bolt file rather than routing it through the document
// store.
type boltCAStore struct {
	db *bolt.DB
}

// OpenCAStore opens (creating if absent) security.db under dataDir.
func OpenCAStore(dataDir string) (CAStore, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "security.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open security.db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(caBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ca bucket: %w", err)
	}
	return &boltCAStore{db: db}, nil
}

func (s *boltCAStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(caBucket).Put([]byte("root"), data)
	})
}

func (s *boltCAStore) GetCA() ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(caBucket).Get([]byte("root"))
		if v == nil {
			return fmt.Errorf("no CA data stored")
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *boltCAStore) Close() error { return s.db.Close() }
