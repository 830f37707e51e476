// Package alloc implements the per-(account, collection) document-ID
// allocator of spec.md §4.3: a monotonic, reusable ID space backed by the
// live bm_used ∖ bm_tombstoned bitmap, cached per process so concurrent
// allocators never hand out the same ID before their enclosing batch
// commits.
//
// No teacher equivalent exists (warren's entities are UUID-keyed); the
// caching shape follows hashicorp/golang-lru's usage pattern, promoting it
// from an indirect teacher dependency (pulled in transitively by
// hashicorp/raft) to direct use.
package alloc

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmapstore/core/pkg/bitmap"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// cacheKey identifies a per-(account, collection) entry.
type cacheKey struct {
	account    types.AccountID
	collection types.Collection
}

// entry tracks the reserved-or-used ID set for one (account, collection).
// Reserved includes both committed IDs (bm_used ∖ bm_tombstoned) and IDs
// handed out by Allocate but not yet committed or released.
type entry struct {
	mu       sync.Mutex
	reserved *roaring.Bitmap
	loaded   bool
}

// Allocator caches free-ID state across allocations within one process.
// Cross-process correctness does not depend on this cache: the write
// pipeline only considers an allocation final once its batch commits, and
// the cache here is purely an optimization plus an in-process collision
// guard.
type Allocator struct {
	engine store.Engine
	cache  *lru.Cache[cacheKey, *entry]
}

// New creates an Allocator backed by engine, caching up to maxEntries
// (account, collection) free-ID sets.
func New(engine store.Engine, maxEntries int) (*Allocator, error) {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	c, err := lru.New[cacheKey, *entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create allocator cache: %w", err)
	}
	return &Allocator{engine: engine, cache: c}, nil
}

func (a *Allocator) entryFor(account types.AccountID, collection types.Collection) (*entry, error) {
	key := cacheKey{account, collection}
	if e, ok := a.cache.Get(key); ok {
		return e, nil
	}
	e := &entry{}
	a.cache.Add(key, e)
	return e, nil
}

func (e *entry) ensureLoaded(engine store.Engine, account types.AccountID, collection types.Collection) error {
	if e.loaded {
		return nil
	}
	var live *roaring.Bitmap
	if err := engine.View(func(r store.Reader) error {
		var err error
		live, err = bitmap.Live(r, account, collection)
		return err
	}); err != nil {
		return fmt.Errorf("load live bitmap: %w", err)
	}
	e.reserved = live.Clone()
	e.loaded = true
	return nil
}

// Allocate returns the smallest document ID not currently used or
// reserved, and marks it reserved in-process. The caller must either
// Commit (keep it reserved, since the enclosing batch used it) or Release
// (free it back to the pool, since the batch did not commit) before the
// allocator will consider it available again.
func (a *Allocator) Allocate(account types.AccountID, collection types.Collection) (types.DocumentID, error) {
	e, err := a.entryFor(account, collection)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(a.engine, account, collection); err != nil {
		return 0, err
	}
	id := smallestFree(e.reserved)
	e.reserved.Add(id)
	return types.DocumentID(id), nil
}

// Release returns id to the free pool without it ever having been
// committed (the enclosing write batch was rolled back).
func (a *Allocator) Release(account types.AccountID, collection types.Collection, id types.DocumentID) {
	e, err := a.entryFor(account, collection)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		e.reserved.Remove(uint32(id))
	}
}

// Free marks a tombstoned-and-purged ID as available again. Called once
// the blob purger has finished decrementing the deleted document's blob
// references.
func (a *Allocator) Free(account types.AccountID, collection types.Collection, id types.DocumentID) {
	a.Release(account, collection, id)
}

// InvalidateLeadershipChange drops every cached entry, forcing the next
// Allocate on each (account, collection) to reload from the store. Called
// when this node transitions to or from raft leadership, since a
// follower's view of bm_used may be stale relative to the leader it is
// about to become (or stop being).
func (a *Allocator) InvalidateLeadershipChange() {
	a.cache.Purge()
}

func smallestFree(bm *roaring.Bitmap) uint32 {
	var id uint32
	it := bm.Iterator()
	for it.HasNext() {
		next := it.Next()
		if next != id {
			return id
		}
		id++
	}
	return id
}
