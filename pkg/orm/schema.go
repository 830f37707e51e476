package orm

import (
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/types"
)

// Schema is the per-collection capability trait from spec.md §9
// ("Polymorphism over collections"): each concrete collection implements
// it once, and pkg/pipeline / pkg/jmapmethod stay collection-agnostic.
// Avoids a deep inheritance hierarchy — the tagged union types.Value
// already carries every representable leaf type.
type Schema interface {
	Collection() types.Collection

	// DefaultProperties returns the property values a freshly inserted
	// document gets before caller-supplied fields are applied.
	DefaultProperties() map[uint8]types.Value

	// Normalize derives computed properties onto diff before Validate runs
	// (spec.md §4.4's per-collection side effects: PushSubscription's
	// expires clamp and generated verification code). isInsert distinguishes create from update, since some
	// derivations only apply on insert.
	Normalize(env ValidationEnv, isInsert bool, diff *Diff) error

	// Validate checks the fully-resolved post-write document (as produced
	// by Diff.Resulting) against the collection's invariants. id is the
	// document's own ID (already allocated by the time Validate runs),
	// used for self-reference and cycle checks.
	Validate(env ValidationEnv, id types.DocumentID, doc map[uint8]types.Value) error

	// IndexAs maps the resolved document into the UpdateField operations
	// the write pipeline applies: which properties are stored, sorted,
	// tagged, or full-text indexed.
	IndexAs(doc map[uint8]types.Value) []UpdateField
}

// ValidationEnv gives a Schema's Validate method read access to sibling
// documents in the same account/collection, for checks spec.md §4.4 calls
// out explicitly (Mailbox.parentId resolves within the same account,
// Mailbox.role unique per account).
type ValidationEnv interface {
	// Exists reports whether id is a live document in collection within
	// the account being validated.
	Exists(collection types.Collection, id types.DocumentID) (bool, error)

	// FindByTag returns every live document ID tagged with value on field
	// within collection — used for uniqueness checks (e.g. Mailbox.role).
	FindByTag(collection types.Collection, field uint8, value types.TagValue) ([]types.DocumentID, error)

	// CountLive returns the number of live (non-tombstoned) documents in
	// collection, used by quota-style checks (e.g. PushSubscription's
	// 100-subscription cap).
	CountLive(collection types.Collection) (int, error)

	// ParentOf returns the currently stored MailboxParentID of id (as
	// persisted before this write), for ancestry/cycle walks.
	ParentOf(collection types.Collection, id types.DocumentID, field uint8) (types.DocumentID, bool, error)

	// Now returns the current time (injected so validation is
	// deterministic in tests).
	Now() int64 // unix micros, UTC
}

// Registry resolves a Collection to its Schema.
type Registry struct {
	schemas map[types.Collection]Schema
}

// NewRegistry builds a Registry from the given schemas, indexed by their
// own Collection().
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[types.Collection]Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Collection()] = s
	}
	return r
}

// For returns the Schema for collection, or a jmaperr.KindInternalError if
// none is registered (an unreachable condition in a correctly wired core —
// every types.Collection constant must have a Schema).
func (r *Registry) For(collection types.Collection) (Schema, error) {
	s, ok := r.schemas[collection]
	if !ok {
		return nil, jmaperr.New(jmaperr.KindInternalError, "no schema registered for collection").
			WithFields("collection", collection.String())
	}
	return s, nil
}
