// Package orm implements the typed property-bag document layer of
// spec.md §4.4: per-document field diffs, tag diffs, ACL diffs, and the
// per-collection validation/index-mutation trait ("Polymorphism over
// collections", spec.md §9) that lets pkg/pipeline stay collection-agnostic.
//
// Grounded on pkg/types/types.go's struct style for the Go shape;
// original_source/components/jmap_mail/src/push_subscription/set.rs and
// mailbox/schema.rs for the validation semantics; set.rs for the general
// insert/merge-validate shape.
package orm

import (
	"github.com/jmapstore/core/pkg/types"
)

// Document is a loaded property bag: one typed Value per populated
// property, plus the tag sets the document currently belongs to.
type Document struct {
	Account    types.AccountID
	Collection types.Collection
	ID         types.DocumentID
	Properties map[uint8]types.Value
	Tags       map[uint8][]types.TagValue
}

// NewDocument creates an empty document ready for Insert-side validation.
func NewDocument(account types.AccountID, collection types.Collection, id types.DocumentID) *Document {
	return &Document{
		Account:    account,
		Collection: collection,
		ID:         id,
		Properties: make(map[uint8]types.Value),
		Tags:       make(map[uint8][]types.TagValue),
	}
}

// Diff is an editable change set tracked relative to a loaded snapshot (or
// nil, for a fresh insert). Set/Tag/Untag/ACLUpdate accumulate changes;
// InsertValidate/MergeValidate turn the accumulated diff into the
// UpdateField list pkg/pipeline applies atomically.
type Diff struct {
	base    *Document // nil for inserts
	next    map[uint8]types.Value
	cleared map[uint8]bool
	tagAdd  map[uint8][]types.TagValue
	tagDel  map[uint8][]types.TagValue
}

// TrackChanges creates a Diff relative to current (the loaded snapshot).
// Pass nil to build the diff for a brand new document.
func TrackChanges(current *Document) *Diff {
	return &Diff{
		base:    current,
		next:    make(map[uint8]types.Value),
		cleared: make(map[uint8]bool),
		tagAdd:  make(map[uint8][]types.TagValue),
		tagDel:  make(map[uint8][]types.TagValue),
	}
}

// Set stages a property value change.
func (d *Diff) Set(property uint8, value types.Value) {
	d.next[property] = value
	delete(d.cleared, property)
}

// Clear stages a property removal.
func (d *Diff) Clear(property uint8) {
	d.cleared[property] = true
	delete(d.next, property)
}

// Tag stages adding value to the membership set for field.
func (d *Diff) Tag(field uint8, value types.TagValue) {
	d.tagAdd[field] = append(d.tagAdd[field], value)
}

// Untag stages removing value from the membership set for field.
func (d *Diff) Untag(field uint8, value types.TagValue) {
	d.tagDel[field] = append(d.tagDel[field], value)
}

// ACLUpdate stages a per-account rights change on an ACLSet property.
func (d *Diff) ACLUpdate(property uint8, account types.AccountID, rights types.ACLRights) {
	cur := d.resolveValue(property)
	if cur.Kind != types.KindACLSet {
		cur = types.Value{Kind: types.KindACLSet, ACL: map[types.AccountID]types.ACLRights{}}
	} else if cur.ACL == nil {
		cur.ACL = map[types.AccountID]types.ACLRights{}
	}
	next := types.Value{Kind: types.KindACLSet, ACL: cloneACL(cur.ACL)}
	if rights == 0 {
		delete(next.ACL, account)
	} else {
		next.ACL[account] = rights
	}
	d.Set(property, next)
}

func cloneACL(m map[types.AccountID]types.ACLRights) map[types.AccountID]types.ACLRights {
	out := make(map[types.AccountID]types.ACLRights, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Get returns the value a property would resolve to after the diff is
// applied, for use by a Schema's Normalize/Validate methods.
func (d *Diff) Get(property uint8) types.Value { return d.resolveValue(property) }

// WasSet reports whether property was explicitly staged by this diff
// (via Set), as opposed to inherited from the base document or absent.
func (d *Diff) WasSet(property uint8) bool {
	_, ok := d.next[property]
	return ok
}

func (d *Diff) resolveValue(property uint8) types.Value {
	if v, ok := d.next[property]; ok {
		return v
	}
	if d.cleared[property] {
		return types.Value{}
	}
	if d.base != nil {
		return d.base.Properties[property]
	}
	return types.Value{}
}

// Resulting merges the diff onto its base (or an empty document for
// inserts), returning the document that would exist after the diff is
// applied. Used by per-collection Validate to see the post-write shape,
// and consumed directly by Schema.IndexAs.
func (d *Diff) Resulting() map[uint8]types.Value {
	out := make(map[uint8]types.Value)
	if d.base != nil {
		for k, v := range d.base.Properties {
			out[k] = v
		}
	}
	for k := range d.cleared {
		delete(out, k)
	}
	for k, v := range d.next {
		out[k] = v
	}
	for field := range tagFields(d.tagAdd, d.tagDel) {
		out[field] = types.Value{Kind: types.KindTags, Tags: d.resolveTags(field, out[field])}
	}
	return out
}

// tagFields returns the set of fields touched by either a or b.
func tagFields(a, b map[uint8][]types.TagValue) map[uint8]struct{} {
	out := make(map[uint8]struct{}, len(a)+len(b))
	for field := range a {
		out[field] = struct{}{}
	}
	for field := range b {
		out[field] = struct{}{}
	}
	return out
}

// resolveTags applies this diff's staged Tag/Untag calls for field onto
// current (field's value already resolved from next/cleared/base), returning
// the resulting membership list.
func (d *Diff) resolveTags(field uint8, current types.Value) []types.TagValue {
	membership := map[types.TagValue]struct{}{}
	if current.Kind == types.KindTags {
		for _, t := range current.Tags {
			membership[t] = struct{}{}
		}
	}
	for _, t := range d.tagAdd[field] {
		membership[t] = struct{}{}
	}
	for _, t := range d.tagDel[field] {
		delete(membership, t)
	}
	out := make([]types.TagValue, 0, len(membership))
	for t := range membership {
		out = append(out, t)
	}
	return out
}
