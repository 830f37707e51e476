// Package pipeline implements the atomic write batch of spec.md §4.5: the
// single store.Engine.Update transaction that turns a set of validated
// ORM field updates into bitmap membership, stored values, secondary
// index entries, full-text postings, blob references, a change-log
// entry, and a raft log entry — committed together or not at all.
//
// Grounded on pkg/manager/fsm.go's single-transaction apply pattern
// (decode a command, mutate every affected bucket, return) and on
// original_source/components/store/src/write/batch.rs for the
// mark-used/mark-tombstoned-then-per-field-update ordering.
package pipeline

import (
	"math"

	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/fts"
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/orm"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// ActionKind selects what a WriteAction does to one document.
type ActionKind uint8

const (
	ActionInsert ActionKind = iota
	ActionUpdate
	ActionDelete
)

// WriteAction is one document-level mutation within a WriteBatch. Fields
// carries the already-validated orm.UpdateField set (the output of
// orm.Registry.InsertValidate / MergeValidate) for Insert/Update; it is
// empty for Delete.
type WriteAction struct {
	Collection types.Collection
	DocumentID types.DocumentID
	Kind       ActionKind
	Fields     []orm.UpdateField

	// ParentID/ParentField, when HasParent is set, mark this document as having produced a
	// child-only change against its parent (e.g. an Email's arrival
	// bumping its Mailbox's unreadEmails rollup) instead of a top-level
	// update, per spec.md §4.6.
	HasParent   bool
	ParentID    types.DocumentID
	ParentField uint8
}

// WriteBatch groups every document mutation that must commit atomically,
// along with the default language full-text fields fall back to when an
// UpdateField does not specify one.
type WriteBatch struct {
	Account         types.AccountID
	DefaultLanguage string
	Entries         []WriteAction
}

// RaftAssigner reserves the next (term, index) pair a committed batch is
// recorded under. The raft leader implements this; a single-node or test
// pipeline can use a trivial in-memory counter.
type RaftAssigner interface {
	NextRaftID() (types.RaftID, error)
}

// BlobStore is the narrow interface pipeline needs from the content-
// addressed blob store: write new content (content-addressed, refcounted)
// and release a reference.
type BlobStore interface {
	Put(w store.Writer, data []byte) (types.BlobHash, error)
	Decref(w store.Writer, hash types.BlobHash) error
}

// Pipeline applies WriteBatches to a store.Engine.
type Pipeline struct {
	engine store.Engine
	log    *changelog.Log
	raft   RaftAssigner
	blobs  BlobStore
}

func New(engine store.Engine, log *changelog.Log, raft RaftAssigner, blobs BlobStore) *Pipeline {
	return &Pipeline{engine: engine, log: log, raft: raft, blobs: blobs}
}

// raftSummary is the payload written to log_raft: which change IDs this
// raft entry corresponds to, per collection, so a follower replaying the
// raft log can reconstruct the change log deterministically.
type raftSummary struct {
	Account   types.AccountID                      `json:"account"`
	ChangeIDs map[types.Collection]types.ChangeID `json:"change_ids"`
}

// Apply runs batch through the 9-step write pipeline inside one atomic
// store.Engine transaction. Any error aborts the whole transaction: the
// underlying store.Engine.Update never commits a partially applied batch.
func (p *Pipeline) Apply(batch WriteBatch) error {
	return p.engine.Update(func(w store.Writer) error {
		return p.apply(w, batch)
	})
}

func (p *Pipeline) apply(w store.Writer, batch WriteBatch) error {
	touched := map[types.Collection]*changelog.ChangeEntry{}
	entryFor := func(c types.Collection) *changelog.ChangeEntry {
		e, ok := touched[c]
		if !ok {
			e = &changelog.ChangeEntry{}
			touched[c] = e
		}
		return e
	}

	for _, action := range batch.Entries {
		entry := entryFor(action.Collection)
		switch action.Kind {
		case ActionInsert:
			if err := p.applyInsertOrUpdate(w, batch, action); err != nil {
				return err
			}
			if err := w.MergeBitmap(store.FamilyBitmaps, store.BMUsedKey(batch.Account, action.Collection),
				store.BitmapDelta{{ID: uint32(action.DocumentID), Set: true}}); err != nil {
				return err
			}
			entry.Created = append(entry.Created, uint32(action.DocumentID))
		case ActionUpdate:
			if err := p.applyInsertOrUpdate(w, batch, action); err != nil {
				return err
			}
			if action.HasParent {
				entry.ChildUpdated = append(entry.ChildUpdated, uint32(action.ParentID))
			} else {
				entry.Updated = append(entry.Updated, uint32(action.DocumentID))
			}
		case ActionDelete:
			if err := p.applyDelete(w, batch, action); err != nil {
				return err
			}
			entry.Destroyed = append(entry.Destroyed, uint32(action.DocumentID))
		default:
			return jmaperr.New(jmaperr.KindInternalError, "unrecognized write action kind")
		}
	}

	summary := raftSummary{Account: batch.Account, ChangeIDs: map[types.Collection]types.ChangeID{}}
	for collection, entry := range touched {
		if entry.IsEmpty() {
			continue
		}
		changeID, err := p.log.NextChangeID(w, batch.Account, collection)
		if err != nil {
			return err
		}
		entry.ChangeID = changeID
		if err := p.log.Append(w, batch.Account, collection, *entry); err != nil {
			return err
		}
		summary.ChangeIDs[collection] = changeID
	}

	if len(summary.ChangeIDs) == 0 {
		return nil
	}
	raftID, err := p.raft.NextRaftID()
	if err != nil {
		return err
	}
	return writeRaftSummary(w, raftID, summary)
}

// applyDelete marks a document tombstoned and releases every blob it
// referenced, per spec.md §4.5 steps 1-2. Bitmap/index cleanup for the
// document's own fields is left to background compaction once bm_used
// no longer reports the ID live (every read path already clamps to
// bm_used ∖ bm_tombstoned), matching the teacher's lazy-tombstone style
// in pkg/storage.
func (p *Pipeline) applyDelete(w store.Writer, batch WriteBatch, action WriteAction) error {
	refs, err := readBlobRefs(w, batch.Account, action.Collection, action.DocumentID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := p.blobs.Decref(w, ref.Hash); err != nil {
			return err
		}
	}
	if err := w.Delete(store.FamilyValues, store.ValBlobKey(batch.Account, action.Collection, action.DocumentID)); err != nil {
		return err
	}
	return w.MergeBitmap(store.FamilyBitmaps, store.BMTombstonedKey(batch.Account, action.Collection),
		store.BitmapDelta{{ID: uint32(action.DocumentID), Set: true}})
}

// applyInsertOrUpdate processes every per-field update in action.Fields:
// bitmap/tag membership, stored values, sort index entries, full-text
// postings, and blob storage, per spec.md §4.5 steps 3-5.
func (p *Pipeline) applyInsertOrUpdate(w store.Writer, batch WriteBatch, action WriteAction) error {
	var docIndex fts.DocumentIndex
	hasFullText := false

	tagGroups := map[uint8]*tagGroup{}
	for _, field := range action.Fields {
		if field.Op != orm.OpTag {
			continue
		}
		g, ok := tagGroups[field.Property]
		if !ok {
			g = &tagGroup{options: field.Options}
			tagGroups[field.Property] = g
		}
		g.desired = append(g.desired, field.Tag)
	}
	for property, g := range tagGroups {
		if err := p.applyTagGroup(w, batch, action, property, *g); err != nil {
			return err
		}
	}

	for _, field := range action.Fields {
		set := !field.Options.Has(orm.OptClear)

		switch field.Op {
		case orm.OpTag:
			continue // handled as a group above

		case orm.OpText:
			if field.Options.Has(orm.OptFullText) {
				if !set {
					// Clearing a full-text field removes it from the
					// rebuilt positional index below; stale bm_term
					// postings for its old terms are reclaimed the next
					// time this document's full index is rebuilt from
					// scratch rather than incrementally here, since doing
					// so precisely would require the document's prior
					// index, which this batch does not carry.
					continue
				}
				hasFullText = true
				lang := field.Language
				if lang == "" {
					lang = batch.DefaultLanguage
				}
				terms := fts.TermsForField(field.Text, lang, batch.DefaultLanguage)
				positions := make([]fts.TermPosition, 0, len(terms))
				for _, t := range terms {
					positions = append(positions, fts.TermPosition{TermID: t.Exact, Position: t.Position})
					if err := w.MergeBitmap(store.FamilyBitmaps,
						store.BMTermKey(batch.Account, action.Collection, field.Property, t.Exact, true),
						store.BitmapDelta{{ID: uint32(action.DocumentID), Set: true}}); err != nil {
						return err
					}
					if t.Stemmed != t.Exact {
						if err := w.MergeBitmap(store.FamilyBitmaps,
							store.BMTermKey(batch.Account, action.Collection, field.Property, t.Stemmed, false),
							store.BitmapDelta{{ID: uint32(action.DocumentID), Set: true}}); err != nil {
							return err
						}
					}
				}
				docIndex.Fields = append(docIndex.Fields, fts.FieldPositions{
					Field:     field.Property,
					BlobIndex: field.BlobIndex,
					Terms:     positions,
				})
				if err := applyStoredAndSort(w, batch, action, field, []byte(field.Text)); err != nil {
					return err
				}
				continue
			}
			// Text/Keyword: single bitmap membership keyed on the exact
			// string value, plus the usual stored/sort bookkeeping.
			if err := w.MergeBitmap(store.FamilyBitmaps,
				store.BMTagKey(batch.Account, action.Collection, field.Property, types.TagText(field.Text)),
				store.BitmapDelta{{ID: uint32(action.DocumentID), Set: set}}); err != nil {
				return err
			}
			if err := applyStoredAndSort(w, batch, action, field, []byte(field.Text)); err != nil {
				return err
			}

		case orm.OpBinary:
			if field.Options.Has(orm.OptStoreAsBlob) {
				if !set {
					continue // a blob reference clear is handled by applyDelete's refcount walk
				}
				hash, err := p.blobs.Put(w, field.Binary)
				if err != nil {
					return err
				}
				blobID := types.BlobID{Hash: hash, InnerPartID: types.NoInnerPart}
				if err := appendBlobRef(w, batch.Account, action.Collection, action.DocumentID, blobID); err != nil {
					return err
				}
				continue
			}
			if err := applyStoredAndSort(w, batch, action, field, field.Binary); err != nil {
				return err
			}

		case orm.OpInteger:
			if err := applyStoredAndSort(w, batch, action, field, beInt(uint64(uint32(field.Integer)), 4)); err != nil {
				return err
			}
		case orm.OpLongInteger:
			if err := applyStoredAndSort(w, batch, action, field, beInt(uint64(field.Integer), 8)); err != nil {
				return err
			}
		case orm.OpFloat:
			if err := applyStoredAndSort(w, batch, action, field, beFloat(field.Float)); err != nil {
				return err
			}
		default:
			return jmaperr.New(jmaperr.KindInternalError, "unrecognized field operation")
		}
	}

	if hasFullText {
		return w.Put(store.FamilyValues, store.ValTermIndexKey(batch.Account, action.Collection, action.DocumentID), fts.Compress(docIndex))
	}
	return nil
}

// tagGroup collects every orm.OpTag UpdateField sharing one Property within
// a WriteAction. IndexAs always emits the full resolved tag membership for
// a multi-valued tag property (e.g. an Email's mailboxIds), not an add/
// remove delta, so applyTagGroup must diff that resolved list against
// whatever was previously stored to know which bm_tag postings to flip.
type tagGroup struct {
	options orm.FieldOptions
	desired []types.TagValue
}

// applyTagGroup reconciles one tag property's bitmap membership and
// val_stored entry against its previous state. Entries explicitly marked
// OptClear are treated as the empty set (an explicit "untag everything");
// non-clear entries are the desired final membership. Whatever previously
// stored tag is absent from the desired set is removed from its bm_tag
// bitmap; whatever is newly present is added. The combined list, not a
// single raw tag value, is what val_stored ends up holding, matching
// encodeStoredValue's types.KindTags round trip.
func (p *Pipeline) applyTagGroup(w store.Writer, batch WriteBatch, action WriteAction, property uint8, g tagGroup) error {
	clearAll := g.options.Has(orm.OptClear)

	desired := make(map[types.TagValue]struct{}, len(g.desired))
	if !clearAll {
		for _, t := range g.desired {
			desired[t] = struct{}{}
		}
	}

	key := store.ValStoredKey(batch.Account, action.Collection, action.DocumentID, property)
	var previous []types.TagValue
	if raw, ok, err := w.Get(store.FamilyValues, key); err != nil {
		return err
	} else if ok {
		prevValue, err := orm.DecodeValue(raw)
		if err != nil {
			return err
		}
		previous = prevValue.Tags
	}
	previousSet := make(map[types.TagValue]struct{}, len(previous))
	for _, t := range previous {
		previousSet[t] = struct{}{}
	}

	for t := range desired {
		if _, had := previousSet[t]; had {
			continue
		}
		if err := w.MergeBitmap(store.FamilyBitmaps,
			store.BMTagKey(batch.Account, action.Collection, property, t),
			store.BitmapDelta{{ID: uint32(action.DocumentID), Set: true}}); err != nil {
			return err
		}
		if g.options.Has(orm.OptSort) {
			if err := w.Put(store.FamilyIndexes, store.IdxKey(batch.Account, action.Collection, property, t.Bytes(), action.DocumentID), nil); err != nil {
				return err
			}
		}
	}
	for t := range previousSet {
		if _, keep := desired[t]; keep {
			continue
		}
		if err := w.MergeBitmap(store.FamilyBitmaps,
			store.BMTagKey(batch.Account, action.Collection, property, t),
			store.BitmapDelta{{ID: uint32(action.DocumentID), Set: false}}); err != nil {
			return err
		}
		if g.options.Has(orm.OptSort) {
			if err := w.Delete(store.FamilyIndexes, store.IdxKey(batch.Account, action.Collection, property, t.Bytes(), action.DocumentID)); err != nil {
				return err
			}
		}
	}

	if !g.options.Has(orm.OptStore) {
		return nil
	}
	if len(desired) == 0 {
		return w.Delete(store.FamilyValues, key)
	}
	resolved := make([]types.TagValue, 0, len(desired))
	for t := range desired {
		resolved = append(resolved, t)
	}
	return w.Put(store.FamilyValues, key, orm.EncodeStoredValue(types.Value{Kind: types.KindTags, Tags: resolved}))
}

// applyStoredAndSort handles the OptStore/OptSort/OptClear bookkeeping
// shared by every scalar field type: write or delete val_stored, write or
// delete the idx entry.
func applyStoredAndSort(w store.Writer, batch WriteBatch, action WriteAction, field orm.UpdateField, valueBytes []byte) error {
	clear := field.Options.Has(orm.OptClear)
	if field.Options.Has(orm.OptStore) {
		key := store.ValStoredKey(batch.Account, action.Collection, action.DocumentID, field.Property)
		if clear {
			if err := w.Delete(store.FamilyValues, key); err != nil {
				return err
			}
		} else if err := w.Put(store.FamilyValues, key, valueBytes); err != nil {
			return err
		}
	}
	if field.Options.Has(orm.OptSort) {
		key := store.IdxKey(batch.Account, action.Collection, field.Property, valueBytes, action.DocumentID)
		if clear {
			if err := w.Delete(store.FamilyIndexes, key); err != nil {
				return err
			}
		} else if err := w.Put(store.FamilyIndexes, key, nil); err != nil {
			return err
		}
	}
	return nil
}

func beInt(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = byte(v >> (8 * uint(i)))
	}
	return out
}

func beFloat(f float64) []byte {
	return beInt(math.Float64bits(f), 8)
}
