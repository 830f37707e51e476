// Package changelog implements the per-(account, collection) append-only
// change log of spec.md §4.6: ChangeEntry storage, JMAP state-token
// resolution (Initial/Exact/Intermediate -> All/Since/RangeInclusive), and
// the has_more_changes / has_children_changes bookkeeping the */changes
// method surface needs.
//
// Grounded on pkg/manager/fsm.go's encoding/json command-payload style for
// ChangeEntry serialization (the teacher's own idiom for values written
// into a log, reused here even though this is not a raft log);
// original_source/components/store/src/changes.rs and
// components/store_test/src/jmap_changes.rs for the state-resolution and
// pagination-truncation algorithm.
package changelog

import (
	"encoding/json"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// ChangeEntry is one append-only record: the document IDs created, given a
// top-level property update, given only a child/rollup update (e.g. a
// Mailbox's unreadEmails counter moving because an Email changed), and
// destroyed at this ChangeID.
type ChangeEntry struct {
	ChangeID     types.ChangeID `json:"change_id"`
	Created      []uint32       `json:"created,omitempty"`
	Updated      []uint32       `json:"updated,omitempty"`
	ChildUpdated []uint32       `json:"child_updated,omitempty"`
	Destroyed    []uint32       `json:"destroyed,omitempty"`
}

// isChildOnly reports whether e contains only child-update records: no
// top-level creation, update, or destruction.
func (e ChangeEntry) isChildOnly() bool {
	return len(e.Created) == 0 && len(e.Updated) == 0 && len(e.Destroyed) == 0 && len(e.ChildUpdated) > 0
}

func (e ChangeEntry) isEmpty() bool {
	return len(e.Created) == 0 && len(e.Updated) == 0 && len(e.Destroyed) == 0 && len(e.ChildUpdated) == 0
}

// IsEmpty reports whether e carries no change records of any kind, so
// pkg/pipeline can skip assigning a ChangeID to a collection a batch
// touched only incidentally (e.g. via validation) without mutating it.
func (e ChangeEntry) IsEmpty() bool { return e.isEmpty() }

// dropsFromHead reports whether collection drops Intermediate-pagination
// overflow from the
// head (oldest) of the truncated range, matching
// components/store_test/src/jmap_changes.rs's assertion pattern for
// high-traffic collections whose clients page forward. Every other
// collection drops from the tail, since low-volume subscribers most
// likely want the earliest changes first.
func dropsFromHead(collection types.Collection) bool {
	return collection == types.CollectionMail || collection == types.CollectionThread
}

// Log appends and resolves change entries against a store.Engine.
type Log struct{}

// New creates a Log. The type carries no state of its own; every method
// takes the store.Reader/Writer for the surrounding transaction so
// pkg/pipeline can append a change entry atomically with everything else
// a write touches.
func New() *Log { return &Log{} }

// NextChangeID returns one greater than the highest ChangeID currently
// logged for (account, collection), or 1 if the log is empty (ChangeID 0
// is reserved as types.NoChangeID).
func (l *Log) NextChangeID(r store.Reader, account types.AccountID, collection types.Collection) (types.ChangeID, error) {
	it, err := r.Iterator(store.FamilyLogs, store.LogChangePrefix(account, collection), true)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	if it.Next() {
		var e ChangeEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return 0, jmaperr.Wrap(jmaperr.KindDataCorruption, err)
		}
		return e.ChangeID + 1, nil
	}
	return 1, nil
}

// CurrentState returns the JMAPState a get/query call should report as the
// collection's current state: Exact(latest change id), or Initial if the
// collection has never been written to.
func (l *Log) CurrentState(r store.Reader, account types.AccountID, collection types.Collection) (types.JMAPState, error) {
	next, err := l.NextChangeID(r, account, collection)
	if err != nil {
		return types.JMAPState{}, err
	}
	if next <= 1 {
		return types.Initial, nil
	}
	return types.Exact(next - 1), nil
}

// Append writes entry to the change log for (account, collection). A
// completely empty entry (no creates/updates/deletes of any kind) is not
// written: spec.md §4.5 step 6 only assigns a ChangeId to "touched"
// collections.
func (l *Log) Append(w store.Writer, account types.AccountID, collection types.Collection, entry ChangeEntry) error {
	if entry.isEmpty() {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return jmaperr.Wrap(jmaperr.KindInternalError, err)
	}
	return w.Put(store.FamilyLogs, store.LogChangeKey(account, collection, entry.ChangeID), data)
}

// Response is the resolved set of changes for a */changes call.
type Response struct {
	Created            []types.DocumentID
	Updated            []types.DocumentID
	Destroyed          []types.DocumentID
	OldState           types.JMAPState
	NewState           types.JMAPState
	HasMoreChanges     bool
	HasChildrenChanges bool
}

// Changes resolves since against the log for (account, collection) per
// spec.md §4.6, returning at most maxChanges (0 means unlimited) entries'
// worth of document IDs.
func (l *Log) Changes(r store.Reader, account types.AccountID, collection types.Collection, since types.JMAPState, maxChanges int) (Response, error) {
	switch since.Kind {
	case types.StateInitial:
		return l.resolveSince(r, account, collection, since, 0, maxChanges)
	case types.StateExact:
		low, err := l.lowWaterMark(r, account, collection)
		if err != nil {
			return Response{}, err
		}
		if since.ChangeID != 0 && since.ChangeID < low {
			return Response{}, jmaperr.New(jmaperr.KindInvalidArgs, "state references changes that have already been compacted away")
		}
		return l.resolveSince(r, account, collection, since, since.ChangeID, maxChanges)
	case types.StateIntermediate:
		return l.resolveIntermediate(r, account, collection, since, maxChanges)
	default:
		return Response{}, jmaperr.New(jmaperr.KindInvalidArgs, "unrecognized state token kind")
	}
}

// lowWaterMark returns the smallest ChangeID still present in the log, or
// 0 if the log is empty (meaning every ChangeID ever issued is still
// resolvable, trivially, because none were).
func (l *Log) lowWaterMark(r store.Reader, account types.AccountID, collection types.Collection) (types.ChangeID, error) {
	it, err := r.Iterator(store.FamilyLogs, store.LogChangePrefix(account, collection), false)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	if it.Next() {
		var e ChangeEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return 0, jmaperr.Wrap(jmaperr.KindDataCorruption, err)
		}
		return e.ChangeID, nil
	}
	return 0, nil
}

// resolveSince collects every entry with ChangeID > after, building the
// Created/Updated/Destroyed sets and applying maxChanges truncation.
func (l *Log) resolveSince(r store.Reader, account types.AccountID, collection types.Collection, since types.JMAPState, after types.ChangeID, maxChanges int) (Response, error) {
	entries, err := l.entriesAfter(r, account, collection, after)
	if err != nil {
		return Response{}, err
	}
	return l.buildResponse(collection, since, entries, maxChanges, after)
}

func (l *Log) resolveIntermediate(r store.Reader, account types.AccountID, collection types.Collection, since types.JMAPState, maxChanges int) (Response, error) {
	rng, err := l.entriesInRange(r, account, collection, since.FromID, since.ToID)
	if err != nil {
		return Response{}, err
	}
	if since.ItemsSent >= len(rng) {
		return l.resolveSince(r, account, collection, since, since.ToID, maxChanges)
	}

	var remaining []ChangeEntry
	if dropsFromHead(collection) {
		remaining = rng[since.ItemsSent:]
	} else {
		remaining = rng[:len(rng)-since.ItemsSent]
	}
	return l.buildResponse(collection, since, remaining, maxChanges, since.FromID)
}

// entriesAfter returns every entry with ChangeID > after, in ascending
// order.
func (l *Log) entriesAfter(r store.Reader, account types.AccountID, collection types.Collection, after types.ChangeID) ([]ChangeEntry, error) {
	it, err := r.Iterator(store.FamilyLogs, store.LogChangePrefix(account, collection), false)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []ChangeEntry
	for it.Next() {
		var e ChangeEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, jmaperr.Wrap(jmaperr.KindDataCorruption, err)
		}
		if e.ChangeID > after {
			out = append(out, e)
		}
	}
	return out, nil
}

// entriesInRange returns entries with from < ChangeID <= to.
func (l *Log) entriesInRange(r store.Reader, account types.AccountID, collection types.Collection, from, to types.ChangeID) ([]ChangeEntry, error) {
	all, err := l.entriesAfter(r, account, collection, from)
	if err != nil {
		return nil, err
	}
	var out []ChangeEntry
	for _, e := range all {
		if e.ChangeID <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

// buildResponse folds entries (already filtered to the relevant range)
// into a Response, applying maxChanges truncation and computing the
// resulting state token.
func (l *Log) buildResponse(collection types.Collection, since types.JMAPState, entries []ChangeEntry, maxChanges int, baseFrom types.ChangeID) (Response, error) {
	truncated := false
	if maxChanges > 0 && len(entries) > maxChanges {
		if dropsFromHead(collection) {
			entries = entries[len(entries)-maxChanges:]
		} else {
			entries = entries[:maxChanges]
		}
		truncated = true
	}

	resp := Response{OldState: since}
	created := map[uint32]bool{}
	updated := map[uint32]bool{}
	destroyed := map[uint32]bool{}
	childOnly := len(entries) > 0

	var lastID types.ChangeID
	for _, e := range entries {
		lastID = e.ChangeID
		if !e.isChildOnly() {
			childOnly = false
		}
		for _, id := range e.Created {
			created[id] = true
		}
		for _, id := range e.Updated {
			updated[id] = true
		}
		for _, id := range e.Destroyed {
			destroyed[id] = true
			delete(created, id)
			delete(updated, id)
		}
		for _, id := range e.ChildUpdated {
			if !created[id] && !updated[id] {
				updated[id] = true
			}
		}
	}

	resp.Created = toIDs(created)
	resp.Updated = toIDs(updated)
	resp.Destroyed = toIDs(destroyed)
	resp.HasChildrenChanges = childOnly && len(entries) > 0

	switch {
	case len(entries) == 0:
		resp.NewState = since
		if since.Kind == types.StateInitial {
			resp.NewState = types.Initial
		}
	case truncated:
		resp.HasMoreChanges = true
		resp.NewState = types.Intermediate(baseFrom, lastID, len(entries))
	default:
		resp.NewState = types.Exact(lastID)
	}
	return resp, nil
}

func toIDs(m map[uint32]bool) []types.DocumentID {
	out := make([]types.DocumentID, 0, len(m))
	for id := range m {
		out = append(out, types.DocumentID(id))
	}
	return out
}
