package changelog

import (
	"encoding/json"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// Compact merges every change entry older than the most recent retain
// entries into a single synthetic entry carrying the net lifecycle of
// each document across that window, per spec.md §4.6's compaction rule:
// an insert followed by a delete cancels; an insert followed by updates
// remains an insert; a delete with no prior insert in the window remains
// a delete. The merged entry keeps the newest ChangeID in the window, so
// `Since`/`Exact` resolution at any ChangeID still present after
// compaction (i.e. at or after that floor) remains correct and
// NextChangeID never reissues an ID from the window; resolution
// at a ChangeID strictly between two now-merged entries is no longer
// possible, which is exactly the tradeoff compaction makes — callers
// holding such a state see KindInvalidArgs via lowWaterMark.
//
// A ChildUpdate-only document destroyed within the compacted window is
// dropped entirely rather than surfacing a phantom update to an object
// the client never needs to reconcile further (decided in DESIGN.md).
func Compact(engine store.Engine, account types.AccountID, collection types.Collection, retain int) error {
	if retain < 0 {
		retain = 0
	}
	return engine.Update(func(w store.Writer) error {
		entries, err := readAllEntries(w, account, collection)
		if err != nil {
			return err
		}
		if len(entries) <= retain {
			return nil
		}
		old := entries[:len(entries)-retain]
		if len(old) < 2 {
			return nil // nothing to merge
		}

		merged := mergeEntries(old)
		for _, e := range old {
			if err := w.Delete(store.FamilyLogs, store.LogChangeKey(account, collection, e.ChangeID)); err != nil {
				return err
			}
		}
		if merged.isEmpty() {
			return nil
		}
		merged.ChangeID = old[len(old)-1].ChangeID
		data, err := json.Marshal(merged)
		if err != nil {
			return jmaperr.Wrap(jmaperr.KindInternalError, err)
		}
		return w.Put(store.FamilyLogs, store.LogChangeKey(account, collection, merged.ChangeID), data)
	})
}

func readAllEntries(r store.Reader, account types.AccountID, collection types.Collection) ([]ChangeEntry, error) {
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
		out = append(out, e)
	}
	return out, nil
}

type idLifecycle struct {
	created   bool
	updated   bool
	childOnly bool
	destroyed bool
}

func mergeEntries(entries []ChangeEntry) ChangeEntry {
	state := map[uint32]*idLifecycle{}
	get := func(id uint32) *idLifecycle {
		st, ok := state[id]
		if !ok {
			st = &idLifecycle{}
			state[id] = st
		}
		return st
	}

	for _, e := range entries {
		for _, id := range e.Created {
			st := get(id)
			st.created = true
			st.destroyed = false
		}
		for _, id := range e.Updated {
			get(id).updated = true
		}
		for _, id := range e.ChildUpdated {
			st := get(id)
			if !st.created && !st.updated {
				st.childOnly = true
			}
		}
		for _, id := range e.Destroyed {
			st := get(id)
			if st.created || (st.childOnly && !st.updated) {
				delete(state, id)
			} else {
				st.destroyed = true
			}
		}
	}

	var merged ChangeEntry
	for id, st := range state {
		switch {
		case st.destroyed:
			merged.Destroyed = append(merged.Destroyed, id)
		case st.created:
			merged.Created = append(merged.Created, id)
		case st.childOnly:
			merged.ChildUpdated = append(merged.ChildUpdated, id)
		case st.updated:
			merged.Updated = append(merged.Updated, id)
		}
	}
	return merged
}
