package pipeline

import (
	"encoding/json"
	"sync"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// writeRaftSummary appends one raft log entry recording which ChangeIDs a
// committed batch produced per collection, keyed by raftID, so a follower
// applying the raft log can reconstruct the per-collection change log
// deterministically without re-running validation. Grounded on
// pkg/manager/fsm.go's encoding/json command-payload idiom.
func writeRaftSummary(w store.Writer, raftID types.RaftID, summary raftSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return jmaperr.Wrap(jmaperr.KindInternalError, err)
	}
	return w.Put(store.FamilyLogs, store.LogRaftKey(raftID), data)
}

// SingleNodeRaftAssigner hands out strictly increasing indices at a fixed
// term, for running the write pipeline without pkg/raft (a standalone
// node, or a test). On a raft-replicated node, pkg/raftapply supplies the
// RaftAssigner instead, returning the RaftID that raft.Node.ProposeAndApply
// allocated; pkg/raft's Node does not implement RaftAssigner itself.
type SingleNodeRaftAssigner struct {
	mu   sync.Mutex
	term uint64
	next uint64
}

func NewSingleNodeRaftAssigner(term uint64) *SingleNodeRaftAssigner {
	return &SingleNodeRaftAssigner{term: term, next: 1}
}

func (a *SingleNodeRaftAssigner) NextRaftID() (types.RaftID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := types.RaftID{Term: a.term, Index: a.next}
	a.next++
	return id, nil
}
