package raft

import (
	"fmt"
	"sort"

	"github.com/jmapstore/core/pkg/log"
)

// ProposeAndApply is the leader-side client write path: it assigns the
// next RaftID, applies data through the Applier immediately (so the
// leader can read its own write before quorum acknowledges it), appends
// the entry to the log, and records its undo payload pending commit. It
// fails if this node is not currently Leader.
func (n *Node) ProposeAndApply(data []byte) (RaftID, error) {
	n.mu.Lock()
	if n.state.Kind != StateLeader {
		n.mu.Unlock()
		return RaftID{}, fmt.Errorf("raft: not leader")
	}
	index := n.uncommittedIndex + 1
	id := RaftID{Term: n.term, Index: index}
	n.mu.Unlock()

	entry := LogEntry{ID: id, Data: data}
	undo, err := n.applier.Apply(entry)
	if err != nil {
		return RaftID{}, fmt.Errorf("raft: applying entry %s: %w", id, err)
	}

	n.mu.Lock()
	if err := n.storage.AppendEntry(entry); err != nil {
		n.mu.Unlock()
		return RaftID{}, fmt.Errorf("raft: appending entry %s: %w", id, err)
	}
	n.pendingUndo[index] = undo
	n.uncommittedIndex = index
	n.lastLog = id
	n.mu.Unlock()

	n.notifyReplication()
	return id, nil
}

func (id RaftID) String() string { return fmt.Sprintf("%d:%d", id.Term, id.Index) }

// HandleAppendEntries is the follower-side replication RPC handler. A
// stale term is rejected outright; a higher term triggers a step-down
// before processing continues; entries are applied (and their undo
// payload recorded) exactly like the leader's own ProposeAndApply, so the
// same rollback path in BecomeLeader covers both roles uniformly.
func (n *Node) HandleAppendEntries(req AppendEntriesRequest) AppendEntriesResponse {
	n.mu.Lock()
	if req.Term < n.term {
		term := n.term
		n.mu.Unlock()
		return AppendEntriesResponse{Term: term, Hint: n.lastLog}
	}
	if req.Term > n.term {
		n.mu.Unlock()
		n.StepDown(req.Term)
		n.mu.Lock()
		n.term = req.Term
	}
	if n.state.Kind != StateFollower || n.state.PeerID != req.LeaderID {
		n.mu.Unlock()
		n.FollowLeader(req.LeaderID)
		n.mu.Lock()
	}

	if req.Prev != n.lastLog {
		hint := n.lastLog
		n.mu.Unlock()
		return AppendEntriesResponse{Term: req.Term, Hint: hint}
	}

	for _, entry := range req.Entries {
		n.mu.Unlock()
		undo, err := n.applier.Apply(entry)
		n.mu.Lock()
		if err != nil {
			log.Logger.Warn().Err(err).Str("entry", entry.ID.String()).Msg("raft: follower apply failed")
			hint := n.lastLog
			n.mu.Unlock()
			return AppendEntriesResponse{Term: req.Term, Hint: hint}
		}
		if err := n.storage.AppendEntry(entry); err != nil {
			log.Logger.Warn().Err(err).Msg("raft: follower log append failed")
			hint := n.lastLog
			n.mu.Unlock()
			return AppendEntriesResponse{Term: req.Term, Hint: hint}
		}
		n.pendingUndo[entry.ID.Index] = undo
		n.lastLog = entry.ID
		n.uncommittedIndex = entry.ID.Index
	}

	if req.LeaderCommit > n.commitIndex {
		newCommit := req.LeaderCommit
		if n.lastLog.Index < newCommit {
			newCommit = n.lastLog.Index
		}
		n.commitUpToLocked(newCommit)
	}

	matchIndex := n.lastLog.Index
	term := n.term
	n.mu.Unlock()
	return AppendEntriesResponse{Term: term, Acked: true, MatchIndex: matchIndex}
}

// commitUpToLocked advances commitIndex to upTo, discarding the now-
// unneeded undo payloads for every entry it passes (once committed, an
// entry is permanent and will never be rolled back).
func (n *Node) commitUpToLocked(upTo uint64) {
	for idx := n.commitIndex + 1; idx <= upTo; idx++ {
		delete(n.pendingUndo, idx)
	}
	n.commitIndex = upTo
}

// AdvanceCommitIndex folds a follower's reported match index into the
// leader's commit calculation: the new commit index is the median of
// every in-shard peer's (matchIndex+1) plus the leader's own
// (uncommittedIndex+1), per spec.md §4.10. It returns whether the commit
// index moved.
func (n *Node) AdvanceCommitIndex(peer PeerID, matchIndex uint64) (bool, error) {
	n.mu.Lock()
	if n.state.Kind != StateLeader {
		n.mu.Unlock()
		return false, nil
	}

	p, ok := n.getPeerLocked(peer)
	if ok {
		p.CommitIndex = matchIndex
	}

	indexes := make([]uint64, 0, len(n.peers)+1)
	for _, peer := range n.peers {
		if peer.IsInShard(n.shardID) {
			indexes = append(indexes, peer.CommitIndex+1)
		}
	}
	indexes = append(indexes, n.uncommittedIndex+1)
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	median := indexes[len(indexes)/2]
	if median == 0 || median-1 <= n.commitIndex {
		n.mu.Unlock()
		return false, nil
	}
	n.commitUpToLocked(median - 1)
	n.mu.Unlock()

	n.notifyReplication()
	return true, nil
}
