package raft

import (
	"context"
	"time"

	"github.com/jmapstore/core/pkg/log"
)

// replicationBatchSize caps how many entries a single AppendEntries RPC
// carries, so a far-behind follower catches up over several round trips
// instead of one unbounded message.
const replicationBatchSize = 256

// startReplicationLocked spawns the per-peer replication task described
// in spec.md §4.10: it sends batches from the follower's matchIndex+1 up
// to uncommittedIndex, woken immediately by notifyReplication so writes
// propagate without waiting for the next poll, but also polls
// periodically to guarantee forward progress if a notification is missed.
func (n *Node) startReplicationLocked(p *Peer) {
	ctx, cancel := context.WithCancel(context.Background())
	n.stopReplication[p.ID] = cancel
	notify := make(chan struct{}, 1)
	n.peerNotify(p.ID, notify)
	go n.replicatePeer(ctx, p, notify)
}

func (n *Node) peerNotify(id PeerID, ch chan struct{}) {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()
	if n.notifyChans == nil {
		n.notifyChans = make(map[PeerID]chan struct{})
	}
	n.notifyChans[id] = ch
}

// notifyReplication wakes every running replication task, coalescing
// multiple writes between ticks into a single replication round — the
// same effect as the source's watch-channel broadcast.
func (n *Node) notifyReplication() {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()
	for _, ch := range n.notifyChans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *Node) replicatePeer(ctx context.Context, p *Peer, notify chan struct{}) {
	ticker := time.NewTicker(ElectionTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-ticker.C:
		}
		n.replicateOnce(ctx, p)
	}
}

func (n *Node) replicateOnce(ctx context.Context, p *Peer) {
	n.mu.Lock()
	if n.state.Kind != StateLeader {
		n.mu.Unlock()
		return
	}
	term := n.term
	leaderCommit := n.commitIndex
	uncommitted := n.uncommittedIndex
	start := p.CommitIndex + 1
	var prev RaftID
	if start > 1 {
		if entry, found, err := n.storage.GetEntry(start - 1); err == nil && found {
			prev = entry.ID
		}
	}
	n.mu.Unlock()

	if start > uncommitted {
		return
	}
	end := uncommitted
	if end-start+1 > replicationBatchSize {
		end = start + replicationBatchSize - 1
	}

	entries := make([]LogEntry, 0, end-start+1)
	for idx := start; idx <= end; idx++ {
		entry, found, err := n.storage.GetEntry(idx)
		if err != nil || !found {
			break
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return
	}

	resp, err := n.transport.SendAppendEntries(ctx, *p, AppendEntriesRequest{
		Term:         term,
		LeaderID:     n.self,
		LeaderCommit: leaderCommit,
		Prev:         prev,
		Entries:      entries,
	})
	if err != nil {
		log.Logger.Debug().Err(err).Str("peer_addr", p.Address).Msg("raft: append entries failed")
		return
	}
	if resp.Term > term {
		n.StepDown(resp.Term)
		return
	}
	if !resp.Acked {
		return
	}
	if _, err := n.AdvanceCommitIndex(p.ID, resp.MatchIndex); err != nil {
		log.Logger.Warn().Err(err).Msg("raft: commit advancement failed")
	}
}
