package raft

import (
	"context"
	"time"

	"github.com/jmapstore/core/pkg/log"
)

// HandleUpdatePeers applies a post-join gossip bootstrap: peers already
// known keep their runtime state (Offline, VoteGranted, log progress);
// peers new to req.Peers are added fresh. It never removes a peer, since
// spec.md's gossip layer only ever grows shard membership through this
// path — departures are detected separately via Offline, not deletion.
func (n *Node) HandleUpdatePeers(req UpdatePeersRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range req.Peers {
		incoming := req.Peers[i]
		if existing, ok := n.getPeerLocked(incoming.ID); ok {
			existing.ShardID = incoming.ShardID
			existing.Address = incoming.Address
			continue
		}
		p := incoming
		n.peers = append(n.peers, &p)
		if n.state.Kind == StateLeader && p.IsInShard(n.shardID) {
			n.startReplicationLocked(&p)
		}
	}
}

// Run drives this node's election timer until ctx is cancelled: whenever
// the timer fires, it attempts RequestVotes and rearms. Replication and
// RPC handling are driven separately, by transport callbacks and
// ProposeAndApply; Run only owns the "am I due for an election" clock
// described in spec.md §4.10.
func (n *Node) Run(ctx context.Context) {
	const pollInterval = 50 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n.IsElectionDue(now) {
				if err := n.RequestVotes(ctx, false); err != nil {
					log.Logger.Warn().Err(err).Msg("raft: election attempt failed")
				}
			}
		}
	}
}
