package raft

// Peer is this node's view of another member of the shard: its network
// identity, the last (term, index) it has reported, and election/
// replication bookkeeping. Peers living outside our shard (same cluster,
// different shard assignment) are tracked too, since UpdatePeers carries
// the whole gossip membership; ShardID filters them out of quorum math.
type Peer struct {
	ID      PeerID
	ShardID uint32
	Address string

	Offline bool

	// Election bookkeeping, reset at the start of every term.
	VoteGranted bool

	// Replication bookkeeping, maintained by the leader only.
	CommitIndex  uint64
	LastLogTerm  uint64
	LastLogIndex uint64
}

// IsInShard reports whether p replicates the given shard.
func (p *Peer) IsInShard(shardID uint32) bool { return p.ShardID == shardID }
