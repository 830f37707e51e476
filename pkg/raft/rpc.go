package raft

import "context"

// RaftID totally orders log entries: term first, then index. It mirrors
// pkg/types.RaftID's shape but stays local to avoid pkg/raft depending on
// pkg/pipeline's call graph through pkg/types' wider surface; the two are
// kept numerically interchangeable (same field order and semantics).
type RaftID struct {
	Term  uint64
	Index uint64
}

// Less reports whether id sorts strictly before other.
func (id RaftID) Less(other RaftID) bool {
	if id.Term != other.Term {
		return id.Term < other.Term
	}
	return id.Index < other.Index
}

// VoteRequest is the RPC body for an election vote, per spec.md §6.
type VoteRequest struct {
	Term uint64
	Last RaftID
}

// VoteResponse answers a VoteRequest. Granted is false whenever
// Unregistered is true.
type VoteResponse struct {
	Term         uint64
	VoteGranted  bool
	Unregistered bool
}

// AppendEntriesRequest replicates a contiguous run of log entries, per
// spec.md §6.
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     PeerID
	LeaderCommit uint64
	Prev         RaftID
	Entries      []LogEntry
}

// AppendEntriesResponse is the follower's reply: either an Ack reporting
// how far it has matched, or a Reject. Hint carries the follower's last
// log RaftID; on a Reject the leader's replication loop does not read it
// and simply retries in its next round.
type AppendEntriesResponse struct {
	Term       uint64
	Acked      bool
	MatchIndex uint64
	Hint       RaftID
}

// UpdatePeersRequest is the post-join gossip bootstrap message: the full
// known peer membership, used to seed a newly joined node's peer table.
type UpdatePeersRequest struct {
	Peers []Peer
}

// LogEntry is one payload replicated through the Raft log. Data carries
// the already-serialized write batch pkg/pipeline will apply; the Raft
// layer never interprets it.
type LogEntry struct {
	ID   RaftID
	Data []byte
}

// Transport abstracts the peer-to-peer RPC surface (spec.md §6: Vote,
// AppendEntries, UpdatePeers, authenticated over TLS) so Node can be
// exercised without a live network. The concrete implementation — a
// mutually-authenticated gRPC client, mirroring pkg/api's TLS-secured
// grpc.Server — lives outside this package, alongside the rest of the
// external interface wiring.
type Transport interface {
	SendVote(ctx context.Context, peer Peer, req VoteRequest) (VoteResponse, error)
	SendAppendEntries(ctx context.Context, peer Peer, req AppendEntriesRequest) (AppendEntriesResponse, error)
	SendUpdatePeers(ctx context.Context, peer Peer, req UpdatePeersRequest) error
}
