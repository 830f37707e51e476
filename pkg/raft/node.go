package raft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmapstore/core/pkg/log"
)

// Node drives one shard member's Raft state machine: election, vote
// handling, commit-index advancement, and rollback, per spec.md §4.10.
// All mutable state is guarded by mu; the state machine itself never
// blocks while holding it — every RPC or timer callback processes to
// completion and returns, matching the single-event-at-a-time rule of
// spec.md §5.
type Node struct {
	mu sync.Mutex

	self    PeerID
	shardID uint32
	addr    string

	term  uint64
	state State
	peers []*Peer

	lastLog          RaftID
	uncommittedIndex uint64
	commitIndex      uint64

	// pendingUndo holds the undo payload for every applied-but-not-yet-
	// committed entry, keyed by log index. Entries are dropped from here
	// the moment commitIndex passes them.
	pendingUndo map[uint64][]byte

	// rollbackPending is set when this node steps down from Leader: its
	// own uncommitted entries were applied speculatively under a term
	// that is now stale, so it must not campaign again until BecomeLeader
	// has rolled them back (should it win a future election).
	rollbackPending bool

	storage   *Storage
	applier   Applier
	transport Transport

	stopReplication map[PeerID]context.CancelFunc

	notifyMu    sync.Mutex
	notifyChans map[PeerID]chan struct{}
}

// NewNode constructs a Node in the initial Wait state with an immediate
// election timer (so a freshly started single-node shard can elect itself
// without delay).
func NewNode(self PeerID, shardID uint32, addr string, storage *Storage, applier Applier, transport Transport) *Node {
	return &Node{
		self:            self,
		shardID:         shardID,
		addr:            addr,
		state:           waitState(nextElectionDeadline(true)),
		lastLog:         RaftID{},
		pendingUndo:     make(map[uint64][]byte),
		storage:         storage,
		applier:         applier,
		transport:       transport,
		stopReplication: make(map[PeerID]context.CancelFunc),
	}
}

// AddPeer registers a peer this node will vote-request, replicate to, or
// receive RPCs from.
func (n *Node) AddPeer(p *Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers = append(n.peers, p)
	if n.state.Kind == StateLeader {
		n.startReplicationLocked(p)
	}
}

func (n *Node) getPeerLocked(id PeerID) (*Peer, bool) {
	for _, p := range n.peers {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// IsKnownPeer reports whether id has been registered via AddPeer/UpdatePeers.
func (n *Node) IsKnownPeer(id PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.getPeerLocked(id)
	return ok
}

// shardCountsLocked returns (total in-shard peers excluding self, of
// which this many are not marked Offline).
func (n *Node) shardCountsLocked() (total, healthy int) {
	for _, p := range n.peers {
		if !p.IsInShard(n.shardID) {
			continue
		}
		total++
		if !p.Offline {
			healthy++
		}
	}
	return total, healthy
}

// electionQuorumFloor is the minimum count of healthy peers (besides
// self) that must be reachable before this node will even attempt an
// election; voteMajority is the number of total votes (including self's
// own) an election actually needs to win. Both derive from N = other
// in-shard peers, per spec.md §4.10's quorum rule.
func electionQuorumFloor(total int) int { return (total + 1) / 2 }
func voteMajority(total int) int        { return (total+1)/2 + 1 }

// HasElectionQuorum reports whether enough peers in this node's shard are
// currently healthy to make an election worth attempting.
func (n *Node) HasElectionQuorum() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	total, healthy := n.shardCountsLocked()
	return healthy >= electionQuorumFloor(total)
}

// Stats is a point-in-time snapshot of a Node's replication state, for
// pkg/metrics's collector.
type Stats struct {
	ShardID      uint32
	Term         uint64
	CommitIndex  uint64
	IsLeader     bool
	PeersTotal   int
	PeersHealthy int
}

// Stats returns a snapshot of this node's current replication state.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	total, healthy := n.shardCountsLocked()
	return Stats{
		ShardID:      n.shardID,
		Term:         n.term,
		CommitIndex:  n.commitIndex,
		IsLeader:     n.state.Kind == StateLeader,
		PeersTotal:   total,
		PeersHealthy: healthy,
	}
}

// IsElectionDue reports whether now has passed this node's election
// deadline (Leader and Follower never have one, so they are never due).
func (n *Node) IsElectionDue(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	due, has := n.state.electionDue()
	return has && !now.Before(due)
}

// TimeToNextElection returns how long until the election timer fires, or
// ok=false if this node has no timer running (Leader/Follower).
func (n *Node) TimeToNextElection(now time.Time) (time.Duration, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	due, has := n.state.electionDue()
	if !has {
		return 0, false
	}
	if due.Before(now) {
		return 0, true
	}
	return due.Sub(now), true
}

// LogIsBehindOrEq reports whether (lastTerm, lastIndex) is at least as
// up-to-date as this node's own log — last-log-term dominates, tie-break
// on last-log-index, per spec.md §4.10.
func (n *Node) LogIsBehindOrEq(lastTerm, lastIndex uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logIsBehindOrEqLocked(lastTerm, lastIndex)
}

func (n *Node) logIsBehindOrEqLocked(lastTerm, lastIndex uint64) bool {
	if lastTerm != n.lastLog.Term {
		return lastTerm > n.lastLog.Term
	}
	return lastIndex >= n.lastLog.Index
}

// LogIsBehind is the strict form: (lastTerm, lastIndex) is strictly more
// up-to-date than this node's own log.
func (n *Node) LogIsBehind(lastTerm, lastIndex uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logIsBehindLocked(lastTerm, lastIndex)
}

func (n *Node) logIsBehindLocked(lastTerm, lastIndex uint64) bool {
	if lastTerm != n.lastLog.Term {
		return lastTerm > n.lastLog.Term
	}
	return lastIndex > n.lastLog.Index
}

// CanGrantVote reports whether this node may still grant its vote this
// term to candidate — true in Wait, true for VotedFor iff it's the same
// candidate, false once Leader/Follower/Candidate.
func (n *Node) CanGrantVote(candidate PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state.Kind {
	case StateWait:
		return true
	case StateVotedFor:
		return n.state.PeerID == candidate
	default:
		return false
	}
}

// LeaderPeerID returns the peer this node currently believes leads the
// shard (itself, if Leader), and ok=false if no leader is known.
func (n *Node) LeaderPeerID() (PeerID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state.Kind {
	case StateLeader:
		return n.self, true
	case StateFollower:
		return n.state.PeerID, true
	default:
		return 0, false
	}
}

func (n *Node) IsLeading() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Kind == StateLeader
}

func (n *Node) IsCandidate() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Kind == StateCandidate
}

func (n *Node) IsFollowing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Kind == StateFollower
}

// Term returns the current term.
func (n *Node) Term() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.term
}

func (n *Node) resetVotesLocked() {
	for _, p := range n.peers {
		p.VoteGranted = false
	}
}

// StartElectionTimer moves this node to Wait and (re)arms its election
// timer, stopping any leader replication tasks it was running.
func (n *Node) StartElectionTimer(immediate bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopReplicationLocked()
	n.state = waitState(nextElectionDeadline(immediate))
	n.resetVotesLocked()
}

// StepDown adopts term (observed from a higher-term message) and reverts
// to Wait, per spec.md §4.10's "step down" rule. If this node was Leader,
// it now carries a pending rollback: the entries it applied speculatively
// under the stale term cannot be trusted until undone.
func (n *Node) StepDown(term uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	wasLeader := n.state.Kind == StateLeader
	n.stopReplicationLocked()
	n.term = term
	n.resetVotesLocked()
	if wasLeader {
		n.rollbackPending = true
	}
	// Keep an already-running timer if it hasn't expired yet, else arm a
	// fresh one — mirrors the source's "keep the existing deadline unless
	// it's already passed" rule.
	if due, has := n.state.electionDue(); has && due.After(time.Now()) {
		n.state = waitState(due)
		return
	}
	n.state = waitState(nextElectionDeadline(false))
	log.Logger.Debug().Uint64("term", term).Str("addr", n.addr).Msg("raft: stepping down")
}

// VoteFor records a vote for peer in the current term.
func (n *Node) VoteFor(peer PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = votedForState(peer, nextElectionDeadline(false))
	n.resetVotesLocked()
	if n.storage != nil {
		if err := n.storage.SaveVotedFor(peer); err != nil {
			log.Logger.Warn().Err(err).Msg("raft: failed to persist voted-for")
		}
	}
}

// FollowLeader adopts Follower{peer}, stopping any election timer.
func (n *Node) FollowLeader(peer PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopReplicationLocked()
	n.state = followerState(peer)
	n.resetVotesLocked()
}

// RunForElection transitions to Candidate and increments the term.
func (n *Node) RunForElection(immediate bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = candidateState(nextElectionDeadline(immediate))
	n.term++
	n.resetVotesLocked()
}

// RequestVotes is the election-trigger entry point: if a quorum of
// healthy peers is reachable, no peer's log is strictly ahead, and this
// node has no pending rollback, it campaigns; otherwise it just resets
// its timer. ctx bounds the outbound vote RPCs.
func (n *Node) RequestVotes(ctx context.Context, immediate bool) error {
	n.mu.Lock()
	if n.state.Kind == StateLeader || n.state.Kind == StateFollower {
		n.mu.Unlock()
		return nil
	}
	total, healthy := n.shardCountsLocked()
	if healthy < electionQuorumFloor(total) {
		n.state = waitState(nextElectionDeadline(false))
		n.mu.Unlock()
		return nil
	}

	for _, p := range n.peers {
		if p.IsInShard(n.shardID) && !p.Offline && n.logIsBehindLocked(p.LastLogTerm, p.LastLogIndex) {
			// A more up-to-date peer exists; wait for its own vote
			// request instead of campaigning ourselves.
			n.state = waitState(nextElectionDeadline(false))
			n.mu.Unlock()
			return nil
		}
	}

	if n.rollbackPending {
		n.state = waitState(nextElectionDeadline(false))
		n.mu.Unlock()
		return nil
	}

	n.state = candidateState(nextElectionDeadline(immediate))
	n.term++
	n.resetVotesLocked()
	term := n.term
	lastLog := n.lastLog
	peers := append([]*Peer(nil), n.peers...)

	// A shard with no in-shard peers at all wins on the self-vote alone;
	// nothing else would ever call HandleVoteResponse to notice that.
	if voteMajority(total) <= 1 {
		n.mu.Unlock()
		return n.BecomeLeader()
	}
	n.mu.Unlock()

	for _, p := range peers {
		if !p.IsInShard(n.shardID) || p.Offline {
			continue
		}
		p := p
		go func() {
			resp, err := n.transport.SendVote(ctx, *p, VoteRequest{Term: term, Last: lastLog})
			if err != nil {
				log.Logger.Debug().Err(err).Msg("raft: vote request failed")
				return
			}
			if err := n.HandleVoteResponse(p.ID, resp); err != nil {
				log.Logger.Warn().Err(err).Msg("raft: vote response handling failed")
			}
		}()
	}
	return nil
}

// HandleVoteRequest answers a peer's VoteRequest.
func (n *Node) HandleVoteRequest(peer PeerID, req VoteRequest) VoteResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, known := n.getPeerLocked(peer); !known {
		return VoteResponse{Unregistered: true}
	}
	if n.term < req.Term {
		n.mu.Unlock()
		n.StepDown(req.Term)
		n.mu.Lock()
	}
	if n.term != req.Term {
		return VoteResponse{Term: n.term}
	}

	canGrant := false
	switch n.state.Kind {
	case StateWait:
		canGrant = true
	case StateVotedFor:
		canGrant = n.state.PeerID == peer
	}
	if canGrant && n.logIsBehindOrEqLocked(req.Last.Term, req.Last.Index) {
		n.state = votedForState(peer, nextElectionDeadline(false))
		n.resetVotesLocked()
		return VoteResponse{Term: n.term, VoteGranted: true}
	}
	return VoteResponse{Term: n.term}
}

// HandleVoteResponse folds a peer's vote reply into this node's election
// state, becoming leader once a majority is reached.
func (n *Node) HandleVoteResponse(peer PeerID, resp VoteResponse) error {
	n.mu.Lock()
	if n.term < resp.Term {
		n.mu.Unlock()
		n.StepDown(resp.Term)
		return nil
	}
	if n.state.Kind != StateCandidate || !resp.VoteGranted || n.term != resp.Term {
		n.mu.Unlock()
		return nil
	}

	total, _ := n.shardCountsLocked()
	needed := voteMajority(total)
	votes := 1 // self
	if p, ok := n.getPeerLocked(peer); ok && p.IsInShard(n.shardID) {
		p.VoteGranted = true
	}
	for _, p := range n.peers {
		if p.IsInShard(n.shardID) && p.VoteGranted {
			votes++
		}
	}
	won := votes >= needed
	n.mu.Unlock()

	if won {
		return n.BecomeLeader()
	}
	return nil
}

func (n *Node) stopReplicationLocked() {
	for id, cancel := range n.stopReplication {
		cancel()
		delete(n.stopReplication, id)
	}
	n.notifyMu.Lock()
	n.notifyChans = nil
	n.notifyMu.Unlock()
}

// BecomeLeader performs the rollback described in spec.md §4.10 (undoing
// any uncommitted entries this node applied under a now-stale term),
// resets its log tail pointers to the last safely committed entry, and
// spawns one replication task per in-shard peer. Only after rollback
// completes does it start accepting client writes (ProposeAndApply).
func (n *Node) BecomeLeader() error {
	n.mu.Lock()

	last, err := n.storage.LastIndex()
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("raft: reading last index: %w", err)
	}
	for idx := last; idx > n.commitIndex; idx-- {
		undo, ok := n.pendingUndo[idx]
		if !ok {
			continue
		}
		entry, found, err := n.storage.GetEntry(idx)
		if err != nil {
			n.mu.Unlock()
			return fmt.Errorf("raft: reading entry %d for rollback: %w", idx, err)
		}
		if found {
			if err := n.applier.Undo(entry, undo); err != nil {
				n.mu.Unlock()
				return fmt.Errorf("raft: undoing entry %d: %w", idx, err)
			}
		}
		delete(n.pendingUndo, idx)
	}
	if err := n.storage.TruncateAfter(n.commitIndex); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("raft: truncating log: %w", err)
	}

	if n.commitIndex == 0 {
		n.lastLog = RaftID{}
	} else {
		entry, found, err := n.storage.GetEntry(n.commitIndex)
		if err != nil {
			n.mu.Unlock()
			return fmt.Errorf("raft: reading committed tail: %w", err)
		}
		if found {
			n.lastLog = entry.ID
		}
	}
	n.uncommittedIndex = n.lastLog.Index
	n.rollbackPending = false

	n.stopReplicationLocked()
	n.state = leaderState()
	n.resetVotesLocked()
	for _, p := range n.peers {
		if p.IsInShard(n.shardID) {
			n.startReplicationLocked(p)
		}
	}
	addr := n.addr
	term := n.term
	n.mu.Unlock()

	log.Logger.Debug().Str("addr", addr).Uint64("term", term).Msg("raft: became leader")
	return nil
}
