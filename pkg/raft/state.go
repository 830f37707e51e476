package raft

import "time"

// PeerID identifies a peer within a shard. The local node has its own
// PeerID, assigned at cluster bootstrap/join time.
type PeerID uint64

// StateKind discriminates Node's current role, per spec.md §4.10:
// Wait, Candidate, VotedFor{peer}, Leader, Follower{peer}.
type StateKind uint8

const (
	StateWait StateKind = iota
	StateCandidate
	StateVotedFor
	StateLeader
	StateFollower
)

// State is a closed union over StateKind; only the fields relevant to Kind
// are meaningful.
type State struct {
	Kind        StateKind
	ElectionDue time.Time // Wait, Candidate, VotedFor
	PeerID      PeerID    // VotedFor, Follower
}

func waitState(due time.Time) State      { return State{Kind: StateWait, ElectionDue: due} }
func candidateState(due time.Time) State { return State{Kind: StateCandidate, ElectionDue: due} }
func votedForState(peer PeerID, due time.Time) State {
	return State{Kind: StateVotedFor, PeerID: peer, ElectionDue: due}
}
func leaderState() State             { return State{Kind: StateLeader} }
func followerState(peer PeerID) State { return State{Kind: StateFollower, PeerID: peer} }

// electionDue reports the state's election deadline and whether it has one
// (Leader and Follower don't run an election timer).
func (s State) electionDue() (time.Time, bool) {
	switch s.Kind {
	case StateWait, StateCandidate, StateVotedFor:
		return s.ElectionDue, true
	default:
		return time.Time{}, false
	}
}
