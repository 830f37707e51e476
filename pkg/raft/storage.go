package raft

import (
	"path/filepath"

	hraft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Storage bundles the two BoltDB-backed stores the Raft log needs: an
// append-only log of replicated entries and a small set of durable scalars
// (current term, voted-for). Wired exactly as pkg/manager/manager.go wires
// raft-log.db/raft-stable.db for hashicorp/raft's own engine — only here
// LogStore/StableStore are the only pieces of that library in play; the
// state machine driving them is hand-written (see node.go).
type Storage struct {
	Log    hraft.LogStore
	Stable hraft.StableStore
}

// OpenStorage opens (creating if absent) the log and stable stores under
// dataDir.
func OpenStorage(dataDir string) (*Storage, error) {
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-log.db"))
	if err != nil {
		return nil, err
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-stable.db"))
	if err != nil {
		return nil, err
	}
	return &Storage{Log: logStore, Stable: stableStore}, nil
}

// AppendEntry persists one LogEntry to the log store.
func (s *Storage) AppendEntry(entry LogEntry) error {
	return s.Log.StoreLog(&hraft.Log{
		Index: entry.ID.Index,
		Term:  entry.ID.Term,
		Type:  hraft.LogCommand,
		Data:  entry.Data,
	})
}

// GetEntry reads back the entry at index, returning ok=false if the log
// store has no entry there (compacted away or never written).
func (s *Storage) GetEntry(index uint64) (LogEntry, bool, error) {
	var raw hraft.Log
	if err := s.Log.GetLog(index, &raw); err != nil {
		if err == hraft.ErrLogNotFound {
			return LogEntry{}, false, nil
		}
		return LogEntry{}, false, err
	}
	return LogEntry{ID: RaftID{Term: raw.Term, Index: raw.Index}, Data: raw.Data}, true, nil
}

// LastIndex returns the highest index stored, or 0 if the log is empty.
func (s *Storage) LastIndex() (uint64, error) {
	return s.Log.LastIndex()
}

// TruncateAfter deletes every entry with index > after, used when a new
// leader discards the uncommitted tail of its own log after undoing it
// (see Node.BecomeLeader).
func (s *Storage) TruncateAfter(after uint64) error {
	last, err := s.Log.LastIndex()
	if err != nil {
		return err
	}
	if last <= after {
		return nil
	}
	return s.Log.DeleteRange(after+1, last)
}

const stableKeyVotedFor = "voted_for"

// SaveVotedFor / LoadVotedFor persist the candidate this node voted for in
// the current term, so a crash and restart mid-term can't grant a second,
// conflicting vote.
func (s *Storage) SaveVotedFor(peer PeerID) error {
	return s.Stable.SetUint64([]byte(stableKeyVotedFor), uint64(peer))
}

func (s *Storage) LoadVotedFor() (PeerID, bool, error) {
	v, err := s.Stable.GetUint64([]byte(stableKeyVotedFor))
	if err != nil {
		if err == hraft.ErrKeyNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return PeerID(v), true, nil
}
