// Package raftapply bridges pkg/raft's Applier seam to pkg/pipeline: it
// decodes the write batch carried in a raft.LogEntry's Data field and
// runs it through a Pipeline, so the same validated WriteBatch a leader
// proposes is replayed identically by every follower.
//
// pkg/raft's Node does not implement pkg/pipeline.RaftAssigner; instead
// this package hands the Pipeline an assigner pinned to the RaftID the
// Node allocated, relying on pkg/raft.RaftID staying numerically
// interchangeable with pkg/types.RaftID: this package is exactly the
// translation the two packages leave to their caller.
package raftapply

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/jmapstore/core/pkg/pipeline"
	"github.com/jmapstore/core/pkg/raft"
	"github.com/jmapstore/core/pkg/types"
)

// replayAssigner hands the pipeline the exact (term, index) a raft log
// entry already carries, instead of minting a new one: the leader
// allocates once, in raft.Node.ProposeAndApply, and every replica
// (leader included, since Apply runs through the same Applier there too)
// must record that same ID against the batch it produces.
type replayAssigner struct {
	mu   sync.Mutex
	next types.RaftID
}

func (a *replayAssigner) set(id types.RaftID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = id
}

func (a *replayAssigner) NextRaftID() (types.RaftID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next, nil
}

// Applier implements raft.Applier over a pipeline.Pipeline constructed
// with this package's replayAssigner as its RaftAssigner.
type Applier struct {
	pipeline *pipeline.Pipeline
	assigner *replayAssigner
}

// New builds an Applier and the RaftAssigner the caller must pass to
// pipeline.New when constructing the Pipeline this Applier will drive.
// The two are returned together because they share the replayAssigner:
// pipeline.New needs it at construction, and Apply needs to set it before
// every call.
func New() (*Applier, pipeline.RaftAssigner) {
	a := &replayAssigner{}
	return &Applier{assigner: a}, a
}

// Bind attaches the Pipeline this Applier drives. Split from New because
// pipeline.New itself requires the RaftAssigner New returns, creating an
// unavoidable two-step construction: New, then pipeline.New(..., assigner,
// ...), then Bind(p).
func (a *Applier) Bind(p *pipeline.Pipeline) { a.pipeline = p }

// Apply decodes entry.Data as a gob-encoded pipeline.WriteBatch, pins the
// replay assigner to entry.ID translated into pkg/types' RaftID, and runs
// the batch through the pipeline.
//
// Undo is not implemented: pkg/raft only calls it to roll back entries a
// former leader applied speculatively before losing an election, which
// requires capturing the pipeline's per-key before-image inside the same
// store.Engine transaction Apply already commits through. pkg/pipeline
// does not expose a hook for that yet (Pipeline.Apply opens and commits
// its own store.Engine.Update transaction internally), so a real
// undo payload cannot be built here without changing that boundary. This
// is safe for a single-node deployment (BecomeLeader never finds
// pendingUndo non-empty when there has only ever been one voter) and is
// the known gap for multi-node rollback; Undo returns an error rather
// than silently doing nothing.
func (a *Applier) Apply(entry raft.LogEntry) ([]byte, error) {
	if a.pipeline == nil {
		return nil, fmt.Errorf("raftapply: Apply called before Bind")
	}
	var batch pipeline.WriteBatch
	if err := gob.NewDecoder(bytes.NewReader(entry.Data)).Decode(&batch); err != nil {
		return nil, fmt.Errorf("raftapply: decode batch for %s: %w", entry.ID, err)
	}
	a.assigner.set(types.RaftID{Term: entry.ID.Term, Index: entry.ID.Index})
	if err := a.pipeline.Apply(batch); err != nil {
		return nil, fmt.Errorf("raftapply: apply batch for %s: %w", entry.ID, err)
	}
	return nil, nil
}

func (a *Applier) Undo(entry raft.LogEntry, _ []byte) error {
	return fmt.Errorf("raftapply: undo of entry %s not supported (multi-node rollback not yet implemented)", entry.ID)
}

// EncodeBatch gob-encodes batch for use as a raft.Node.ProposeAndApply
// payload or a raft.LogEntry.Data value.
func EncodeBatch(batch pipeline.WriteBatch) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(batch); err != nil {
		return nil, fmt.Errorf("raftapply: encode batch: %w", err)
	}
	return buf.Bytes(), nil
}
