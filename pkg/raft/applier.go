package raft

// Applier is the seam between the Raft log and the document store: it
// applies one replicated entry's payload (an encoded pkg/pipeline write
// batch) to local state, and can undo that same application later if the
// entry never reaches commit. Kept as a narrow interface here — rather
// than importing pkg/pipeline directly — for the same reason
// pkg/pipeline.RaftAssigner decouples the other direction: a follower
// replays batches through the pipeline, and the pipeline takes its RaftIDs
// through that interface rather than from this package. The concrete
// implementation is pkg/raftapply, wired by the process that owns both
// packages; its Undo returns an error and builds no inverse batch.
type Applier interface {
	// Apply applies entry's payload to local state and returns an opaque
	// undo payload capturing how to reverse it.
	Apply(entry LogEntry) (undo []byte, err error)

	// Undo reverses a previously applied entry using the undo payload
	// Apply returned for it.
	Undo(entry LogEntry, undo []byte) error
}
