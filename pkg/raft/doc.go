// Package raft implements the election, replication, commit-advancement,
// and rollback state machine of spec.md §4.10. It stores its log entries
// through github.com/hashicorp/raft's Log/LogStore/StableStore types,
// backed by github.com/hashicorp/raft-boltdb, exactly as the teacher wires
// raft-log.db/raft-stable.db in pkg/manager/manager.go — but drives them
// with a hand-written state machine rather than raft.Raft, because median-
// quorum commit advancement and inverse-apply rollback on leadership change
// are not expressible as a raft.Raft extension point.
//
// Grounded on original_source/src/cluster/raft.rs and
// original_source/src/cluster/raft/leader.rs for the state shape, the
// vote/commit/rollback rules, and the per-peer replication-task design;
// renamed throughout (Cluster/Peer/JMAPServer → Node/Peer/the exported
// Node methods) and restated as explicit Go control flow instead of an
// async/await state machine.
package raft
