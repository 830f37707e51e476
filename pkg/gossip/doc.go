// Package gossip defines the UDP wire contract peers use to discover each
// other and exchange liveness before a shard's Raft layer ever sees them:
// Join, JoinReply, Ping, and Pong, framed as AEAD-sealed packets under a
// pre-shared key. It is a wire-contract package only — no socket is opened
// here; spec.md's own split keeps the gossip transport itself (binding a
// UDP socket, running the receive loop) out of this core's scope, the same
// way the Raft RPC transport lives outside pkg/raft.
//
// Grounded on original_source/src/cluster/gossip/join.rs (the Join/
// JoinReply handshake) and spawn.rs (the AEAD-over-UDP framing, including
// its own explicit single-nonce caveat).
package gossip
