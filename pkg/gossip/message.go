package gossip

import (
	"encoding/json"
	"fmt"
)

// PeerID identifies a shard member in gossip messages. Kept distinct from
// pkg/raft.PeerID (same underlying shape) so this package never needs to
// import the Raft state machine just to describe a handshake.
type PeerID uint64

// UDPMaxPayload bounds a single gossip packet, chosen comfortably under
// the common 1500-byte Ethernet MTU so a sealed packet never fragments at
// the IP layer; the extracted source references a UDP_MAX_PAYLOAD
// constant without giving its value, so this is a reasoned substitute
// rather than a recovered one.
const UDPMaxPayload = 1400

// Kind tags which concrete message a Message's Payload holds.
type Kind string

const (
	KindJoin      Kind = "join"
	KindJoinReply Kind = "join_reply"
	KindPing      Kind = "ping"
	KindPong      Kind = "pong"
)

// Message is the tagged envelope every gossip packet carries, mirroring
// the Command{Op,Data} shape pkg/manager/fsm.go uses for Raft log
// commands — a JSON discriminated union rather than a sealed Go interface,
// so a new Kind can be added without breaking older peers' ability to at
// least recognize the envelope.
type Message struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Join is sent by a node attempting to enter a shard, addressed to a seed
// peer it already knows about.
type Join struct {
	Port uint16 `json:"port"`
}

// JoinReply answers Join with the id the seed peer has assigned the
// joiner; the joiner uses it to recognize its own UpdatePeers bootstrap
// that follows over the authenticated RPC channel.
type JoinReply struct {
	ID PeerID `json:"id"`
}

// Ping carries a digest of the sender's peer list (so the receiver can
// tell in one round trip whether its own membership view has drifted) and
// an opaque state snapshot the receiver echoes back interpretation-free.
type Ping struct {
	PeerListDigest [32]byte `json:"peer_list_digest"`
	State          uint64   `json:"state"`
}

// Pong answers a Ping with the responder's own view, so either side can
// detect a membership mismatch from a single exchange.
type Pong struct {
	PeerListDigest [32]byte `json:"peer_list_digest"`
	State          uint64   `json:"state"`
}

// EncodeJoin, EncodeJoinReply, EncodePing, and EncodePong build a Message
// envelope around their respective payload.
func EncodeJoin(m Join) (Message, error)           { return encode(KindJoin, m) }
func EncodeJoinReply(m JoinReply) (Message, error) { return encode(KindJoinReply, m) }
func EncodePing(m Ping) (Message, error)           { return encode(KindPing, m) }
func EncodePong(m Pong) (Message, error)           { return encode(KindPong, m) }

func encode(kind Kind, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("gossip: encoding %s payload: %w", kind, err)
	}
	return Message{Kind: kind, Payload: data}, nil
}

// DecodeJoin, DecodeJoinReply, DecodePing, and DecodePong unpack a
// Message's payload, returning an error if Kind doesn't match.
func DecodeJoin(m Message) (Join, error) {
	var v Join
	return v, decode(m, KindJoin, &v)
}

func DecodeJoinReply(m Message) (JoinReply, error) {
	var v JoinReply
	return v, decode(m, KindJoinReply, &v)
}

func DecodePing(m Message) (Ping, error) {
	var v Ping
	return v, decode(m, KindPing, &v)
}

func DecodePong(m Message) (Pong, error) {
	var v Pong
	return v, decode(m, KindPong, &v)
}

func decode(m Message, want Kind, out any) error {
	if m.Kind != want {
		return fmt.Errorf("gossip: expected %s message, got %s", want, m.Kind)
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return fmt.Errorf("gossip: decoding %s payload: %w", want, err)
	}
	return nil
}
