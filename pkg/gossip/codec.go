package gossip

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Codec seals and opens gossip packets under a pre-shared key, per
// spec.md §6's "AEAD-encrypted with pre-shared key" requirement. The
// source uses AES-GCM-SIV with one static, reused nonce, justified there
// by SIV's nonce-misuse resistance; the retrieval pack carries no SIV
// implementation, so Codec uses chacha20poly1305 (an AEAD already reachable
// through the teacher's indirect golang.org/x/crypto dependency) with a
// fresh random nonce per packet instead — a strictly stronger, documented
// deviation rather than a silent one (see DESIGN.md).
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives a 256-bit key from the shared secret via SHA-256 (the
// secret need not already be exactly 32 bytes) and builds a Codec around
// it.
func NewCodec(sharedSecret []byte) (*Codec, error) {
	key := sha256.Sum256(sharedSecret)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("gossip: building AEAD: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Seal encodes m as JSON and encrypts it, prefixing the ciphertext with a
// fresh random nonce (chacha20poly1305.NonceSize bytes). The result never
// exceeds UDPMaxPayload for any message shape this package defines.
func (c *Codec) Seal(m Message) ([]byte, error) {
	plain, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("gossip: marshaling message: %w", err)
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("gossip: generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return sealed, nil
}

// Open reverses Seal: it splits off the leading nonce, decrypts, and
// unmarshals the envelope. A corrupted or forged packet (wrong key, wrong
// nonce length, tampered ciphertext) is reported as an error, never
// silently accepted — per-peer authentication happens over TLS before a
// node is trusted to join at all, so Open's job is integrity, not
// identity.
func (c *Codec) Open(packet []byte) (Message, error) {
	size := c.aead.NonceSize()
	if len(packet) < size {
		return Message{}, fmt.Errorf("gossip: packet shorter than nonce (%d bytes)", len(packet))
	}
	nonce, ciphertext := packet[:size], packet[size:]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Message{}, fmt.Errorf("gossip: opening packet: %w", err)
	}
	var m Message
	if err := json.Unmarshal(plain, &m); err != nil {
		return Message{}, fmt.Errorf("gossip: unmarshaling message: %w", err)
	}
	return m, nil
}
