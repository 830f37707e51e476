// Package types defines the shared data model that every core subsystem
// (store, ORM, pipeline, change log, raft) builds on: accounts, collections,
// documents, tags, blobs, change IDs, raft IDs, and JMAP state tokens.
package types

import (
	"fmt"
	"math"
)

// AccountID uniquely identifies a tenant. All keys in the store are scoped
// by account.
type AccountID uint32

// DocumentID identifies a document within an (AccountID, Collection) space.
// Allocated by pkg/alloc, monotonic and reusable once tombstoned and purged.
type DocumentID uint32

// Collection is the small enumerated tag that selects a document's
// container within an account.
type Collection uint8

const (
	CollectionMail Collection = iota
	CollectionMailbox
	CollectionThread
	CollectionIdentity
	CollectionEmailSubmission
	CollectionPushSubscription
	CollectionVacationResponse
	CollectionPrincipal
	collectionMax
)

func (c Collection) String() string {
	switch c {
	case CollectionMail:
		return "Mail"
	case CollectionMailbox:
		return "Mailbox"
	case CollectionThread:
		return "Thread"
	case CollectionIdentity:
		return "Identity"
	case CollectionEmailSubmission:
		return "EmailSubmission"
	case CollectionPushSubscription:
		return "PushSubscription"
	case CollectionVacationResponse:
		return "VacationResponse"
	case CollectionPrincipal:
		return "Principal"
	default:
		return fmt.Sprintf("Collection(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the enumerated collections.
func (c Collection) Valid() bool { return c < collectionMax }

// Collections lists every collection tag, in enumeration order.
func Collections() []Collection {
	out := make([]Collection, 0, int(collectionMax))
	for c := Collection(0); c < collectionMax; c++ {
		out = append(out, c)
	}
	return out
}

// ChangeID is the monotonic per-(account, collection) counter embedded in
// JMAP state tokens.
type ChangeID uint64

// NoChangeID is the sentinel used before any write has happened in a
// collection.
const NoChangeID ChangeID = 0

// Tag identifies a bitmap-indexed membership key: a (field, value) pair. TagValue is a closed union of the three shapes the spec
// allows for a tag value.
type Tag struct {
	Field uint8
	Value TagValue
}

// TagValueKind discriminates the TagValue union.
type TagValueKind uint8

const (
	TagValueID TagValueKind = iota
	TagValueStatic
	TagValueText
)

// TagValue is a (document ID | small integer | short text) tag value.
type TagValue struct {
	Kind   TagValueKind
	ID     DocumentID
	Static uint32
	Text   string
}

func TagID(id DocumentID) TagValue     { return TagValue{Kind: TagValueID, ID: id} }
func TagStatic(v uint32) TagValue      { return TagValue{Kind: TagValueStatic, Static: v} }
func TagText(s string) TagValue        { return TagValue{Kind: TagValueText, Text: s} }

// Bytes returns the big-endian / raw encoding of the tag value used as a
// key suffix, so that lexicographic iteration matches the intended order.
func (v TagValue) Bytes() []byte {
	switch v.Kind {
	case TagValueID:
		return beUint32(uint32(v.ID))
	case TagValueStatic:
		return beUint32(v.Static)
	default:
		return []byte(v.Text)
	}
}

func beUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// BlobHash is the content hash (SHA-256) that addresses a blob.
type BlobHash [32]byte

// BlobID addresses a blob reference from a document, optionally a parsed
// MIME sub-part of a larger base blob.
type BlobID struct {
	Hash        BlobHash
	InnerPartID int32 // -1 when this references the whole blob
}

const NoInnerPart int32 = -1

// RaftID totally orders raft log entries lexicographically: term first,
// then index. (math.MaxUint64, math.MaxUint64) is the "none" sentinel.
type RaftID struct {
	Term  uint64
	Index uint64
}

// NoRaftID is the reserved "none" sentinel.
var NoRaftID = RaftID{Term: math.MaxUint64, Index: math.MaxUint64}

// Less reports whether id sorts strictly before other.
func (id RaftID) Less(other RaftID) bool {
	if id.Term != other.Term {
		return id.Term < other.Term
	}
	return id.Index < other.Index
}

func (id RaftID) String() string {
	if id == NoRaftID {
		return "none"
	}
	return fmt.Sprintf("%d:%d", id.Term, id.Index)
}

// ACLToken carries the resolved principal and the accounts/groups it may
// act through, consulted by the query/get paths to mask results.
type ACLToken struct {
	PrimaryID AccountID
	MemberOf  []AccountID
	AccessTo  []AccountID
}

// HasAccess reports whether the token grants access to account via
// membership or direct sharing.
func (t ACLToken) HasAccess(account AccountID) bool {
	if t.PrimaryID == account {
		return true
	}
	for _, a := range t.MemberOf {
		if a == account {
			return true
		}
	}
	for _, a := range t.AccessTo {
		if a == account {
			return true
		}
	}
	return false
}
