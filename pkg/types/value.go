package types

import "fmt"

// PropertyKind discriminates the typed union a document's property values
// carry. The set mirrors spec.md §3's Property list.
type PropertyKind uint8

const (
	KindID PropertyKind = iota
	KindText
	KindNumber
	KindBool
	KindDateTime
	KindTextList
	KindBlob
	KindTags
	KindSubscriptions
	KindACLSet
	KindACLGet
	KindKeys
)

// Value is a tagged union carrying one typed property value. Only the
// field matching Kind is meaningful; this avoids an interface{} field and
// the type-switch churn that comes with it at every call site, while still
// giving each collection's schema a single concrete type to store.
type Value struct {
	Kind PropertyKind

	ID       DocumentID
	Text     string
	Number   float64
	Bool     bool
	DateTime int64 // unix micros, UTC
	TextList []string
	Blob     BlobID
	Tags     []TagValue
	Keys     []string
	ACL      map[AccountID]ACLRights
}

// ACLRights is a bitmask of the rights an account has on a shared document.
type ACLRights uint16

const (
	ACLRead ACLRights = 1 << iota
	ACLModify
	ACLDelete
	ACLShare
	ACLSubmit
)

func (v Value) String() string {
	switch v.Kind {
	case KindID:
		return fmt.Sprintf("Id(%d)", v.ID)
	case KindText:
		return v.Text
	case KindNumber:
		return fmt.Sprintf("%v", v.Number)
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindDateTime:
		return fmt.Sprintf("DateTime(%d)", v.DateTime)
	case KindTextList:
		return fmt.Sprintf("%v", v.TextList)
	case KindBlob:
		return fmt.Sprintf("Blob(%x)", v.Blob.Hash)
	case KindTags, KindSubscriptions:
		return fmt.Sprintf("%v", v.Tags)
	case KindKeys:
		return fmt.Sprintf("%v", v.Keys)
	case KindACLSet, KindACLGet:
		return fmt.Sprintf("%v", v.ACL)
	default:
		return "<invalid>"
	}
}
