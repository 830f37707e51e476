package orm

import "github.com/jmapstore/core/pkg/types"

// FieldOp selects which family of operation a field update performs, per
// spec.md §4.5.
type FieldOp uint8

const (
	OpText FieldOp = iota
	OpTag
	OpBinary
	OpInteger
	OpLongInteger
	OpFloat
)

// FieldOptions is a bitmask of the write-pipeline behaviors spec.md §4.5
// attaches to a field update.
type FieldOptions uint8

const (
	OptStore FieldOptions = 1 << iota
	OptSort
	OptStoreAsBlob
	OptClear
	// OptFullText marks an OpText update as "Text/Full" (tokenized,
	// stemmed, positionally indexed) rather than "Text/Keyword" (a single
	// bitmap membership).
	OptFullText
)

func (o FieldOptions) Has(flag FieldOptions) bool { return o&flag != 0 }

// UpdateField is one field-level mutation within a WriteAction, exactly
// the shape spec.md §4.5 describes: the operation kind, its options, and
// whichever payload field is relevant to Op.
type UpdateField struct {
	Property uint8
	Op       FieldOp
	Options  FieldOptions

	Text      string
	Language  string // per-field language override; empty means batch default
	Tag       types.TagValue
	Binary    []byte
	BlobIndex uint16 // position among a document's blob fields, for StoreAsBlob ordering
	Integer   int64
	Float     float64
}
