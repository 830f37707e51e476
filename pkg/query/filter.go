// Package query implements the filter-and-sort engine of spec.md §4.8:
// a recursive Filter tree evaluated iteratively over an explicit stack
// into a candidate roaring.Bitmap, a stable multi-key sort, and
// position/anchor/limit pagination, with ACL-bitmap masking for shared
// accounts.
//
// Grounded on pkg/bitmap's Intersect/Union/RangeToBitmap primitives for
// leaf evaluation, and original_source/components/store/src/read/query.rs
// for the explicit-stack evaluation shape and the sort/paginate-after-
// filter ordering.
package query

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/jmapstore/core/pkg/bitmap"
	"github.com/jmapstore/core/pkg/fts"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// Op selects a boolean combinator for an Operator filter node.
type Op uint8

const (
	OpAnd Op = iota
	OpOr
	OpNot
)

// CompareOp selects a leaf Condition's relational test against an
// indexed field's value, reusing pkg/bitmap's range comparator where the
// condition targets a range-scannable field.
type CompareOp uint8

const (
	CmpEqual CompareOp = iota
	CmpLessThan
	CmpLessOrEqual
	CmpGreaterThan
	CmpGreaterOrEqual
)

func toBitmapComparator(op CompareOp) bitmap.Comparator {
	switch op {
	case CmpLessThan:
		return bitmap.Lt
	case CmpLessOrEqual:
		return bitmap.Le
	case CmpGreaterThan:
		return bitmap.Gt
	case CmpGreaterOrEqual:
		return bitmap.Ge
	default:
		return bitmap.Eq
	}
}

// Filter is the recursive query tree from spec.md §4.8. Exactly one of
// the variant-specific fields is meaningful, selected by Kind.
type Filter struct {
	Kind FilterKind

	// Operator
	Op       Op
	Children []Filter

	// Condition: a tag, range, or full-text match against one field.
	Condition Condition

	// DocumentSet: an externally supplied candidate bitmap (e.g. an ACL
	// grant, or a result reference from a prior method call).
	DocumentSet *roaring.Bitmap
}

type FilterKind uint8

const (
	FilterNone FilterKind = iota
	FilterOperator
	FilterCondition
	FilterDocumentSet
)

// ConditionKind selects which primitive a Condition evaluates through.
type ConditionKind uint8

const (
	ConditionTag ConditionKind = iota
	ConditionRange
	ConditionText
)

// Condition is one leaf filter: a tag-membership test, a range scan over
// a sorted/indexed field, or a full-text (optionally phrase) match.
type Condition struct {
	Kind  ConditionKind
	Field uint8

	// ConditionTag
	Tag types.TagValue

	// ConditionRange
	Cmp        CompareOp
	RangeValue []byte

	// ConditionText
	Text     string
	Language string
	Phrase   bool
}

// None returns the filter that matches every live document.
func None() Filter { return Filter{Kind: FilterNone} }

// evalLeaf resolves a Condition into a bitmap of matching document IDs,
// already clamped to the live set by the pkg/bitmap primitives it calls.
func evalLeaf(r store.Reader, account types.AccountID, collection types.Collection, defaultLang string, c Condition) (*roaring.Bitmap, error) {
	switch c.Kind {
	case ConditionTag:
		return bitmap.Get(r, account, collection, c.Field, c.Tag)
	case ConditionRange:
		return bitmap.RangeToBitmap(r, account, collection, c.Field, toBitmapComparator(c.Cmp), c.RangeValue)
	case ConditionText:
		return evalText(r, account, collection, defaultLang, c)
	default:
		return roaring.New(), nil
	}
}

// evalText matches a full-text Condition: a single term becomes a
// bm_term lookup per token (intersected, since a field value must
// contain every token of a multi-word match), OR'd across a token's
// (exact, stemmed) pair; a phrase match additionally requires the
// matched positions to be consecutive via pkg/fts's phrase search.
func evalText(r store.Reader, account types.AccountID, collection types.Collection, defaultLang string, c Condition) (*roaring.Bitmap, error) {
	lang := c.Language
	if lang == "" {
		lang = defaultLang
	}
	tokens := fts.Tokenize(c.Text)
	if len(tokens) == 0 {
		return roaring.New(), nil
	}

	acc, err := termBitmap(r, account, collection, c.Field, tokens[0], lang, defaultLang)
	if err != nil {
		return nil, err
	}
	for _, tok := range tokens[1:] {
		if acc.IsEmpty() {
			break
		}
		bm, err := termBitmap(r, account, collection, c.Field, tok, lang, defaultLang)
		if err != nil {
			return nil, err
		}
		acc = roaring.And(acc, bm)
	}

	if !c.Phrase || acc.IsEmpty() {
		return acc, nil
	}
	return phraseFilter(r, account, collection, c.Field, c.Text, lang, defaultLang, acc)
}

func termBitmap(r store.Reader, account types.AccountID, collection types.Collection, field uint8, token, lang, defaultLang string) (*roaring.Bitmap, error) {
	stemmed := fts.Stem(token, lang, defaultLang)
	exactID := fts.TermID(token)
	stemmedID := fts.TermID(stemmed)

	exact, err := bitmap.GetTerm(r, account, collection, field, exactID, true)
	if err != nil {
		return nil, err
	}
	if stemmedID == exactID {
		return exact, nil
	}
	stemmedBM, err := bitmap.GetTerm(r, account, collection, field, stemmedID, false)
	if err != nil {
		return nil, err
	}
	return roaring.Or(exact, stemmedBM), nil
}

// phraseFilter narrows candidates to those whose stored positional term
// index (val_term_index) actually contains the phrase's tokens at
// consecutive positions within field, via pkg/fts.MatchesPhrase.
func phraseFilter(r store.Reader, account types.AccountID, collection types.Collection, field uint8, phrase, lang, defaultLang string, candidates *roaring.Bitmap) (*roaring.Bitmap, error) {
	tokens := fts.Tokenize(phrase)
	phraseTerms := make([]uint64, len(tokens))
	for i, tok := range tokens {
		phraseTerms[i] = fts.TermID(tok)
	}

	out := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		doc := it.Next()
		data, found, err := r.Get(store.FamilyValues, store.ValTermIndexKey(account, collection, types.DocumentID(doc)))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		idx, err := fts.Decompress(data)
		if err != nil {
			return nil, err
		}
		if fts.MatchesPhrase(fieldOnly(idx, field), phraseTerms) {
			out.Add(doc)
		}
	}
	return out, nil
}

// fieldOnly returns a DocumentIndex containing only idx's FieldPositions
// for field, so a phrase match doesn't cross into an unrelated field
// (e.g. a phrase spanning the tail of Subject and the head of a
// different indexed field, which spec.md §4.7 never intends to match).
func fieldOnly(idx fts.DocumentIndex, field uint8) fts.DocumentIndex {
	var out fts.DocumentIndex
	for _, f := range idx.Fields {
		if f.Field == field {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}
