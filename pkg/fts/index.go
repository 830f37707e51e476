package fts

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"

	"github.com/klauspost/compress/s2"
)

// TermID is a stable hash of a token, used as the bitmap/index key instead
// of the raw string. Spec.md §4.7: "term_id = hash(word)".
func TermID(word string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(word))
	return h.Sum64()
}

// Pair is the (exact, stemmed) term ID pair spec.md §4.7 emits per token.
type Pair struct {
	Exact   uint64
	Stemmed uint64
}

// TermsForField tokenizes and stems text for a given language, returning
// one Pair per surviving token plus its position (0-based token index
// within the field).
func TermsForField(text, lang, defaultLang string) []struct {
	Pair
	Position uint32
} {
	tokens := Tokenize(text)
	out := make([]struct {
		Pair
		Position uint32
	}, 0, len(tokens))
	for i, tok := range tokens {
		stemmed := Stem(tok, lang, defaultLang)
		out = append(out, struct {
			Pair
			Position uint32
		}{
			Pair:     Pair{Exact: TermID(tok), Stemmed: TermID(stemmed)},
			Position: uint32(i),
		})
	}
	return out
}

// FieldPositions is the positional term sequence for one (field,
// blob_index) pair within a document.
type FieldPositions struct {
	Field     uint8
	BlobIndex uint16
	Terms     []TermPosition
}

// TermPosition is one occurrence of a term (by exact term ID) at a token
// position within a field.
type TermPosition struct {
	TermID   uint64
	Position uint32
}

// DocumentIndex is the full positional term index for one document: one
// FieldPositions per indexed field/part, per spec.md §4.7.
type DocumentIndex struct {
	Fields []FieldPositions
}

// Compress serializes and compresses idx with s2, for storage under
// val_term_index.
func Compress(idx DocumentIndex) []byte {
	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(idx.Fields)))
	for _, f := range idx.Fields {
		buf.WriteByte(f.Field)
		putUvarint(&buf, uint64(f.BlobIndex))
		putUvarint(&buf, uint64(len(f.Terms)))
		for _, tp := range f.Terms {
			putUvarint(&buf, tp.TermID)
			putUvarint(&buf, uint64(tp.Position))
		}
	}
	return s2.Encode(nil, buf.Bytes())
}

// Decompress is the inverse of Compress.
func Decompress(data []byte) (DocumentIndex, error) {
	raw, err := s2.Decode(nil, data)
	if err != nil {
		return DocumentIndex{}, err
	}
	r := bytes.NewReader(raw)
	nFields, err := binary.ReadUvarint(r)
	if err != nil {
		return DocumentIndex{}, err
	}
	idx := DocumentIndex{Fields: make([]FieldPositions, 0, nFields)}
	for i := uint64(0); i < nFields; i++ {
		var fieldByte [1]byte
		if _, err := r.Read(fieldByte[:]); err != nil {
			return DocumentIndex{}, err
		}
		blobIndex, err := binary.ReadUvarint(r)
		if err != nil {
			return DocumentIndex{}, err
		}
		nTerms, err := binary.ReadUvarint(r)
		if err != nil {
			return DocumentIndex{}, err
		}
		terms := make([]TermPosition, 0, nTerms)
		for j := uint64(0); j < nTerms; j++ {
			termID, err := binary.ReadUvarint(r)
			if err != nil {
				return DocumentIndex{}, err
			}
			pos, err := binary.ReadUvarint(r)
			if err != nil {
				return DocumentIndex{}, err
			}
			terms = append(terms, TermPosition{TermID: termID, Position: uint32(pos)})
		}
		idx.Fields = append(idx.Fields, FieldPositions{
			Field:     fieldByte[0],
			BlobIndex: uint16(blobIndex),
			Terms:     terms,
		})
	}
	return idx, nil
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}
