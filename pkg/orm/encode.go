package orm

import (
	"encoding/binary"
	"math"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/types"
)

// EncodeStoredValue is the exported form of encodeStoredValue, for callers
// outside this package (pkg/pipeline's tag-property reconciliation) that
// need to build a val_stored payload from a types.Value they assembled
// themselves rather than from a Schema.IndexAs result.
func EncodeStoredValue(v types.Value) []byte { return encodeStoredValue(v) }

// encodeStoredValue serializes a types.Value into the byte payload written
// to a val_stored key. The format is deliberately simple (kind byte,
// length-prefixed fields) since it is read back only by DecodeValue in
// this same package; there is no cross-process wire contract to keep
// stable, unlike the JMAP JSON surface.
func encodeStoredValue(v types.Value) []byte {
	buf := []byte{byte(v.Kind)}
	switch v.Kind {
	case types.KindID:
		return append(buf, beU32(uint32(v.ID))...)
	case types.KindText:
		return append(buf, encodeString(v.Text)...)
	case types.KindNumber:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Number))
		return append(buf, b...)
	case types.KindBool:
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	case types.KindDateTime:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.DateTime))
		return append(buf, b...)
	case types.KindTextList, types.KindKeys:
		list := v.TextList
		if v.Kind == types.KindKeys {
			list = v.Keys
		}
		return append(buf, encodeStringList(list)...)
	case types.KindBlob:
		b := append([]byte{}, v.Blob.Hash[:]...)
		ip := make([]byte, 4)
		binary.BigEndian.PutUint32(ip, uint32(v.Blob.InnerPartID))
		return append(append(buf, b...), ip...)
	case types.KindTags, types.KindSubscriptions:
		return append(buf, encodeTagList(v.Tags)...)
	case types.KindACLSet, types.KindACLGet:
		return append(buf, encodeACL(v.ACL)...)
	default:
		return buf
	}
}

// DecodeValue is the inverse of encodeStoredValue.
func DecodeValue(data []byte) (types.Value, error) {
	if len(data) == 0 {
		return types.Value{}, jmaperr.New(jmaperr.KindDataCorruption, "empty stored value")
	}
	kind := types.PropertyKind(data[0])
	rest := data[1:]
	switch kind {
	case types.KindID:
		if len(rest) < 4 {
			return types.Value{}, shortRead()
		}
		return types.Value{Kind: kind, ID: types.DocumentID(binary.BigEndian.Uint32(rest))}, nil
	case types.KindText:
		s, err := decodeString(rest)
		return types.Value{Kind: kind, Text: s}, err
	case types.KindNumber:
		if len(rest) < 8 {
			return types.Value{}, shortRead()
		}
		return types.Value{Kind: kind, Number: math.Float64frombits(binary.BigEndian.Uint64(rest))}, nil
	case types.KindBool:
		if len(rest) < 1 {
			return types.Value{}, shortRead()
		}
		return types.Value{Kind: kind, Bool: rest[0] != 0}, nil
	case types.KindDateTime:
		if len(rest) < 8 {
			return types.Value{}, shortRead()
		}
		return types.Value{Kind: kind, DateTime: int64(binary.BigEndian.Uint64(rest))}, nil
	case types.KindTextList, types.KindKeys:
		list, err := decodeStringList(rest)
		if err != nil {
			return types.Value{}, err
		}
		if kind == types.KindKeys {
			return types.Value{Kind: kind, Keys: list}, nil
		}
		return types.Value{Kind: kind, TextList: list}, nil
	case types.KindBlob:
		if len(rest) < 36 {
			return types.Value{}, shortRead()
		}
		var hash types.BlobHash
		copy(hash[:], rest[:32])
		inner := int32(binary.BigEndian.Uint32(rest[32:36]))
		return types.Value{Kind: kind, Blob: types.BlobID{Hash: hash, InnerPartID: inner}}, nil
	case types.KindTags, types.KindSubscriptions:
		tags, err := decodeTagList(rest)
		return types.Value{Kind: kind, Tags: tags}, err
	case types.KindACLSet, types.KindACLGet:
		acl, err := decodeACL(rest)
		return types.Value{Kind: kind, ACL: acl}, err
	default:
		return types.Value{}, jmaperr.New(jmaperr.KindDataCorruption, "unknown stored value kind")
	}
}

func shortRead() error {
	return jmaperr.New(jmaperr.KindDataCorruption, "truncated stored value")
}

func beU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func encodeString(s string) []byte {
	b := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(b, uint32(len(s)))
	copy(b[4:], s)
	return b
}

func decodeString(data []byte) (string, error) {
	if len(data) < 4 {
		return "", shortRead()
	}
	n := binary.BigEndian.Uint32(data)
	if uint32(len(data)-4) < n {
		return "", shortRead()
	}
	return string(data[4 : 4+n]), nil
}

func encodeStringList(list []string) []byte {
	buf := beU32(uint32(len(list)))
	for _, s := range list {
		buf = append(buf, encodeString(s)...)
	}
	return buf
}

func decodeStringList(data []byte) ([]string, error) {
	if len(data) < 4 {
		return nil, shortRead()
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := decodeString(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		data = data[4+len(s):]
	}
	return out, nil
}

func encodeTagList(tags []types.TagValue) []byte {
	buf := beU32(uint32(len(tags)))
	for _, t := range tags {
		buf = append(buf, byte(t.Kind))
		tb := t.Bytes()
		buf = append(buf, beU32(uint32(len(tb)))...)
		buf = append(buf, tb...)
	}
	return buf
}

func decodeTagList(data []byte) ([]types.TagValue, error) {
	if len(data) < 4 {
		return nil, shortRead()
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	out := make([]types.TagValue, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(data) < 1+4 {
			return nil, shortRead()
		}
		kind := types.TagValueKind(data[0])
		ln := binary.BigEndian.Uint32(data[1:5])
		data = data[5:]
		if uint32(len(data)) < ln {
			return nil, shortRead()
		}
		payload := data[:ln]
		data = data[ln:]
		switch kind {
		case types.TagValueID:
			out = append(out, types.TagID(types.DocumentID(binary.BigEndian.Uint32(payload))))
		case types.TagValueStatic:
			out = append(out, types.TagStatic(binary.BigEndian.Uint32(payload)))
		default:
			out = append(out, types.TagText(string(payload)))
		}
	}
	return out, nil
}

func encodeACL(m map[types.AccountID]types.ACLRights) []byte {
	buf := beU32(uint32(len(m)))
	for acct, rights := range m {
		buf = append(buf, beU32(uint32(acct))...)
		rb := make([]byte, 2)
		binary.BigEndian.PutUint16(rb, uint16(rights))
		buf = append(buf, rb...)
	}
	return buf
}

func decodeACL(data []byte) (map[types.AccountID]types.ACLRights, error) {
	if len(data) < 4 {
		return nil, shortRead()
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	out := make(map[types.AccountID]types.ACLRights, n)
	for i := uint32(0); i < n; i++ {
		if len(data) < 6 {
			return nil, shortRead()
		}
		acct := types.AccountID(binary.BigEndian.Uint32(data[:4]))
		rights := types.ACLRights(binary.BigEndian.Uint16(data[4:6]))
		out[acct] = rights
		data = data[6:]
	}
	return out, nil
}
