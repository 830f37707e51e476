package types

import (
	"fmt"
	"strconv"
	"strings"
)

// JMAPStateKind discriminates the JMAPState algebra: a client-visible state
// token is always exactly one of these three shapes.
type JMAPStateKind uint8

const (
	StateInitial JMAPStateKind = iota
	StateExact
	StateIntermediate
)

// JMAPState is the opaque, client-visible snapshot identifier returned by
// every JMAP method that supports `/changes`. It must be a bijection with
// its string encoding: Parse(s.String()) == s for every reachable value.
type JMAPState struct {
	Kind JMAPStateKind

	// Exact
	ChangeID ChangeID

	// Intermediate
	FromID    ChangeID
	ToID      ChangeID
	ItemsSent int
}

// Initial is the state before any change has been recorded.
var Initial = JMAPState{Kind: StateInitial}

// Exact builds an Exact(changeID) state token.
func Exact(changeID ChangeID) JMAPState {
	return JMAPState{Kind: StateExact, ChangeID: changeID}
}

// Intermediate builds an Intermediate{from, to, itemsSent} state token.
func Intermediate(from, to ChangeID, itemsSent int) JMAPState {
	return JMAPState{Kind: StateIntermediate, FromID: from, ToID: to, ItemsSent: itemsSent}
}

// String encodes the state as the opaque wire string. The encoding is
// deliberately simple (kind tag + decimal fields) since JMAP treats the
// state as opaque; only this package's own Parse needs to understand it.
func (s JMAPState) String() string {
	switch s.Kind {
	case StateInitial:
		return "n"
	case StateExact:
		return fmt.Sprintf("e:%d", s.ChangeID)
	case StateIntermediate:
		return fmt.Sprintf("i:%d:%d:%d", s.FromID, s.ToID, s.ItemsSent)
	default:
		return "n"
	}
}

// ParseJMAPState inverts String, failing closed (as StateInitial is never
// returned from a malformed token — callers must treat a parse error as
// `invalidArguments`, not silently fall back to Initial).
func ParseJMAPState(s string) (JMAPState, error) {
	if s == "n" {
		return Initial, nil
	}
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[0] == "e":
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return JMAPState{}, fmt.Errorf("invalid state token %q: %w", s, err)
		}
		return Exact(ChangeID(id)), nil
	case len(parts) == 4 && parts[0] == "i":
		from, err1 := strconv.ParseUint(parts[1], 10, 64)
		to, err2 := strconv.ParseUint(parts[2], 10, 64)
		sent, err3 := strconv.Atoi(parts[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return JMAPState{}, fmt.Errorf("invalid state token %q", s)
		}
		return Intermediate(ChangeID(from), ChangeID(to), sent), nil
	default:
		return JMAPState{}, fmt.Errorf("invalid state token %q", s)
	}
}

// TypeState is a bitmask of which collections changed in a given write,
// used to decide which `*/changes` a push subscription should announce.
// Grounded on original_source/components/jmap/src/types/type_state.rs.
type TypeState uint16

// Set marks c as changed.
func (t TypeState) Set(c Collection) TypeState { return t | (1 << uint(c)) }

// Has reports whether c changed.
func (t TypeState) Has(c Collection) bool { return t&(1<<uint(c)) != 0 }

// Collections returns every collection flagged in t.
func (t TypeState) Collections() []Collection {
	var out []Collection
	for _, c := range Collections() {
		if t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
