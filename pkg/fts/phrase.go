package fts

// MatchesPhrase reports whether idx contains phraseTerms (exact term IDs,
// in order) occurring at consecutive positions within a single field, per
// spec.md §4.7's phrase-match algorithm: candidates are pre-filtered by
// intersecting exact-term bitmaps (done by the query engine before this is
// called); this function performs the per-document positional check.
func MatchesPhrase(idx DocumentIndex, phraseTerms []uint64) bool {
	if len(phraseTerms) == 0 {
		return false
	}
	for _, field := range idx.Fields {
		if fieldMatchesPhrase(field, phraseTerms) {
			return true
		}
	}
	return false
}

func fieldMatchesPhrase(field FieldPositions, phraseTerms []uint64) bool {
	positionsOf := make(map[uint64][]uint32)
	for _, tp := range field.Terms {
		positionsOf[tp.TermID] = append(positionsOf[tp.TermID], tp.Position)
	}
	starts, ok := positionsOf[phraseTerms[0]]
	if !ok {
		return false
	}
	for _, start := range starts {
		if sequenceFollowsFrom(positionsOf, phraseTerms, start) {
			return true
		}
	}
	return false
}

func sequenceFollowsFrom(positionsOf map[uint64][]uint32, phraseTerms []uint64, start uint32) bool {
	for i := 1; i < len(phraseTerms); i++ {
		want := start + uint32(i)
		if !contains(positionsOf[phraseTerms[i]], want) {
			return false
		}
	}
	return true
}

func contains(positions []uint32, want uint32) bool {
	for _, p := range positions {
		if p == want {
			return true
		}
	}
	return false
}
