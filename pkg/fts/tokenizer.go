// Package fts implements the full-text index of spec.md §4.7: tokenization,
// stemming, per-term bitmaps, a positional term index per document, and
// phrase search.
//
// Grounded on original_source/components/store/src/read/query.rs for the
// match/phrase semantics. Tokenization uses rivo/uniseg's word-boundary
// iterator (already an indirect teacher dependency, promoted to direct
// use) instead of a hand-rolled splitter, since it implements Unicode word
// segmentation properly (grapheme-cluster aware, locale-neutral boundary
// rules) — exactly what spec.md asks for.
package fts

import (
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxTokenLength discards any token longer than this many runes, per
// spec.md §4.7.
const MaxTokenLength = 40

var lowerCaser = cases.Lower(language.Und)

// Tokenize splits text into lower-cased word tokens using Unicode word
// segmentation, discarding punctuation/whitespace segments and anything
// longer than MaxTokenLength runes.
func Tokenize(text string) []string {
	var tokens []string
	state := -1
	remaining := text
	for len(remaining) > 0 {
		segment, rest, isWord, newState := uniseg.FirstWordInString(remaining, state)
		state = newState
		remaining = rest
		if !isWord {
			continue
		}
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		if n := runeCount(trimmed); n == 0 || n > MaxTokenLength {
			continue
		}
		tokens = append(tokens, lowerCaser.String(trimmed))
	}
	return tokens
}

func runeCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
