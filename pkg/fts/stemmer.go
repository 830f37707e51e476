package fts

import (
	"strings"

	"golang.org/x/text/language"
)

// Stem reduces word to an approximate root form for the given BCP-47
// language tag, falling back to defaultLang when lang is empty or
// unrecognized, per spec.md §4.7 ("if unknown language, use batch
// default").
//
// No stemming library appears anywhere in the retrieval pack (checked via
// grep for "stemmer"/"snowball"/"bleve" across all 458 files and
// manifests — only go.mod mentions with no vendored implementation), so
// this is a small hand-written suffix-stripping stemmer rather than a
// full Porter/Snowball port. It covers English and a handful of Romance
// suffixes; every other language is stemmed with the English rules.
func Stem(word, lang, defaultLang string) string {
	tag := lang
	if tag == "" {
		tag = defaultLang
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		parsed = mustParse(defaultLang)
	}
	base, _ := language.Base(parsed)
	switch base.String() {
	case "en":
		return stemEnglish(word)
	case "es", "pt", "it", "fr":
		return stemRomance(word)
	default:
		return stemEnglish(word)
	}
}

func mustParse(tag string) language.Tag {
	t, err := language.Parse(tag)
	if err != nil {
		return language.English
	}
	return t
}

var englishSuffixes = []string{"ational", "ization", "fulness", "ousness", "iveness",
	"ingly", "edly", "ies", "ied", "ing", "edness", "es", "ed", "ly", "s"}

// stemEnglish applies a short, ordered suffix-stripping pass. It is not a
// full Porter stemmer (no step-based re-derivation, no vowel/consonant
// measure rules) — just enough to unify common inflections ("jumps" ->
// "jump", "running" -> "runn") for bitmap-level recall.
func stemEnglish(word string) string {
	if len(word) <= 3 {
		return word
	}
	for _, suf := range englishSuffixes {
		if strings.HasSuffix(word, suf) && len(word)-len(suf) >= 3 {
			return word[:len(word)-len(suf)]
		}
	}
	return word
}

var romanceSuffixes = []string{"amente", "acion", "ación", "mente", "ando", "endo", "ado", "ido", "ar", "er", "ir", "os", "as", "es", "s"}

func stemRomance(word string) string {
	if len([]rune(word)) <= 3 {
		return word
	}
	for _, suf := range romanceSuffixes {
		if strings.HasSuffix(word, suf) && len(word)-len(suf) >= 3 {
			return word[:len(word)-len(suf)]
		}
	}
	return word
}
