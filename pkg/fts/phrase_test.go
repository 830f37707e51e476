package fts

import "testing"

func TestTokenizeAndStemBasic(t *testing.T) {
	tokens := Tokenize("The quick brown fox jumps")
	want := []string{"the", "quick", "brown", "fox", "jumps"}
	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, tokens[i], want[i])
		}
	}
}

func buildIndex(text, lang, defaultLang string) DocumentIndex {
	terms := TermsForField(text, lang, defaultLang)
	fp := FieldPositions{Field: 1, BlobIndex: 0}
	for _, tm := range terms {
		fp.Terms = append(fp.Terms, TermPosition{TermID: tm.Exact, Position: tm.Position})
	}
	return DocumentIndex{Fields: []FieldPositions{fp}}
}

// S3: phrase search over "the quick brown fox jumps".
func TestPhraseSearchS3(t *testing.T) {
	idx := buildIndex("the quick brown fox jumps", "en", "en")

	quickBrown := []uint64{TermID("quick"), TermID("brown")}
	if !MatchesPhrase(idx, quickBrown) {
		t.Fatal(`expected "quick brown" to match`)
	}

	brownQuick := []uint64{TermID("brown"), TermID("quick")}
	if MatchesPhrase(idx, brownQuick) {
		t.Fatal(`expected "brown quick" not to match`)
	}

	quickFox := []uint64{TermID("quick"), TermID("fox")}
	if MatchesPhrase(idx, quickFox) {
		t.Fatal(`expected "quick fox" not to match (not consecutive)`)
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	idx := buildIndex("hello world hello", "en", "en")
	data := Compress(idx)
	got, err := Decompress(data)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if len(got.Fields) != 1 || len(got.Fields[0].Terms) != len(idx.Fields[0].Terms) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestStemFallsBackToDefaultLanguage(t *testing.T) {
	if got := Stem("jumps", "", "en"); got != "jump" {
		t.Fatalf("expected default-language stemming, got %q", got)
	}
	if got := Stem("jumps", "xx-unknown", "en"); got != "jump" {
		t.Fatalf("expected unknown-language fallback to default, got %q", got)
	}
}
