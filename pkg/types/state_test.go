package types

import "testing"

func TestJMAPStateRoundTrip(t *testing.T) {
	cases := []JMAPState{
		Initial,
		Exact(42),
		Intermediate(1, 100, 7),
	}
	for _, want := range cases {
		got, err := ParseJMAPState(want.String())
		if err != nil {
			t.Fatalf("parse %q: %v", want.String(), err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestParseJMAPStateRejectsGarbage(t *testing.T) {
	if _, err := ParseJMAPState("bogus"); err == nil {
		t.Fatal("expected error for malformed state token")
	}
}

func TestJMAPDateRoundTrip(t *testing.T) {
	d, err := ParseJMAPDate("2004-06-28T23:43:45.000Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Year() != 2004 || d.Month() != 6 || d.Day() != 28 || d.Hour() != 23 || d.Minute() != 43 || d.Second() != 45 {
		t.Fatalf("broken-down fields wrong: %+v", d)
	}
	if d.TZOffset() != "+00:00" {
		t.Fatalf("tz offset wrong: %s", d.TZOffset())
	}
	if got, want := d.String(), "2004-06-28T23:43:45Z"; got != want {
		t.Fatalf("serialize: got %q want %q", got, want)
	}
}

func TestTypeStateBits(t *testing.T) {
	var ts TypeState
	ts = ts.Set(CollectionMail).Set(CollectionMailbox)
	if !ts.Has(CollectionMail) || !ts.Has(CollectionMailbox) {
		t.Fatal("expected both bits set")
	}
	if ts.Has(CollectionThread) {
		t.Fatal("unexpected bit set")
	}
	cols := ts.Collections()
	if len(cols) != 2 {
		t.Fatalf("expected 2 collections, got %v", cols)
	}
}
