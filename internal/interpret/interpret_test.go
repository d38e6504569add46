package interpret

import (
	"reflect"
	"testing"
)

func TestExactPositionalMatch(t *testing.T) {
	options := []string{"Paris", "Delhi", "Rome"}
	got := Interpret("option 2", options)
	if got.OptionIndex != 1 || got.Confidence != 100 {
		t.Fatalf("expected index 1 confidence 100, got %+v", got)
	}
}

func TestExactBeatsLowerTiers(t *testing.T) {
	// "option 2" is an exact candidate for index 1 even though the word
	// "option" could overlap other option text.
	options := []string{"option words here", "Delhi", "Rome"}
	got := Interpret("option 2", options)
	if got.OptionIndex != 1 || got.Confidence != 100 {
		t.Fatalf("exact tier must win: %+v", got)
	}
}

func TestExactTieFirstOptionWins(t *testing.T) {
	options := []string{"Delhi", "Delhi"}
	got := Interpret("delhi", options)
	if got.OptionIndex != 0 {
		t.Fatalf("first option should win ties, got %+v", got)
	}
}

func TestNormalizedPositionalPhrase(t *testing.T) {
	options := []string{"Delhi", "Mumbai", "Chennai"}
	got := Interpret("I think option number 2", options)
	if got.OptionIndex != 1 {
		t.Fatalf("expected Mumbai (index 1), got %+v", got)
	}
	if got.Confidence < 50 {
		t.Fatalf("expected confidence >= 50, got %v", got.Confidence)
	}
}

func TestOrdinalWords(t *testing.T) {
	options := []string{"Delhi", "Mumbai", "Chennai"}
	for i, word := range []string{"first", "second", "third"} {
		got := Interpret(word, options)
		if got.OptionIndex != i || got.Confidence != 100 {
			t.Errorf("Interpret(%q) = %+v, want index %d", word, got, i)
		}
	}
}

func TestBareLetterAndNumber(t *testing.T) {
	options := []string{"Delhi", "Mumbai"}
	if got := Interpret("b", options); got.OptionIndex != 1 {
		t.Errorf("bare letter: %+v", got)
	}
	if got := Interpret("1", options); got.OptionIndex != 0 {
		t.Errorf("bare number: %+v", got)
	}
}

func TestFullOptionTextMatch(t *testing.T) {
	options := []string{"strict equals", "loose equals"}
	got := Interpret("strict equals", options)
	if got.OptionIndex != 0 || got.Confidence != 100 {
		t.Fatalf("full text match failed: %+v", got)
	}
}

func TestWordOverlapFallback(t *testing.T) {
	options := []string{"the quick brown fox", "lazy dog sleeping"}
	got := Interpret("something about a quick fox maybe", options)
	if got.OptionIndex != 0 {
		t.Fatalf("expected overlap match on index 0, got %+v", got)
	}
	if got.Confidence <= 10 || got.Confidence > 30 {
		t.Fatalf("overlap confidence out of range: %v", got.Confidence)
	}
}

func TestShortWordsDoNotScore(t *testing.T) {
	options := []string{"A B C", "D E F"}
	got := Interpret("purple elephant", options)
	if got.Matched() {
		t.Fatalf("short option words must not match everything: %+v", got)
	}
}

func TestNoMatchEchoesTranscript(t *testing.T) {
	got := Interpret("purple elephant", []string{"Delhi", "Mumbai"})
	if got.Matched() {
		t.Fatalf("expected no match, got %+v", got)
	}
	if got.RawTranscript != "purple elephant" {
		t.Fatalf("raw transcript must be preserved, got %q", got.RawTranscript)
	}
}

func TestDeterminism(t *testing.T) {
	options := []string{"Delhi", "Mumbai", "Chennai"}
	first := Interpret("I think option number 2", options)
	for i := 0; i < 20; i++ {
		if got := Interpret("I think option number 2", options); !reflect.DeepEqual(got, first) {
			t.Fatalf("non-deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestIntent(t *testing.T) {
	cases := []struct {
		in   string
		want IntentKind
	}{
		{"yes", IntentConfirm},
		{"Confirm that", IntentConfirm},
		{"submit!", IntentConfirm},
		{"no, change it", IntentReject},
		{"something different", IntentReject},
		{"repeat the question", IntentRepeat},
		{"say it again", IntentRepeat},
		{"option three", IntentNone},
	}
	for _, tc := range cases {
		if got := Intent(tc.in); got != tc.want {
			t.Errorf("Intent(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
