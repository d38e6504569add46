package normalize

import "testing"

func TestForSynthesisSymbols(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a === b", "a strict equals b"},
		{"a !== b", "a strict not equals b"},
		{"a == b", "a double equals b"},
		{"x => y", "x arrow y"},
		{"cout << x", "see out output into x"},
	}
	for _, tc := range cases {
		if got := ForSynthesis(tc.in); got != tc.want {
			t.Errorf("ForSynthesis(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestForSynthesisLongerSymbolsWin(t *testing.T) {
	// === must not decay into "double equals equals" via the shorter rules.
	got := ForSynthesis("===")
	if got != "strict equals" {
		t.Fatalf("expected strict equals, got %q", got)
	}
}

func TestForSynthesisAbbreviations(t *testing.T) {
	got := ForSynthesis("HTML and CSS")
	if got != "H T M L and C S S" {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

func TestForSynthesisHyphens(t *testing.T) {
	if got := ForSynthesis("5-3"); got != "5 minus 3" {
		t.Errorf("digit hyphen: got %q", got)
	}
	if got := ForSynthesis("if-else construct"); got != "if-else construct" {
		t.Errorf("compound hyphen must survive: got %q", got)
	}
}

func TestForSynthesisSentencePause(t *testing.T) {
	got := ForSynthesis("First sentence. Second sentence")
	if got != "First sentence., Second sentence" {
		t.Fatalf("expected pause after period, got %q", got)
	}
}

func TestForMatchingCollapsesSpokenForms(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"see out", "cout"},
		{"option number one", "option 1"},
		{"I think option number 2", "i think option 2"},
		{"Choice number three", "option 3"},
		{"print f statement", "printf statement"},
	}
	for _, tc := range cases {
		if got := ForMatching(tc.in); got != tc.want {
			t.Errorf("ForMatching(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIdempotence(t *testing.T) {
	inputs := []string{
		"a === b and cout << x",
		"HTML, CSS and 5-3. Next.",
		"option number one or see out",
		"purple elephant",
	}
	for _, in := range inputs {
		once := ForSynthesis(in)
		if twice := ForSynthesis(once); twice != once {
			t.Errorf("ForSynthesis not idempotent on %q: %q != %q", in, twice, once)
		}
		once = ForMatching(in)
		if twice := ForMatching(once); twice != once {
			t.Errorf("ForMatching not idempotent on %q: %q != %q", in, twice, once)
		}
	}
}

func TestDeterminism(t *testing.T) {
	in := "option number two === cout"
	first := ForMatching(in)
	for i := 0; i < 10; i++ {
		if got := ForMatching(in); got != first {
			t.Fatalf("non-deterministic output: %q vs %q", got, first)
		}
	}
}
