package language

import "testing"

func TestClassifyVectors(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Variant
	}{
		{name: "urdu script", text: "السلام علیکم", want: Urdu},
		{name: "english", text: "What time does school open", want: English},
		{name: "roman urdu", text: "school kitne baje khulta hai", want: RomanUrdu},
		{name: "empty", text: "", want: RomanUrdu},
		{name: "whitespace", text: "   \t ", want: RomanUrdu},
		{name: "punctuation only", text: "?? !!", want: RomanUrdu},
		{name: "trailing punctuation", text: "What time does it open?", want: English},
		{name: "mixed script short circuits", text: "What is فیس", want: Urdu},
		{name: "presentation forms", text: "fee ﺍ", want: Urdu},
	}
	c := NewClassifier()
	for _, tc := range cases {
		if got := c.Classify(tc.text); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestClassifyRatioIsStrict(t *testing.T) {
	// two of four tokens are common English words: exactly 0.5 is not enough
	if got := Classify("what is fees kitni"); got != RomanUrdu {
		t.Fatalf("expected roman_urdu at ratio 0.5, got %s", got)
	}
	if got := Classify("what is the fees"); got != English {
		t.Fatalf("expected english at ratio 0.75, got %s", got)
	}
}

func TestVariantString(t *testing.T) {
	if Urdu.String() != "urdu" || English.String() != "english" || RomanUrdu.String() != "roman_urdu" {
		t.Fatalf("unexpected variant tags: %s %s %s", Urdu, English, RomanUrdu)
	}
}
