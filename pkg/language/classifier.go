package language

import (
	"strings"
	"unicode"
)

// Variant is the language a reply must be written in.
type Variant int

const (
	// RomanUrdu is Urdu transliterated into Latin letters. It is the fallback label.
	RomanUrdu Variant = iota
	// Urdu is Urdu written in its native (Arabic-derived) script.
	Urdu
	// English is the default non-Urdu language.
	English
)

func (v Variant) String() string {
	switch v {
	case Urdu:
		return "urdu"
	case English:
		return "english"
	default:
		return "roman_urdu"
	}
}

// englishRatioThreshold must be strictly exceeded for a text to count as English.
const englishRatioThreshold = 0.5

// urduScript covers the Arabic, Arabic Supplement and Arabic Presentation Forms blocks.
var urduScript = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0600, Hi: 0x06FF, Stride: 1},
		{Lo: 0x0750, Hi: 0x077F, Stride: 1},
		{Lo: 0xFB50, Hi: 0xFC3F, Stride: 1},
		{Lo: 0xFE70, Hi: 0xFEFF, Stride: 1},
	},
}

var commonEnglish = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "am",
		"do", "does", "did", "can", "could", "will", "would", "should",
		"what", "when", "where", "why", "how", "who", "which",
		"i", "you", "we", "it", "my", "your", "our", "me", "this", "that",
		"to", "of", "in", "on", "at", "for", "from", "with", "and", "or",
		"not", "please", "time", "open", "have", "has", "thanks", "hello",
	} {
		commonEnglish[w] = struct{}{}
	}
}

// Classifier labels utterances with the Variant a reply should use.
// The zero value is ready to use.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify applies, in order: native script detection, the common English word
// ratio, and finally the Roman Urdu fallback. It never returns an unknown label.
func (c *Classifier) Classify(text string) Variant {
	for _, r := range text {
		if unicode.Is(urduScript, r) {
			return Urdu
		}
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return RomanUrdu
	}
	hits := 0
	for _, tok := range tokens {
		if _, ok := commonEnglish[tok]; ok {
			hits++
		}
	}
	if float64(hits)/float64(len(tokens)) > englishRatioThreshold {
		return English
	}
	return RomanUrdu
}

// Classify labels text with the package default Classifier.
func Classify(text string) Variant {
	return (&Classifier{}).Classify(text)
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
