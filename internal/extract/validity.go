package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Validity holds the heuristic thresholds separating usable text from
// encoding garbage. The values are empirically tuned defaults, not
// load-bearing invariants.
type Validity struct {
	// MinTextLength is the minimum rune count.
	MinTextLength int
	// MinWordCount is the minimum number of whitespace-delimited tokens.
	MinWordCount int
	// MinAlnumRatio is the minimum share of alphanumeric-or-whitespace runes.
	MinAlnumRatio float64
}

func DefaultValidity() Validity {
	return Validity{MinTextLength: 50, MinWordCount: 10, MinAlnumRatio: 0.60}
}

func (v Validity) IsZero() bool {
	return v.MinTextLength == 0 && v.MinWordCount == 0 && v.MinAlnumRatio == 0
}

// Valid reports whether text clears all three thresholds. Text is normalized
// to NFC first so composed and decomposed encodings score identically.
func (v Validity) Valid(text string) bool {
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		return false
	}

	runes := 0
	alnumOrSpace := 0
	for _, r := range text {
		runes++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			alnumOrSpace++
		}
	}
	if runes < v.MinTextLength {
		return false
	}
	if len(strings.Fields(text)) < v.MinWordCount {
		return false
	}
	return float64(alnumOrSpace)/float64(runes) >= v.MinAlnumRatio
}
