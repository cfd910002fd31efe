package compare

import (
	"math"
	"strings"
	"unicode"
)

// termVector is a word-frequency vector over lowercased letter and digit
// runs. Short filler words are kept since their removal is what cleanup
// changes most.
type termVector struct {
	counts map[string]float64
	norm   float64
}

func newTermVector(text string) termVector {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	v := termVector{counts: make(map[string]float64, len(tokens))}
	for _, token := range tokens {
		v.counts[token]++
	}
	var sum float64
	for _, c := range v.counts {
		sum += c * c
	}
	v.norm = math.Sqrt(sum)
	return v
}

// similarity is the cosine similarity of the two texts' word frequencies,
// in [0, 1]. Either text being empty yields 0.
func similarity(a, b string) float64 {
	va, vb := newTermVector(a), newTermVector(b)
	if va.norm == 0 || vb.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range va.counts {
		dot += count * vb.counts[token]
	}
	return math.Min(1, dot/(va.norm*vb.norm))
}
