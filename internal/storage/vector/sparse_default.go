package vector

import (
	"math"
	"strings"
	"unicode"
)

// termFrequencyModel is a dependency-free SparseModel stand-in for a real
// SPLADE checkpoint: log-scaled term frequency over whitespace/punctuation
// tokens. It satisfies the same contract (term -> weight) so swapping in a
// real learned sparse model later is a one-line loader change.
type termFrequencyModel struct{ name string }

// NewTermFrequencyModel builds the default sparse model used when no
// learned SPLADE checkpoint is configured.
func NewTermFrequencyModel(name string) SparseModel { return termFrequencyModel{name: name} }

func (m termFrequencyModel) Name() string { return m.name }

func (m termFrequencyModel) Weights(text string) map[string]float32 {
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 2 {
			continue
		}
		counts[tok]++
	}
	weights := make(map[string]float32, len(counts))
	for term, c := range counts {
		weights[term] = float32(1 + math.Log(float64(c)))
	}
	return weights
}

// DefaultSparseLoader resolves model names to termFrequencyModel, the only
// sparse model shipped without external weights.
func DefaultSparseLoader(name string) (SparseModel, error) {
	return NewTermFrequencyModel(name), nil
}
