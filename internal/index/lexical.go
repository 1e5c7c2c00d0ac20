package index

import (
	"math"
	"strings"
	"unicode"
)

// termFreq builds a normalised term-frequency vector over the text.
// Terms are lowercased runs of letters and digits; the vocabulary grows
// dynamically (no fixed word list).
func termFreq(text string) map[string]float64 {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return nil
	}
	tf := make(map[string]float64, len(fields))
	for _, f := range fields {
		tf[f]++
	}
	for k := range tf {
		tf[k] /= float64(len(fields))
	}
	return tf
}

// cosineTF is cosine similarity between two term-frequency vectors.
// Zero-norm input yields 0 rather than an error.
func cosineTF(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for term, va := range a {
		normA += va * va
		if vb, ok := b[term]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDense is cosine similarity between two embeddings.
// Mismatched lengths or zero-norm vectors yield 0.
func cosineDense(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clamp01 bounds a score to [0,1] before blending. Cosine over embeddings
// can go slightly negative; negative signal carries no rank information here.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
