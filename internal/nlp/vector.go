package nlp

import "math"

// Unit returns v scaled to unit L2 norm. A zero or empty vector is returned
// unchanged so degenerate embeddings stay recognisable as "no signal".
func Unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * scale
	}
	return out
}

// Cosine returns the dot product of u and v. Both are assumed unit-norm, so
// the dot product equals the cosine similarity. Mismatched lengths or a zero
// vector yield 0.
func Cosine(u, v []float32) float64 {
	if len(u) != len(v) || len(u) == 0 {
		return 0
	}
	var dot float64
	for i := range u {
		dot += float64(u[i]) * float64(v[i])
	}
	return dot
}

// IsZero reports whether every component of v is zero. Used to skip the
// cosine tier for topics whose embedding never materialised.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
