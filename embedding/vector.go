package embedding

import "math"

// Normalize returns a unit-length copy of v.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}

	result := make([]float32, len(v))
	if magnitude == 0 {
		copy(result, v)
		return result
	}

	norm := math.Sqrt(magnitude)
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}
	return result
}

// Dot returns the dot product of a and b, which is the cosine similarity
// for unit vectors. Vectors of different length score 0.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
