package vecmath

import (
	"fmt"
	"math"
)

// Vector is a fixed-length embedding. Length is defined by the model and is
// constant across all vectors of one run.
type Vector []float32

// DimensionMismatchError is returned when two vectors of different length are
// compared. It means outputs of two different models were mixed and is never
// recoverable for the run that produced it.
type DimensionMismatchError struct {
	Left  int
	Right int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %d vs %d", e.Left, e.Right)
}

// Norm returns the Euclidean norm of v, accumulated in float64.
func Norm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length. If the norm is exactly zero the
// input is returned unchanged.
func Normalize(v Vector) Vector {
	norm := Norm(v)
	if norm == 0 {
		return v
	}

	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Similarity returns the dot product of two normalized vectors, clamped to
// [-1, 1] so float32 rounding never scores a pair above identical.
func Similarity(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Left: len(a), Right: len(b)}
	}
	return max(-1, min(1, Dot(a, b))), nil
}

// Dot returns the inner product of a and b. Callers must guarantee equal length.
func Dot(a, b Vector) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Validate reports whether v is usable as an embedding: non-empty and free of
// NaN or infinite components.
func Validate(v Vector) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector")
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("component %d is not finite (%v)", i, x)
		}
	}
	return nil
}
