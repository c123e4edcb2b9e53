// Package distance implements the dissimilarity kernels used by the index.
//
// All metrics are expressed as dissimilarities: lower is more similar.
// Dot product is negated and cosine is reported as 1-cos so that search
// code can compare scores from any metric the same way.
package distance

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different lengths
// are compared, or when a vector does not match an index's configured
// dimension. The caller's vector is never truncated or padded.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metric identifies a distance metric.
type Metric string

const (
	Euclidean  Metric = "euclidean"
	DotProduct Metric = "dot"
	Cosine     Metric = "cosine"
)

// ParseMetric converts a string into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case Euclidean, DotProduct, Cosine:
		return Metric(s), nil
	case "l2":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// String returns the metric's wire name.
func (m Metric) String() string { return string(m) }

// Func computes the dissimilarity between two vectors of equal length.
// Kernels assume len(a) == len(b); length validation happens once at the
// API boundary so the hot path stays allocation-free and branch-light.
type Func func(a, b []float32) float32

// For returns the kernel for a metric.
func For(m Metric) (Func, error) {
	switch m {
	case Euclidean:
		return L2, nil
	case DotProduct:
		return NegDot, nil
	case Cosine:
		return CosineDistance, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", m)
	}
}

// Between is the checked entry point: it validates lengths and then
// applies the metric's kernel.
func Between(a, b []float32, m Metric) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	fn, err := For(m)
	if err != nil {
		return 0, err
	}
	return fn(a, b), nil
}

// L2 returns the Euclidean distance between a and b.
func L2(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}

// SquaredL2 returns the squared Euclidean distance. The 4-wide unroll is
// the scalar shape compilers vectorize well; it also keeps the loop body
// free of bounds checks after the initial slice trim.
func SquaredL2(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < len(a); i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

// NegDot returns the negated inner product, so that a larger dot product
// maps to a smaller dissimilarity.
func NegDot(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < len(a); i++ {
		s0 += a[i] * b[i]
	}
	return -(s0 + s1 + s2 + s3)
}

// CosineDistance returns 1 - cos(a, b), in [0, 2]. A zero vector has no
// direction, so its distance to anything is defined as 1.
func CosineDistance(a, b []float32) float32 {
	var dot, na, nb float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
}
