package distance

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestL2(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit apart", []float32{0, 0}, []float32{1, 0}, 1},
		{"pythagoras", []float32{0, 0}, []float32{3, 4}, 5},
		{"unrolled tail", []float32{1, 1, 1, 1, 1}, []float32{0, 0, 0, 0, 0}, float32(math.Sqrt(5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := L2(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("L2(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSquaredL2MatchesL2(t *testing.T) {
	a := []float32{0.3, -1.2, 4.5, 0.01, 2.2, -0.7, 1.1}
	b := []float32{1.3, 0.2, -4.5, 0.11, 0.2, 0.7, -1.1}

	l2 := L2(a, b)
	sq := SquaredL2(a, b)
	if !almostEqual(l2*l2, sq) {
		t.Errorf("L2^2 = %f, SquaredL2 = %f", l2*l2, sq)
	}
}

func TestNegDot(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{5, 4, 3, 2, 1}
	// dot = 5+8+9+8+5 = 35
	if got := NegDot(a, b); !almostEqual(got, -35) {
		t.Errorf("NegDot = %f, want -35", got)
	}

	// A more aligned pair must score lower (more similar).
	if NegDot(a, a) >= NegDot(a, b) {
		t.Error("self dot product should be more similar than cross product")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"parallel", []float32{1, 0}, []float32{2, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineDistance(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("CosineDistance(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestBetweenDimensionMismatch(t *testing.T) {
	_, err := Between([]float32{1, 2}, []float32{1, 2, 3}, Euclidean)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestBetween(t *testing.T) {
	got, err := Between([]float32{0, 0}, []float32{3, 4}, Euclidean)
	if err != nil {
		t.Fatalf("Between failed: %v", err)
	}
	if !almostEqual(got, 5) {
		t.Errorf("Between = %f, want 5", got)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"euclidean", Euclidean, false},
		{"l2", Euclidean, false},
		{"dot", DotProduct, false},
		{"cosine", Cosine, false},
		{"manhattan", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMetric(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMetric(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestForUnknownMetric(t *testing.T) {
	if _, err := For("hamming"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func BenchmarkL2_128(b *testing.B) {
	x := make([]float32, 128)
	y := make([]float32, 128)
	for i := range x {
		x[i] = float32(i) * 0.01
		y[i] = float32(127-i) * 0.01
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = L2(x, y)
	}
}
