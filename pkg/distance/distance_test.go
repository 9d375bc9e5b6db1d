package distance

import (
	"math"
	"testing"
)

func TestSelfDistanceIsZero(t *testing.T) {
	v := []float32{0.1, 0.2, 0.3, 0.4}
	for _, m := range []Metric{Euclidean, Hamming} {
		d := Distance(m, v, v)
		if d != 0 {
			t.Errorf("metric %s: distance(v, v) = %v, want 0", m, d)
		}
	}
	// DotProduct is -(a . b), so its self-distance is -||v||^2, not zero.
	var sq float32
	for _, x := range v {
		sq += x * x
	}
	if d := Distance(DotProduct, v, v); math.Abs(float64(d+sq)) > 1e-6 {
		t.Errorf("dot_product: distance(v, v) = %v, want %v", d, -sq)
	}
	d := Distance(Cosine, v, v)
	if math.Abs(float64(d)) > 1e-5 {
		t.Errorf("cosine: distance(v, v) = %v, want ~0", d)
	}
}

func TestEuclideanKnownValues(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	got := Distance(Euclidean, a, b)
	want := float32(math.Sqrt2)
	if math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestCosineOrdering(t *testing.T) {
	q := []float32{1, 0, 0, 0}
	v1 := []float32{1, 0, 0, 0}
	v2 := []float32{0.9, 0.1, 0, 0}
	v3 := []float32{0, 0, 0, 1}

	d1 := Distance(Cosine, q, v1)
	d2 := Distance(Cosine, q, v2)
	d3 := Distance(Cosine, q, v3)

	if !(d1 < d2 && d2 < d3) {
		t.Fatalf("expected d1 < d2 < d3, got %v %v %v", d1, d2, d3)
	}
	if math.Abs(float64(d1)) > 1e-6 {
		t.Errorf("d1 = %v, want ~0", d1)
	}
	if math.Abs(float64(d3-1)) > 1e-6 {
		t.Errorf("d3 = %v, want ~1", d3)
	}
}

func TestDotProductNegated(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	got := Distance(DotProduct, a, b)
	want := float32(-(1*4 + 2*5 + 3*6))
	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestHammingCountsBitwiseDifferences(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{1, 0, 3, 0}
	got := Distance(Hamming, a, b)
	if got != 2 {
		t.Errorf("got %v want 2", got)
	}
}

func TestFastWidthMatchesGenericLoop(t *testing.T) {
	for _, n := range []int{128, 384} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = float32(i%7) - 3
			b[i] = float32((i+3)%11) - 5
		}
		for _, m := range []Metric{Euclidean, Cosine, DotProduct} {
			got := Distance(m, a, b)
			// recompute with a width that bypasses the fast path
			aSlow := append([]float32{}, a...)
			aSlow = append(aSlow, 0) // break the fastWidth(n) match
			bSlow := append([]float32{}, b...)
			bSlow = append(bSlow, 0)
			want := Distance(m, aSlow, bSlow)
			if got != want {
				t.Errorf("metric %v width %d: fast=%v generic-equivalent=%v", m, n, got, want)
			}
		}
	}
}

func TestNoPanicOnNaN(t *testing.T) {
	a := []float32{float32(math.NaN()), 1, 2}
	b := []float32{1, 2, 3}
	for _, m := range []Metric{Euclidean, Cosine, DotProduct, Hamming} {
		_ = Distance(m, a, b) // must not panic; value is unspecified
	}
}

func TestZeroVector(t *testing.T) {
	if !ZeroVector([]float32{0, 0, 0}) {
		t.Error("expected zero vector to be detected")
	}
	if ZeroVector([]float32{0, 0, 1}) {
		t.Error("expected non-zero vector")
	}
}
