package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v", v)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestNormalizeL2F64(t *testing.T) {
	v := []float64{0, 5, 0}
	NormalizeL2F64(v)
	if v[1] != 1 {
		t.Errorf("got %v", v)
	}
}

func TestCosineF64(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{-2, 0.5, 4}
	if got := CosineF64(a, a); math.Abs(got-1) > 1e-12 {
		t.Errorf("cos(a, a) = %v, want 1", got)
	}
	if CosineF64(a, b) != CosineF64(b, a) {
		t.Error("cosine should be symmetric")
	}
	neg := []float64{-1, -2, -3}
	if got := CosineF64(a, neg); math.Abs(got+1) > 1e-12 {
		t.Errorf("cos(a, -a) = %v, want -1", got)
	}
	if CosineF64(a, []float64{0, 0, 0}) != 0 {
		t.Error("zero vector should give 0")
	}
	if CosineF64(a, []float64{1, 2}) != 0 {
		t.Error("length mismatch should give 0")
	}
}

func TestSquaredDistance(t *testing.T) {
	if got := SquaredDistance([]float64{0, 0}, []float64{3, 4}); got != 25 {
		t.Errorf("got %v, want 25", got)
	}
}
