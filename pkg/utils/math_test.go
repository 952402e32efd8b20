package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("got %v, want [0.6 0.8]", v)
	}
	if self := Dot(v, v); math.Abs(self-1) > 1e-6 {
		t.Errorf("self inner product = %f, want 1", self)
	}
}

func TestNormalizeL2_idempotent(t *testing.T) {
	v := []float32{1, 2, 3, 4, 5}
	NormalizeL2(v)
	once := append([]float32(nil), v...)
	NormalizeL2(v)
	for i := range v {
		if math.Abs(float64(v[i]-once[i])) > 1e-6 {
			t.Fatalf("second normalization changed element %d: %f -> %f", i, once[i], v[i])
		}
	}
}

func TestNormalizeL2_zeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	NormalizeL2(v)
	for i, x := range v {
		if x != 0 || math.IsNaN(float64(x)) {
			t.Errorf("element %d = %f, want 0", i, x)
		}
	}
	if Dot(v, []float32{1, 0, 0}) != 0 {
		t.Error("zero vector should score 0 against any query")
	}
}

func TestNormalizeRows(t *testing.T) {
	m := [][]float32{{2, 0}, {0, 0}, {0, 5}}
	NormalizeRows(m)
	if m[0][0] != 1 || m[2][1] != 1 {
		t.Errorf("rows not normalized: %v", m)
	}
	if m[1][0] != 0 || m[1][1] != 0 {
		t.Errorf("zero row changed: %v", m[1])
	}
}
