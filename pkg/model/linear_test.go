package model

import (
	"math"
	"testing"

	"evoformer/pkg/tensor"
)

// TestLinear_HandComputed checks y = xW + b on a 2x2 case.
func TestLinear_HandComputed(t *testing.T) {
	l := NewLinear(2, 2)
	copy(l.W.Data, []float64{1, 2, 3, 4})
	copy(l.B.Data, []float64{10, 20})

	x, err := tensor.FromSlice([]float64{1, 1}, []int{1, 2})
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}

	out, err := l.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	// [1 1] * [[1 2] [3 4]] + [10 20] = [14 26]
	if math.Abs(out.Data[0]-14) > 1e-12 || math.Abs(out.Data[1]-26) > 1e-12 {
		t.Errorf("Expected [14 26], got %v", out.Data)
	}
}

// TestLinear_BatchedInput checks broadcasting of the bias over a 3D input.
func TestLinear_BatchedInput(t *testing.T) {
	SetInitSeed(3)
	l := NewLinear(4, 6)

	x := tensor.NewTensor([]int{2, 3, 4})
	for i := range x.Data {
		x.Data[i] = float64(i%5) * 0.1
	}

	out, err := l.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.Shape[0] != 2 || out.Shape[1] != 3 || out.Shape[2] != 6 {
		t.Errorf("Expected shape [2 3 6], got %v", out.Shape)
	}

	// Identical input rows must map to identical output rows.
	zero := tensor.NewTensor([]int{1, 2, 4})
	same, err := l.Forward(zero)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	for d := 0; d < 6; d++ {
		if same.Get([]int{0, 0, d}) != same.Get([]int{0, 1, d}) {
			t.Errorf("Identical rows produced different outputs at dim %d", d)
		}
		// Zero input isolates the bias.
		if math.Abs(same.Get([]int{0, 0, d})-l.B.Data[d]) > 1e-12 {
			t.Errorf("Zero input output %v differs from bias %v at dim %d",
				same.Get([]int{0, 0, d}), l.B.Data[d], d)
		}
	}
}

// TestLinear_DimensionMismatch checks width validation.
func TestLinear_DimensionMismatch(t *testing.T) {
	l := NewLinear(4, 6)
	if _, err := l.Forward(tensor.NewTensor([]int{2, 3})); err == nil {
		t.Error("Expected error for mismatched input width, got none")
	}
}
