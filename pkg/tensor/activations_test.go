package tensor

import (
	"math"
	"testing"
)

// TestReLU_Values tests the rectifier on positive, negative and zero inputs.
func TestReLU_Values(t *testing.T) {
	tt, _ := FromSlice([]float64{-2, -0.5, 0, 0.5, 3}, []int{5})

	result := tt.ReLU()

	expected := []float64{0, 0, 0, 0.5, 3}
	for i, v := range expected {
		if result.Data[i] != v {
			t.Errorf("ReLU Data[%d] = %v, expected %v", i, result.Data[i], v)
		}
	}
}

// TestSigmoid_Values tests the logistic function at known points.
func TestSigmoid_Values(t *testing.T) {
	tt, _ := FromSlice([]float64{0, 100, -100}, []int{3})

	result := tt.Sigmoid()

	if math.Abs(result.Data[0]-0.5) > 1e-12 {
		t.Errorf("sigmoid(0) = %v, expected 0.5", result.Data[0])
	}
	if math.Abs(result.Data[1]-1.0) > 1e-9 {
		t.Errorf("sigmoid(100) = %v, expected ~1", result.Data[1])
	}
	if result.Data[2] > 1e-9 {
		t.Errorf("sigmoid(-100) = %v, expected ~0", result.Data[2])
	}
}

// TestSiLU_Values tests that SiLU(x) = x * sigmoid(x).
func TestSiLU_Values(t *testing.T) {
	inputs := []float64{-3, -1, 0, 0.5, 2}
	tt, _ := FromSlice(inputs, []int{5})

	result := tt.SiLU()

	for i, x := range inputs {
		expected := x / (1.0 + math.Exp(-x))
		if math.Abs(result.Data[i]-expected) > 1e-12 {
			t.Errorf("SiLU(%v) = %v, expected %v", x, result.Data[i], expected)
		}
	}

	// SiLU(0) is exactly 0.
	if result.Data[2] != 0 {
		t.Errorf("SiLU(0) = %v, expected 0", result.Data[2])
	}
}

// TestActivations_PreserveShape tests that activations keep the input shape.
func TestActivations_PreserveShape(t *testing.T) {
	tt := NewTensor([]int{2, 3, 4})

	for name, result := range map[string]*Tensor{
		"relu":    tt.ReLU(),
		"sigmoid": tt.Sigmoid(),
		"silu":    tt.SiLU(),
	} {
		if !result.ShapeEquals(tt) {
			t.Errorf("%s changed shape: got %v, expected %v", name, result.Shape, tt.Shape)
		}
	}
}
