package model

import (
	"math"
	"testing"

	"evoformer/pkg/tensor"
)

// TestNewLayerNorm tests the creation of LayerNorm.
func TestNewLayerNorm(t *testing.T) {
	dim := 64
	eps := 1e-5

	ln := NewLayerNorm(dim, eps)

	if ln.Eps != eps {
		t.Errorf("Expected Eps=%v, got %v", eps, ln.Eps)
	}
	if len(ln.Scale.Data) != dim {
		t.Errorf("Expected scale length %d, got %d", dim, len(ln.Scale.Data))
	}
	for i, v := range ln.Scale.Data {
		if v != 1.0 {
			t.Errorf("Scale[%d] = %v, expected 1.0", i, v)
		}
	}
	for i, v := range ln.Shift.Data {
		if v != 0.0 {
			t.Errorf("Shift[%d] = %v, expected 0.0", i, v)
		}
	}
}

// TestLayerNorm_Normalizes tests that each output row has zero mean and
// unit variance under the default scale/shift.
func TestLayerNorm_Normalizes(t *testing.T) {
	dim := 8
	ln := NewLayerNorm(dim, 1e-5)

	x := tensor.NewTensor([]int{2, 3, dim})
	for i := range x.Data {
		x.Data[i] = float64(i%13)*2.5 - 7
	}

	out, err := ln.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !out.ShapeEquals(x) {
		t.Fatalf("Expected shape %v, got %v", x.Shape, out.Shape)
	}

	for offset := 0; offset < len(out.Data); offset += dim {
		mean := 0.0
		for i := 0; i < dim; i++ {
			mean += out.Data[offset+i]
		}
		mean /= float64(dim)
		if math.Abs(mean) > 1e-9 {
			t.Errorf("Row at %d has mean %v, expected 0", offset, mean)
		}

		variance := 0.0
		for i := 0; i < dim; i++ {
			diff := out.Data[offset+i] - mean
			variance += diff * diff
		}
		variance /= float64(dim)
		if math.Abs(variance-1.0) > 1e-3 {
			t.Errorf("Row at %d has variance %v, expected ~1", offset, variance)
		}
	}
}

// TestLayerNorm_ScaleShift tests the learned affine transform.
func TestLayerNorm_ScaleShift(t *testing.T) {
	dim := 4
	ln := NewLayerNorm(dim, 1e-5)
	for i := range ln.Scale.Data {
		ln.Scale.Data[i] = 2.0
		ln.Shift.Data[i] = 3.0
	}

	x, _ := tensor.FromSlice([]float64{1, 2, 3, 4}, []int{1, 1, dim})
	plain := NewLayerNorm(dim, 1e-5)

	base, err := plain.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	scaled, err := ln.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for i := range base.Data {
		expected := base.Data[i]*2.0 + 3.0
		if math.Abs(scaled.Data[i]-expected) > 1e-12 {
			t.Errorf("Data[%d] = %v, expected %v", i, scaled.Data[i], expected)
		}
	}
}

// TestLayerNorm_DimensionMismatch tests rejection of wrong widths.
func TestLayerNorm_DimensionMismatch(t *testing.T) {
	ln := NewLayerNorm(8, 1e-5)

	if _, err := ln.Forward(tensor.NewTensor([]int{2, 3, 16})); err == nil {
		t.Error("Expected error for mismatched last dimension, got none")
	}
}
