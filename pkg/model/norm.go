package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"evoformer/pkg/tensor"
)

// LayerNorm implements layer normalization with learnable scale and shift.
//
// LayerNorm normalizes the input across the last dimension (feature
// dimension) and applies a learned scale (gamma) and shift (beta):
//
//	mean = mean(x, dim=-1)
//	var = var(x, dim=-1)
//	output = (x - mean) / sqrt(var + eps) * scale + shift
//
// The evolved cells keep several independently learned instances: the
// encoder cell four at hidden_dim plus a mid-norm at pff_dim, the decoder
// cell five at hidden_dim plus a mid-norm at 2*hidden_dim.
type LayerNorm struct {
	Scale *tensor.Tensor // (dim,) - gamma parameter
	Shift *tensor.Tensor // (dim,) - beta parameter
	Eps   float64        // Small constant for numerical stability
}

// NewLayerNorm creates a new LayerNorm over the given feature dimension with
// scale=1 and shift=0.
func NewLayerNorm(dim int, eps float64) *LayerNorm {
	scale := tensor.NewTensor([]int{dim})
	for i := range scale.Data {
		scale.Data[i] = 1.0
	}

	return &LayerNorm{
		Scale: scale,
		Shift: tensor.NewTensor([]int{dim}),
		Eps:   eps,
	}
}

// Forward applies layer normalization to the input.
//
// Input shape: (batch, seq, dim) or any shape where the last dim matches
// Output shape: same as input
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("cannot apply LayerNorm to 0D tensor")
	}

	lastDim := x.Shape[len(x.Shape)-1]
	if lastDim != len(ln.Scale.Data) {
		return nil, fmt.Errorf("input last dimension %d doesn't match LayerNorm dimension %d",
			lastDim, len(ln.Scale.Data))
	}

	result := tensor.NewTensor(x.Shape)

	for offset := 0; offset < len(x.Data); offset += lastDim {
		row := x.Data[offset : offset+lastDim]
		out := result.Data[offset : offset+lastDim]

		mean := floats.Sum(row) / float64(lastDim)

		variance := 0.0
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float64(lastDim)

		invStd := 1.0 / math.Sqrt(variance+ln.Eps)
		for i, v := range row {
			out[i] = (v-mean)*invStd*ln.Scale.Data[i] + ln.Shift.Data[i]
		}
	}

	return result, nil
}
