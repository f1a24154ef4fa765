package model

import (
	"fmt"

	"evoformer/pkg/tensor"
)

// Linear implements a learned affine projection y = x @ W + b applied to the
// last dimension of its input.
type Linear struct {
	W *tensor.Tensor // (in, out)
	B *tensor.Tensor // (out,)
}

// NewLinear creates a linear layer with Xavier-uniform weights and zero bias.
func NewLinear(in, out int) *Linear {
	w := tensor.NewTensor([]int{in, out})
	xavierUniformInit(w)
	return &Linear{
		W: w,
		B: tensor.NewTensor([]int{out}),
	}
}

// Forward applies the projection.
//
// Input shape: (..., in)
// Output shape: (..., out)
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	lastDim := x.Shape[len(x.Shape)-1]
	if lastDim != l.W.Shape[0] {
		return nil, fmt.Errorf("input dimension %d doesn't match linear input dimension %d",
			lastDim, l.W.Shape[0])
	}

	out, err := tensor.Matmul(x, l.W)
	if err != nil {
		return nil, fmt.Errorf("failed to compute linear projection: %w", err)
	}

	out, err = tensor.Add(out, l.B)
	if err != nil {
		return nil, fmt.Errorf("failed to add bias: %w", err)
	}
	return out, nil
}
