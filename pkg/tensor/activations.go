package tensor

import "math"

// ReLU applies the rectified linear unit activation element-wise.
//
// Input: tensor of any shape
// Output: tensor of the same shape with max(0, x) applied element-wise
func (t *Tensor) ReLU() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		if x > 0 {
			result.Data[i] = x
		}
	}
	return result
}

// Sigmoid applies the logistic sigmoid activation element-wise.
//
//	sigmoid(x) = 1 / (1 + exp(-x))
//
// Used by the gated convolution block to gate its value half.
func (t *Tensor) Sigmoid() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		result.Data[i] = 1.0 / (1.0 + math.Exp(-x))
	}
	return result
}

// SiLU applies the sigmoid-weighted linear unit (swish) activation
// element-wise.
//
//	SiLU(x) = x * sigmoid(x)
//
// The encoder's position-wise feed-forward sublayer uses SiLU between its
// two linear projections.
func (t *Tensor) SiLU() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		result.Data[i] = x / (1.0 + math.Exp(-x))
	}
	return result
}
