package model

import (
	"fmt"

	"evoformer/pkg/tensor"
)

// Conv1D implements a 1-D convolution over channel-first input
// (batch, channels, length), with constant zero padding at both ends.
type Conv1D struct {
	W       *tensor.Tensor // (out_channels, in_channels, kernel)
	B       *tensor.Tensor // (out_channels,)
	Kernel  int
	Padding int
}

// NewConv1D creates a 1-D convolution with Xavier-uniform weights and zero
// bias.
func NewConv1D(inChannels, outChannels, kernel, padding int) *Conv1D {
	w := tensor.NewTensor([]int{outChannels, inChannels, kernel})
	xavierUniform(w, inChannels*kernel, outChannels*kernel)
	return &Conv1D{
		W:       w,
		B:       tensor.NewTensor([]int{outChannels}),
		Kernel:  kernel,
		Padding: padding,
	}
}

// Forward convolves the input.
//
// Input shape: (batch, in_channels, length)
// Output shape: (batch, out_channels, length + 2*padding - kernel + 1)
func (c *Conv1D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, channels, length), got %dD with shape %v",
			len(x.Shape), x.Shape)
	}

	batch, inC, length := x.Shape[0], x.Shape[1], x.Shape[2]
	outC := c.W.Shape[0]
	if inC != c.W.Shape[1] {
		return nil, fmt.Errorf("input channels %d don't match conv in_channels %d", inC, c.W.Shape[1])
	}

	outLen := length + 2*c.Padding - c.Kernel + 1
	if outLen < 1 {
		return nil, fmt.Errorf("sequence length %d too short for kernel %d with padding %d",
			length, c.Kernel, c.Padding)
	}

	result := tensor.NewTensor([]int{batch, outC, outLen})

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outC; oc++ {
			for t := 0; t < outLen; t++ {
				sum := c.B.Data[oc]
				for ic := 0; ic < inC; ic++ {
					xOff := (b*inC + ic) * length
					wOff := (oc*inC + ic) * c.Kernel
					for k := 0; k < c.Kernel; k++ {
						pos := t + k - c.Padding
						if pos < 0 || pos >= length {
							continue // zero padding
						}
						sum += x.Data[xOff+pos] * c.W.Data[wOff+k]
					}
				}
				result.Data[(b*outC+oc)*outLen+t] = sum
			}
		}
	}

	return result, nil
}

// depthwiseConv1D applies one filter per input channel with "same" padding,
// preserving both channel count and length.
type depthwiseConv1D struct {
	W      *tensor.Tensor // (channels, kernel)
	B      *tensor.Tensor // (channels,)
	Kernel int
}

func newDepthwiseConv1D(channels, kernel int) *depthwiseConv1D {
	w := tensor.NewTensor([]int{channels, kernel})
	xavierUniform(w, kernel, kernel)
	return &depthwiseConv1D{
		W:      w,
		B:      tensor.NewTensor([]int{channels}),
		Kernel: kernel,
	}
}

func (d *depthwiseConv1D) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	batch, channels, length := x.Shape[0], x.Shape[1], x.Shape[2]
	if channels != d.W.Shape[0] {
		return nil, fmt.Errorf("input channels %d don't match depthwise channels %d", channels, d.W.Shape[0])
	}

	// "same" padding for an odd kernel
	pad := (d.Kernel - 1) / 2
	result := tensor.NewTensor([]int{batch, channels, length})

	for b := 0; b < batch; b++ {
		for ch := 0; ch < channels; ch++ {
			xOff := (b*channels + ch) * length
			wOff := ch * d.Kernel
			for t := 0; t < length; t++ {
				sum := d.B.Data[ch]
				for k := 0; k < d.Kernel; k++ {
					pos := t + k - pad
					if pos < 0 || pos >= length {
						continue
					}
					sum += x.Data[xOff+pos] * d.W.Data[wOff+k]
				}
				result.Data[xOff+t] = sum
			}
		}
	}

	return result, nil
}

// SeparableConv1D implements a depthwise convolution (per-channel spatial
// filtering with "same" padding) followed by a pointwise (kernel=1)
// channel-mixing convolution - a low-parameter stand-in for a dense
// convolution. The evolved cells use it with kernel sizes 7, 9 and 11 and
// varying channel ratios.
type SeparableConv1D struct {
	DepthWise *depthwiseConv1D
	PointWise *Conv1D // kernel 1, in_channels -> out_channels
}

// NewSeparableConv1D creates a separable convolution mapping inChannels to
// outChannels with the given depthwise kernel size.
func NewSeparableConv1D(inChannels, outChannels, kernel int) *SeparableConv1D {
	return &SeparableConv1D{
		DepthWise: newDepthwiseConv1D(inChannels, kernel),
		PointWise: NewConv1D(inChannels, outChannels, 1, 0),
	}
}

// Forward applies the depthwise then pointwise stages.
//
// Input shape: (batch, in_channels, length)
// Output shape: (batch, out_channels, length)
func (s *SeparableConv1D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, channels, length), got %dD with shape %v",
			len(x.Shape), x.Shape)
	}

	out, err := s.DepthWise.forward(x)
	if err != nil {
		return nil, fmt.Errorf("depthwise stage failed: %w", err)
	}

	out, err = s.PointWise.Forward(out)
	if err != nil {
		return nil, fmt.Errorf("pointwise stage failed: %w", err)
	}
	return out, nil
}

// GatedConv implements a gated linear unit (GLU) over the sequence: a 1-D
// convolution producing double-width output, split into value and gate
// halves, combined as value * sigmoid(gate). Shape-preserving.
type GatedConv struct {
	Conv *Conv1D // hidden_dim -> 2*hidden_dim, kernel 3, padding 1
}

// NewGatedConv creates the gated convolution block for the given hidden
// width.
func NewGatedConv(hiddenDim int) *GatedConv {
	return &GatedConv{Conv: NewConv1D(hiddenDim, 2*hiddenDim, 3, 1)}
}

// Forward applies the gated convolution.
//
// Input shape: (batch, seq, hidden_dim)
// Output shape: same as input
func (g *GatedConv) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, seq, hidden_dim), got %dD with shape %v",
			len(x.Shape), x.Shape)
	}

	// Channel-first for the convolution, then back.
	xT, err := x.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose input: %w", err)
	}

	convolved, err := g.Conv.Forward(xT)
	if err != nil {
		return nil, fmt.Errorf("gated convolution failed: %w", err)
	}

	convolved, err = convolved.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose output: %w", err)
	}

	// Split the doubled last dimension into value and gate halves.
	batch, seqLen, doubled := convolved.Shape[0], convolved.Shape[1], convolved.Shape[2]
	half := doubled / 2

	value, err := convolved.SliceN([]int{0, 0, 0}, []int{batch, seqLen, half})
	if err != nil {
		return nil, fmt.Errorf("failed to slice value half: %w", err)
	}
	gate, err := convolved.SliceN([]int{0, 0, half}, []int{batch, seqLen, doubled})
	if err != nil {
		return nil, fmt.Errorf("failed to slice gate half: %w", err)
	}

	return tensor.Mul(value, gate.Sigmoid())
}
