package model

import (
	"fmt"

	"evoformer/pkg/model/attention"
	"evoformer/pkg/tensor"
)

// DecoderCell is one evolved decoder layer, a seven-stage pipeline:
//
//  1. two parallel causally masked self-attention branches, one with the
//     doubled head count and one with the base head count, summed
//  2. two parallel separable-convolution branches (hidden -> 2*hidden
//     kernel 11 with ReLU, hidden -> hidden/2 kernel 7), the narrow branch
//     padded up to the wide one, summed
//  3. separable convolution (2*hidden -> hidden, kernel 7) plus the stage-1
//     residual
//  4. causally masked self-attention with the doubled head count, residual
//  5. cross-attention to the encoder memory with the source padding mask,
//     residual
//  6. position-wise feed-forward (Linear -> ReLU -> Linear), residual
type DecoderCell struct {
	LeftAttn  *attention.MultiHeadAttention // 2*n_heads, causal
	RightAttn *attention.MultiHeadAttention // n_heads, causal
	SelfAttn  *attention.MultiHeadAttention // 2*n_heads, causal
	SrcAttn   *attention.MultiHeadAttention // n_heads, over encoder memory

	MidNorm    *LayerNorm   // sized 2*hidden_dim
	LayerNorms []*LayerNorm // 5 instances sized hidden_dim

	LeftNet  *SeparableConv1D // hidden -> 2*hidden, kernel 11
	RightNet *SeparableConv1D // hidden -> hidden/2, kernel 7
	SepConv  *SeparableConv1D // 2*hidden -> hidden, kernel 7

	PffIn  *Linear // hidden -> pff
	PffOut *Linear // pff -> hidden

	PadFill float64
}

// NewDecoderCell creates one decoder layer from the configuration.
func NewDecoderCell(config Config) *DecoderCell {
	// Attention weights carry no dropout; the dropout ratio applies to the
	// embedding and branch networks only.
	newAttn := func(heads int) *attention.MultiHeadAttention {
		a := attention.New(attention.Config{
			NumHeads: heads,
			Dim:      config.HiddenDim,
			Dropout:  0,
		})
		initAttention(a)
		return a
	}

	norms := make([]*LayerNorm, 5)
	for i := range norms {
		norms[i] = NewLayerNorm(config.HiddenDim, 1e-5)
	}

	return &DecoderCell{
		LeftAttn:   newAttn(config.NumHeads * 2),
		RightAttn:  newAttn(config.NumHeads),
		SelfAttn:   newAttn(config.NumHeads * 2),
		SrcAttn:    newAttn(config.NumHeads),
		MidNorm:    NewLayerNorm(config.HiddenDim*2, 1e-5),
		LayerNorms: norms,
		LeftNet:    NewSeparableConv1D(config.HiddenDim, config.HiddenDim*2, 11),
		RightNet:   NewSeparableConv1D(config.HiddenDim, config.HiddenDim/2, 7),
		SepConv:    NewSeparableConv1D(config.HiddenDim*2, config.HiddenDim, 7),
		PffIn:      NewLinear(config.HiddenDim, config.PffDim),
		PffOut:     NewLinear(config.PffDim, config.HiddenDim),
		PadFill:    config.PadFill,
	}
}

// sepConvSeq applies a separable convolution to a (batch, seq, channels)
// tensor, handling the round trip through channel-first layout.
func sepConvSeq(conv *SeparableConv1D, x *tensor.Tensor) (*tensor.Tensor, error) {
	xT, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}
	out, err := conv.Forward(xT)
	if err != nil {
		return nil, err
	}
	return out.Transpose(1, 2)
}

// Forward runs the cell pipeline.
//
// Input shapes:
//   - x: (batch, tgt_len, hidden_dim)
//   - memory: (batch, src_len, hidden_dim) encoder output
//   - srcMask: (batch, src_len) padding mask over the memory
//   - tgtMask: (tgt_len, tgt_len) causal mask
//
// Output shape: same as x.
func (c *DecoderCell) Forward(x, memory, srcMask, tgtMask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	// Block 1: two parallel causal self-attention branches.
	normed, err := c.LayerNorms[0].Forward(x)
	if err != nil {
		return nil, fmt.Errorf("block 1 norm failed: %w", err)
	}
	left, err := c.LeftAttn.Forward(normed, normed, nil, tgtMask, training)
	if err != nil {
		return nil, fmt.Errorf("block 1 left attention failed: %w", err)
	}
	right, err := c.RightAttn.Forward(normed, normed, nil, tgtMask, training)
	if err != nil {
		return nil, fmt.Errorf("block 1 right attention failed: %w", err)
	}
	b1, err := tensor.Add(left, right)
	if err != nil {
		return nil, fmt.Errorf("block 1 branch sum failed: %w", err)
	}

	// Block 2: wide and narrow separable-convolution branches.
	normed, err = c.LayerNorms[1].Forward(b1)
	if err != nil {
		return nil, fmt.Errorf("block 2 norm failed: %w", err)
	}
	left, err = sepConvSeq(c.LeftNet, normed)
	if err != nil {
		return nil, fmt.Errorf("block 2 left convolution failed: %w", err)
	}
	left = left.ReLU()

	right, err = sepConvSeq(c.RightNet, normed)
	if err != nil {
		return nil, fmt.Errorf("block 2 right convolution failed: %w", err)
	}
	right, err = right.PadLast(left.Shape[len(left.Shape)-1], c.PadFill)
	if err != nil {
		return nil, fmt.Errorf("block 2 branch padding failed: %w", err)
	}
	b2, err := tensor.Add(left, right)
	if err != nil {
		return nil, fmt.Errorf("block 2 branch sum failed: %w", err)
	}

	// Block 3: separable convolution back to hidden width, stage-1 residual.
	b3, err := c.MidNorm.Forward(b2)
	if err != nil {
		return nil, fmt.Errorf("block 3 mid-norm failed: %w", err)
	}
	b3, err = sepConvSeq(c.SepConv, b3)
	if err != nil {
		return nil, fmt.Errorf("block 3 separable convolution failed: %w", err)
	}
	b3, err = tensor.Add(b3, b1)
	if err != nil {
		return nil, fmt.Errorf("block 3 residual failed: %w", err)
	}

	// Block 4: causal self-attention with doubled head count.
	normed, err = c.LayerNorms[2].Forward(b3)
	if err != nil {
		return nil, fmt.Errorf("block 4 norm failed: %w", err)
	}
	attnOut, err := c.SelfAttn.Forward(normed, normed, nil, tgtMask, training)
	if err != nil {
		return nil, fmt.Errorf("block 4 self-attention failed: %w", err)
	}
	b4, err := tensor.Add(attnOut, b3)
	if err != nil {
		return nil, fmt.Errorf("block 4 residual failed: %w", err)
	}

	// Block 5: cross-attention to the encoder memory.
	normed, err = c.LayerNorms[3].Forward(b4)
	if err != nil {
		return nil, fmt.Errorf("block 5 norm failed: %w", err)
	}
	attnOut, err = c.SrcAttn.Forward(normed, memory, srcMask, nil, training)
	if err != nil {
		return nil, fmt.Errorf("block 5 cross-attention failed: %w", err)
	}
	b5, err := tensor.Add(attnOut, b4)
	if err != nil {
		return nil, fmt.Errorf("block 5 residual failed: %w", err)
	}

	// Blocks 6-7: position-wise feed-forward with ReLU.
	normed, err = c.LayerNorms[4].Forward(b5)
	if err != nil {
		return nil, fmt.Errorf("block 6 norm failed: %w", err)
	}
	pff, err := c.PffIn.Forward(normed)
	if err != nil {
		return nil, fmt.Errorf("feed-forward input projection failed: %w", err)
	}
	pff, err = c.PffOut.Forward(pff.ReLU())
	if err != nil {
		return nil, fmt.Errorf("feed-forward output projection failed: %w", err)
	}

	out, err := tensor.Add(pff, b5)
	if err != nil {
		return nil, fmt.Errorf("feed-forward residual failed: %w", err)
	}
	return out, nil
}

// EvolvedDecoder stacks n_layers/2 independently initialized decoder cells
// atop one embedding layer. Both masks are threaded unchanged through every
// cell; there is no parameter sharing across cells.
type EvolvedDecoder struct {
	Embeddings *Embeddings
	Cells      []*DecoderCell
}

// NewEvolvedDecoder creates the decoder stack.
func NewEvolvedDecoder(config Config) *EvolvedDecoder {
	cells := make([]*DecoderCell, config.NumLayers/2)
	for i := range cells {
		cells[i] = NewDecoderCell(config)
	}
	return &EvolvedDecoder{
		Embeddings: NewEmbeddings(config),
		Cells:      cells,
	}
}

// Forward embeds the target ids and runs them through every cell.
//
// Input shapes:
//   - tgtIDs: (batch, tgt_len) token ids (already shifted for teacher forcing)
//   - memory: (batch, src_len, hidden_dim) encoder output
//   - srcMask: (batch, src_len) padding mask
//   - tgtMask: (tgt_len, tgt_len) causal mask
//
// Output shape: (batch, tgt_len, hidden_dim)
func (d *EvolvedDecoder) Forward(tgtIDs, memory, srcMask, tgtMask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	x, err := d.Embeddings.Forward(tgtIDs, training)
	if err != nil {
		return nil, fmt.Errorf("decoder embedding failed: %w", err)
	}
	for i, cell := range d.Cells {
		x, err = cell.Forward(x, memory, srcMask, tgtMask, training)
		if err != nil {
			return nil, fmt.Errorf("decoder cell %d failed: %w", i, err)
		}
	}
	return x, nil
}
