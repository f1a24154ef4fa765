package model

import (
	"fmt"

	"evoformer/pkg/model/attention"
	"evoformer/pkg/tensor"
)

// EncoderCell is one evolved encoder layer, a six-stage pipeline:
//
//  1. gated convolution (GLU) over the normalized input
//  2. a linear branch (hidden -> pff) summed with a half-width convolution
//     branch padded up to pff width
//  3. separable convolution (pff -> hidden/2, kernel 9) padded back up to
//     hidden width, plus the stage-1 residual
//  4. multi-head self-attention with the source padding mask, residual
//  5. position-wise feed-forward (Linear -> SiLU -> Linear), residual
//
// Branches of different widths are padded with the configured fill constant
// before summation. The hidden state is (batch, seq, hidden_dim) at every
// stage boundary.
type EncoderCell struct {
	GLU       *GatedConv
	Attention *attention.MultiHeadAttention

	MidNorm    *LayerNorm   // sized pff_dim, ahead of the separable conv
	LayerNorms []*LayerNorm // 4 instances sized hidden_dim

	LeftNet  *Linear // hidden -> pff
	RightNet *Conv1D // hidden -> hidden/2, kernel 3, padding 1
	SepConv  *SeparableConv1D

	PffIn  *Linear // hidden -> pff
	PffOut *Linear // pff -> hidden

	Dropout float64
	PadFill float64
}

// NewEncoderCell creates one encoder layer from the configuration.
func NewEncoderCell(config Config) *EncoderCell {
	// Attention weights carry no dropout; the dropout ratio applies to the
	// embedding and branch networks only.
	attn := attention.New(attention.Config{
		NumHeads: config.NumHeads,
		Dim:      config.HiddenDim,
		Dropout:  0,
	})
	initAttention(attn)

	norms := make([]*LayerNorm, 4)
	for i := range norms {
		norms[i] = NewLayerNorm(config.HiddenDim, 1e-5)
	}

	return &EncoderCell{
		GLU:        NewGatedConv(config.HiddenDim),
		Attention:  attn,
		MidNorm:    NewLayerNorm(config.PffDim, 1e-5),
		LayerNorms: norms,
		LeftNet:    NewLinear(config.HiddenDim, config.PffDim),
		RightNet:   NewConv1D(config.HiddenDim, config.HiddenDim/2, 3, 1),
		SepConv:    NewSeparableConv1D(config.PffDim, config.HiddenDim/2, 9),
		PffIn:      NewLinear(config.HiddenDim, config.PffDim),
		PffOut:     NewLinear(config.PffDim, config.HiddenDim),
		Dropout:    config.Dropout,
		PadFill:    config.PadFill,
	}
}

// Forward runs the cell pipeline.
//
// Input shapes:
//   - x: (batch, src_len, hidden_dim)
//   - srcMask: (batch, src_len); nonzero marks padding positions
//
// Output shape: same as x.
func (c *EncoderCell) Forward(x, srcMask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	// Block 1: gated convolution.
	normed, err := c.LayerNorms[0].Forward(x)
	if err != nil {
		return nil, fmt.Errorf("block 1 norm failed: %w", err)
	}
	b1, err := c.GLU.Forward(normed)
	if err != nil {
		return nil, fmt.Errorf("block 1 gated convolution failed: %w", err)
	}

	// Block 2: linear branch + half-width convolution branch, padded to pff.
	normed, err = c.LayerNorms[1].Forward(b1)
	if err != nil {
		return nil, fmt.Errorf("block 2 norm failed: %w", err)
	}

	left, err := c.LeftNet.Forward(normed)
	if err != nil {
		return nil, fmt.Errorf("block 2 left branch failed: %w", err)
	}
	left = left.ReLU().Dropout(c.Dropout, training)

	normedT, err := normed.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("block 2 right branch transpose failed: %w", err)
	}
	right, err := c.RightNet.Forward(normedT)
	if err != nil {
		return nil, fmt.Errorf("block 2 right branch convolution failed: %w", err)
	}
	right, err = right.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("block 2 right branch transpose failed: %w", err)
	}
	right = right.ReLU().Dropout(c.Dropout, training)

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
	b3T, err := b3.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("block 3 transpose failed: %w", err)
	}
	b3, err = c.SepConv.Forward(b3T)
	if err != nil {
		return nil, fmt.Errorf("block 3 separable convolution failed: %w", err)
	}
	b3, err = b3.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("block 3 transpose failed: %w", err)
	}
	b3, err = b3.PadLast(b1.Shape[len(b1.Shape)-1], c.PadFill)
	if err != nil {
		return nil, fmt.Errorf("block 3 padding failed: %w", err)
	}
	b3, err = tensor.Add(b3, b1)
	if err != nil {
		return nil, fmt.Errorf("block 3 residual failed: %w", err)
	}

	// Block 4: self-attention with the source padding mask.
	normed, err = c.LayerNorms[2].Forward(b3)
	if err != nil {
		return nil, fmt.Errorf("block 4 norm failed: %w", err)
	}
	attnOut, err := c.Attention.Forward(normed, normed, srcMask, nil, training)
	if err != nil {
		return nil, fmt.Errorf("block 4 self-attention failed: %w", err)
	}
	b4, err := tensor.Add(b3, attnOut)
	if err != nil {
		return nil, fmt.Errorf("block 4 residual failed: %w", err)
	}

	// Blocks 5-6: position-wise feed-forward with SiLU.
	normed, err = c.LayerNorms[3].Forward(b4)
	if err != nil {
		return nil, fmt.Errorf("block 5 norm failed: %w", err)
	}
	pff, err := c.PffIn.Forward(normed)
	if err != nil {
		return nil, fmt.Errorf("feed-forward input projection failed: %w", err)
	}
	pff, err = c.PffOut.Forward(pff.SiLU())
	if err != nil {
		return nil, fmt.Errorf("feed-forward output projection failed: %w", err)
	}

	out, err := tensor.Add(pff, b4)
	if err != nil {
		return nil, fmt.Errorf("feed-forward residual failed: %w", err)
	}
	return out, nil
}

// EvolvedEncoder stacks n_layers/2 independently initialized encoder cells
// atop one embedding layer. The padding mask is threaded unchanged through
// every cell; there is no parameter sharing across cells.
type EvolvedEncoder struct {
	Embeddings *Embeddings
	Cells      []*EncoderCell
}

// NewEvolvedEncoder creates the encoder stack.
func NewEvolvedEncoder(config Config) *EvolvedEncoder {
	cells := make([]*EncoderCell, config.NumLayers/2)
	for i := range cells {
		cells[i] = NewEncoderCell(config)
	}
	return &EvolvedEncoder{
		Embeddings: NewEmbeddings(config),
		Cells:      cells,
	}
}

// Forward embeds the source ids and runs them through every cell.
//
// Input shapes:
//   - srcIDs: (batch, src_len) token ids
//   - srcMask: (batch, src_len) padding mask
//
// Output shape: (batch, src_len, hidden_dim) - the encoder memory.
func (e *EvolvedEncoder) Forward(srcIDs, srcMask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	x, err := e.Embeddings.Forward(srcIDs, training)
	if err != nil {
		return nil, fmt.Errorf("encoder embedding failed: %w", err)
	}
	for i, cell := range e.Cells {
		x, err = cell.Forward(x, srcMask, training)
		if err != nil {
			return nil, fmt.Errorf("encoder cell %d failed: %w", i, err)
		}
	}
	return x, nil
}
