// Package model implements the Evolved Transformer, an encoder-decoder
// sequence-to-sequence architecture built from heterogeneous sub-blocks.
//
// The architecture was found by neural architecture search and differs from
// the vanilla transformer in its cell structure:
//   - The encoder cell opens with a gated convolution (GLU) and mixes a
//     linear branch with a convolution branch of half width before a
//     separable convolution, self-attention, and a SiLU feed-forward.
//   - The decoder cell runs two parallel self-attention branches with
//     different head counts, two parallel separable-convolution branches of
//     different widths, a third self-attention, cross-attention to the
//     encoder memory, and a ReLU feed-forward.
//
// Branches of different channel widths are reconciled with an explicit
// pad-to-width operation before recombination; the fill constant is part of
// the configuration.
package model

import "fmt"

// Config holds the hyperparameters of the Evolved Transformer.
// All fields are consumed at construction; the model never mutates them.
type Config struct {
	// VocabSize is the size of the shared source/target token vocabulary.
	VocabSize int

	// EmbDim is the dimension of the token embedding table. When it differs
	// from HiddenDim, the embedding layer projects up with a learned affine.
	EmbDim int

	// HiddenDim is the width of the hidden state at every cell boundary.
	// Must be divisible by NumHeads and by 2*NumHeads (the decoder doubles
	// the head count in places).
	HiddenDim int

	// PffDim is the inner width of the position-wise feed-forward sublayers.
	PffDim int

	// NumHeads is the base attention head count.
	NumHeads int

	// NumLayers is the total layer count, split equally between encoder and
	// decoder. Must be even.
	NumLayers int

	// Dropout is the dropout ratio applied by embeddings, attention weights,
	// and the encoder branch networks.
	Dropout float64

	// PadID is the token id that marks padding positions in id sequences.
	PadID int

	// PadFill is the constant used when padding mismatched branch widths
	// inside the cells. The reference system fills with the pad id; zero is
	// the numerically conventional alternative.
	PadFill float64

	// MaxLen is the maximum sequence length supported by the positional
	// encoding table.
	MaxLen int
}

// DefaultConfig returns the configuration of the reference WMT-scale model.
// PadFill mirrors the reference behavior of filling with the pad id.
func DefaultConfig() Config {
	padID := 0
	return Config{
		VocabSize: 15000,
		EmbDim:    512,
		HiddenDim: 512,
		PffDim:    2048,
		NumHeads:  8,
		NumLayers: 6,
		Dropout:   0.1,
		PadID:     padID,
		PadFill:   float64(padID),
		MaxLen:    512,
	}
}

// Validate checks if the configuration is valid and consistent.
// Returns an error if any parameters are incompatible.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.EmbDim <= 0 {
		return fmt.Errorf("emb_dim must be positive, got %d", c.EmbDim)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("hidden_dim must be positive, got %d", c.HiddenDim)
	}
	if c.PffDim <= 0 {
		return fmt.Errorf("pff_dim must be positive, got %d", c.PffDim)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("n_heads must be positive, got %d", c.NumHeads)
	}
	if c.HiddenDim%c.NumHeads != 0 {
		return fmt.Errorf("hidden_dim (%d) must be divisible by n_heads (%d)",
			c.HiddenDim, c.NumHeads)
	}
	if c.HiddenDim%(2*c.NumHeads) != 0 {
		return fmt.Errorf("hidden_dim (%d) must be divisible by 2*n_heads (%d), the decoder's doubled head count",
			c.HiddenDim, 2*c.NumHeads)
	}
	if c.NumLayers <= 0 || c.NumLayers%2 != 0 {
		return fmt.Errorf("n_layers must be positive and even (split between encoder and decoder), got %d", c.NumLayers)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout_ratio must be in [0, 1), got %g", c.Dropout)
	}
	if c.PadID < 0 || c.PadID >= c.VocabSize {
		return fmt.Errorf("pad_id %d outside vocabulary [0, %d)", c.PadID, c.VocabSize)
	}
	if c.MaxLen <= 0 {
		return fmt.Errorf("max_len must be positive, got %d", c.MaxLen)
	}
	return nil
}
