package model

import (
	"fmt"
	"math"

	"evoformer/pkg/tensor"
)

// Embeddings maps token ids to hidden-state vectors. The lookup result is
// scaled by sqrt(emb_dim) to stabilize variance, combined with the sinusoidal
// positional encoding, optionally projected from emb_dim to hidden_dim when
// the two differ, and finally passed through dropout. The encoder and the
// decoder each own one independent instance.
type Embeddings struct {
	Table   *tensor.Tensor // (vocab_size, emb_dim)
	PosEnc  *PositionalEncoding
	Proj    *Linear // nil when emb_dim == hidden_dim
	Scale   float64
	Dropout float64
}

// NewEmbeddings creates the embedding layer for the given configuration.
func NewEmbeddings(config Config) *Embeddings {
	table := tensor.NewTensor([]int{config.VocabSize, config.EmbDim})
	normalInit(table, 0.02)

	var proj *Linear
	if config.EmbDim != config.HiddenDim {
		proj = NewLinear(config.EmbDim, config.HiddenDim)
	}

	return &Embeddings{
		Table:   table,
		PosEnc:  NewPositionalEncoding(config.EmbDim, config.MaxLen, config.Dropout),
		Proj:    proj,
		Scale:   math.Sqrt(float64(config.EmbDim)),
		Dropout: config.Dropout,
	}
}

// Forward embeds a batch of token id sequences.
//
// Input shape: (batch, seq) - token ids
// Output shape: (batch, seq, hidden_dim)
func (e *Embeddings) Forward(ids *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(ids.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, seq), got %dD with shape %v",
			len(ids.Shape), ids.Shape)
	}

	batchSize, seqLen := ids.Shape[0], ids.Shape[1]
	vocabSize, embDim := e.Table.Shape[0], e.Table.Shape[1]

	out := tensor.NewTensor([]int{batchSize, seqLen, embDim})
	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			tokenID := int(ids.Get([]int{b, s}))
			if tokenID < 0 || tokenID >= vocabSize {
				return nil, fmt.Errorf("invalid token id %d at position (%d, %d), vocab size is %d",
					tokenID, b, s, vocabSize)
			}
			srcOff := tokenID * embDim
			dstOff := (b*seqLen + s) * embDim
			copy(out.Data[dstOff:dstOff+embDim], e.Table.Data[srcOff:srcOff+embDim])
		}
	}

	out = out.Scale(e.Scale)

	out, err := e.PosEnc.Forward(out, training)
	if err != nil {
		return nil, fmt.Errorf("failed to apply positional encoding: %w", err)
	}

	if e.Proj != nil {
		out, err = e.Proj.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("failed to project embeddings: %w", err)
		}
	}

	return out.Dropout(e.Dropout, training), nil
}
