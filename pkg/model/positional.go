package model

import (
	"fmt"
	"math"

	"evoformer/pkg/tensor"
)

// PositionalEncoding adds a fixed sinusoidal position signal to an embedding
// tensor. The table is precomputed once at construction and never learned:
// even-indexed channels hold sin(pos / 10000^(2i/emb_dim)) and odd-indexed
// channels hold the corresponding cosine.
type PositionalEncoding struct {
	Table   *tensor.Tensor // (max_len, emb_dim)
	Dropout float64
}

// NewPositionalEncoding precomputes the sinusoidal table for sequences up to
// maxLen positions.
func NewPositionalEncoding(embDim, maxLen int, dropout float64) *PositionalEncoding {
	table := tensor.NewTensor([]int{maxLen, embDim})

	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < embDim; i += 2 {
			angle := float64(pos) * math.Exp(-float64(i)*math.Log(10000.0)/float64(embDim))
			table.Data[pos*embDim+i] = math.Sin(angle)
			if i+1 < embDim {
				table.Data[pos*embDim+i+1] = math.Cos(angle)
			}
		}
	}

	return &PositionalEncoding{Table: table, Dropout: dropout}
}

// Forward adds the first seq rows of the table to x (broadcast over the
// batch), then applies dropout.
//
// Input shape: (batch, seq, emb_dim)
// Output shape: same as input
//
// Returns an error when seq exceeds the table's maximum length.
func (pe *PositionalEncoding) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, seq, emb_dim), got %dD with shape %v",
			len(x.Shape), x.Shape)
	}

	seqLen, embDim := x.Shape[1], x.Shape[2]
	maxLen := pe.Table.Shape[0]
	if seqLen > maxLen {
		return nil, fmt.Errorf("sequence length %d exceeds positional encoding table length %d",
			seqLen, maxLen)
	}
	if embDim != pe.Table.Shape[1] {
		return nil, fmt.Errorf("input dimension %d doesn't match positional encoding dimension %d",
			embDim, pe.Table.Shape[1])
	}

	rows, err := pe.Table.SliceN([]int{0, 0}, []int{seqLen, embDim})
	if err != nil {
		return nil, fmt.Errorf("failed to slice positional table: %w", err)
	}

	out, err := tensor.Add(x, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to add positional encoding: %w", err)
	}

	return out.Dropout(pe.Dropout, training), nil
}
