// Package attention implements the multi-branch multi-head attention used by
// the evolved encoder and decoder cells: plain self-attention, causally
// masked self-attention, and cross-attention against the encoder memory,
// all with an optional key-padding mask.
package attention

import (
	"fmt"
	"math"

	"evoformer/pkg/tensor"
)

// Config holds the parameters of a multi-head attention layer. The decoder
// cells instantiate the same hidden width with both n_heads and 2*n_heads,
// so the head count is per-layer, not global.
type Config struct {
	NumHeads int
	Dim      int // model width; must be divisible by NumHeads
	Dropout  float64
}

// MultiHeadAttention implements multi-head scaled dot-product attention.
//
// Query and key/value inputs are separate, so the same layer serves both
// self-attention (q == kv) and cross-attention to the encoder memory.
type MultiHeadAttention struct {
	NumHeads int
	HeadDim  int
	Dim      int
	Dropout  float64

	WQuery  *tensor.Tensor // (dim, dim)
	WKey    *tensor.Tensor // (dim, dim)
	WValue  *tensor.Tensor // (dim, dim)
	OutProj *tensor.Tensor // (dim, dim)
}

// New creates a multi-head attention layer. Weights are allocated zeroed;
// the owning cell initializes them.
func New(config Config) *MultiHeadAttention {
	if config.Dim%config.NumHeads != 0 {
		panic(fmt.Sprintf("dim (%d) must be divisible by num_heads (%d)", config.Dim, config.NumHeads))
	}

	return &MultiHeadAttention{
		NumHeads: config.NumHeads,
		HeadDim:  config.Dim / config.NumHeads,
		Dim:      config.Dim,
		Dropout:  config.Dropout,
		WQuery:   tensor.NewTensor([]int{config.Dim, config.Dim}),
		WKey:     tensor.NewTensor([]int{config.Dim, config.Dim}),
		WValue:   tensor.NewTensor([]int{config.Dim, config.Dim}),
		OutProj:  tensor.NewTensor([]int{config.Dim, config.Dim}),
	}
}

// Forward computes attention of query positions over key/value positions.
//
// Input shapes:
//   - query: (batch, q_len, dim)
//   - keyValue: (batch, kv_len, dim) - same tensor as query for self-attention
//   - keyPadMask: optional (batch, kv_len); nonzero entries mark key
//     positions whose contribution is blocked (padding)
//   - attnMask: optional (q_len, kv_len); nonzero entries mark disallowed
//     query/key pairs (the causal mask)
//
// Output shape: (batch, q_len, dim)
func (m *MultiHeadAttention) Forward(query, keyValue, keyPadMask, attnMask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(query.Shape) != 3 || len(keyValue.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D inputs (batch, seq, dim), got shapes %v and %v",
			query.Shape, keyValue.Shape)
	}

	batchSize, qLen, dim := query.Shape[0], query.Shape[1], query.Shape[2]
	kvLen := keyValue.Shape[1]

	if dim != m.Dim || keyValue.Shape[2] != m.Dim {
		return nil, fmt.Errorf("input dimensions %d/%d don't match expected %d",
			dim, keyValue.Shape[2], m.Dim)
	}
	if keyValue.Shape[0] != batchSize {
		return nil, fmt.Errorf("query batch %d doesn't match key/value batch %d",
			batchSize, keyValue.Shape[0])
	}
	if keyPadMask != nil && (len(keyPadMask.Shape) != 2 || keyPadMask.Shape[0] != batchSize || keyPadMask.Shape[1] != kvLen) {
		return nil, fmt.Errorf("key padding mask shape %v doesn't match (batch=%d, kv_len=%d)",
			keyPadMask.Shape, batchSize, kvLen)
	}
	if attnMask != nil && (len(attnMask.Shape) != 2 || attnMask.Shape[0] != qLen || attnMask.Shape[1] != kvLen) {
		return nil, fmt.Errorf("attention mask shape %v doesn't match (q_len=%d, kv_len=%d)",
			attnMask.Shape, qLen, kvLen)
	}

	// Step 1: Project to Q, K, V: (batch, seq, dim)
	Q, err := tensor.Matmul(query, m.WQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to compute Q: %w", err)
	}
	K, err := tensor.Matmul(keyValue, m.WKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute K: %w", err)
	}
	V, err := tensor.Matmul(keyValue, m.WValue)
	if err != nil {
		return nil, fmt.Errorf("failed to compute V: %w", err)
	}

	// Step 2: Split heads: (batch, num_heads, seq, head_dim)
	Q, err = Q.Reshape([]int{batchSize, qLen, m.NumHeads, m.HeadDim}).Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose Q: %w", err)
	}
	K, err = K.Reshape([]int{batchSize, kvLen, m.NumHeads, m.HeadDim}).Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose K: %w", err)
	}
	V, err = V.Reshape([]int{batchSize, kvLen, m.NumHeads, m.HeadDim}).Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose V: %w", err)
	}

	// Step 3: Scaled scores: (batch, num_heads, q_len, kv_len)
	KT, err := K.Transpose(2, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose K: %w", err)
	}
	scores, err := tensor.Matmul(Q, KT)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	scores = scores.Scale(1.0 / math.Sqrt(float64(m.HeadDim)))

	// Step 4: Block masked positions before the softmax.
	applyMasks(scores, keyPadMask, attnMask, batchSize, m.NumHeads, qLen, kvLen)

	// Step 5: Softmax over keys, with dropout on the attention weights.
	weights := tensor.Softmax(scores)
	if m.Dropout > 0 && training {
		weights = weights.Dropout(m.Dropout, training)
	}

	// Step 6: Weighted sum of values: (batch, num_heads, q_len, head_dim)
	attnOut, err := tensor.Matmul(weights, V)
	if err != nil {
		return nil, fmt.Errorf("failed to apply attention to V: %w", err)
	}

	// Step 7: Merge heads and project.
	attnOut, err = attnOut.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose attention output: %w", err)
	}
	attnOut = attnOut.Reshape([]int{batchSize, qLen, m.Dim})

	output, err := tensor.Matmul(attnOut, m.OutProj)
	if err != nil {
		return nil, fmt.Errorf("failed to apply output projection: %w", err)
	}

	return output, nil
}

// applyMasks writes -Inf into score entries blocked by the key-padding mask
// (per batch, per key) or the attention mask (per query/key pair).
func applyMasks(scores, keyPadMask, attnMask *tensor.Tensor, batch, heads, qLen, kvLen int) {
	if keyPadMask == nil && attnMask == nil {
		return
	}

	negInf := math.Inf(-1)
	for b := 0; b < batch; b++ {
		for h := 0; h < heads; h++ {
			base := ((b*heads + h) * qLen) * kvLen
			for q := 0; q < qLen; q++ {
				rowOff := base + q*kvLen
				for k := 0; k < kvLen; k++ {
					if attnMask != nil && attnMask.Data[q*kvLen+k] != 0 {
						scores.Data[rowOff+k] = negInf
						continue
					}
					if keyPadMask != nil && keyPadMask.Data[b*kvLen+k] != 0 {
						scores.Data[rowOff+k] = negInf
					}
				}
			}
		}
	}
}
