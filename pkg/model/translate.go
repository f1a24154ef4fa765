package model

import (
	"fmt"

	"evoformer/pkg/tensor"
)

// Translate decodes target sequences for a batch of sources using greedy
// (argmax) search. The source is encoded once; the target grows one token
// per step, starting from bosID, until every sequence has emitted eosID or
// maxNewTokens is reached.
//
// Input shape: srcIDs (batch, src_len)
// Output shape: (batch, t) decoded ids including the leading bos, t <= maxNewTokens+1
func Translate(m *EvolvedTransformer, srcIDs *tensor.Tensor, bosID, eosID, maxNewTokens int) (*tensor.Tensor, error) {
	if len(srcIDs.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D source (batch, src_len), got %dD with shape %v",
			len(srcIDs.Shape), srcIDs.Shape)
	}
	if maxNewTokens < 1 {
		return nil, fmt.Errorf("max new tokens must be positive, got %d", maxNewTokens)
	}

	batchSize := srcIDs.Shape[0]

	// Decoding always runs with dropout disabled.
	wasTraining := m.Training
	m.SetTraining(false)
	defer m.SetTraining(wasTraining)

	srcMask := m.PadMask(srcIDs)
	memory, err := m.Encoder.Forward(srcIDs, srcMask, false)
	if err != nil {
		return nil, fmt.Errorf("encoder failed: %w", err)
	}

	// Start every sequence from bos.
	out := make([][]int, batchSize)
	for b := range out {
		out[b] = []int{bosID}
	}
	finished := make([]bool, batchSize)

	for step := 0; step < maxNewTokens; step++ {
		tgt, err := tensor.FromInts(out)
		if err != nil {
			return nil, fmt.Errorf("failed to build target tensor at step %d: %w", step, err)
		}
		tgtMask := CausalMask(tgt.Shape[1])

		decOut, err := m.Decoder.Forward(tgt, memory, srcMask, tgtMask, false)
		if err != nil {
			return nil, fmt.Errorf("decoder failed at step %d: %w", step, err)
		}

		logits, err := m.Generator.Forward(decOut)
		if err != nil {
			return nil, fmt.Errorf("generator failed at step %d: %w", step, err)
		}

		// Greedy pick from the last position of each sequence.
		seqLen, vocabSize := logits.Shape[1], logits.Shape[2]
		allDone := true
		for b := 0; b < batchSize; b++ {
			if finished[b] {
				out[b] = append(out[b], m.Config.PadID)
				continue
			}
			rowOff := ((b*seqLen)+seqLen-1)*vocabSize
			best, bestVal := 0, logits.Data[rowOff]
			for v := 1; v < vocabSize; v++ {
				if logits.Data[rowOff+v] > bestVal {
					best, bestVal = v, logits.Data[rowOff+v]
				}
			}
			out[b] = append(out[b], best)
			if best == eosID {
				finished[b] = true
			} else {
				allDone = false
			}
		}
		if allDone {
			break
		}
	}

	return tensor.FromInts(out)
}
