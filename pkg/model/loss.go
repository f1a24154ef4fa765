package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"evoformer/pkg/tensor"
)

// CrossEntropy computes the mean negative log-likelihood of the labels under
// softmax(logits), via the numerically stable log-sum-exp form. Positions
// whose label equals ignoreID (padding) contribute nothing to the loss or
// to the mean's denominator.
//
// Input shapes:
//   - logits: (batch, seq, vocab_size)
//   - labels: (batch, seq) token ids
//
// Returns a non-negative scalar; zero when every label is ignored.
func CrossEntropy(logits, labels *tensor.Tensor, ignoreID int) (float64, error) {
	if len(logits.Shape) != 3 {
		return 0, fmt.Errorf("expected 3D logits (batch, seq, vocab), got %dD with shape %v",
			len(logits.Shape), logits.Shape)
	}
	if len(labels.Shape) != 2 {
		return 0, fmt.Errorf("expected 2D labels (batch, seq), got %dD with shape %v",
			len(labels.Shape), labels.Shape)
	}

	batch, seqLen, vocabSize := logits.Shape[0], logits.Shape[1], logits.Shape[2]
	if labels.Shape[0] != batch || labels.Shape[1] != seqLen {
		return 0, fmt.Errorf("labels shape %v doesn't match logits shape %v", labels.Shape, logits.Shape)
	}

	total := 0.0
	count := 0

	for pos := 0; pos < batch*seqLen; pos++ {
		labelID := int(labels.Data[pos])
		if labelID == ignoreID {
			continue
		}
		if labelID < 0 || labelID >= vocabSize {
			return 0, fmt.Errorf("label id %d at flat position %d outside vocabulary [0, %d)",
				labelID, pos, vocabSize)
		}

		row := logits.Data[pos*vocabSize : (pos+1)*vocabSize]

		// log-sum-exp with the row maximum subtracted.
		maxVal := floats.Max(row)
		sumExp := 0.0
		for _, v := range row {
			sumExp += math.Exp(v - maxVal)
		}

		total += maxVal + math.Log(sumExp) - row[labelID]
		count++
	}

	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}
