package model

import (
	"fmt"

	"evoformer/pkg/tensor"
)

// Output bundles the result of one forward pass: per-position vocabulary
// logits and the scalar training loss.
type Output struct {
	Logits *tensor.Tensor // (batch, tgt_len-1, vocab_size)
	Loss   float64
}

// EvolvedTransformer is the top-level encoder-decoder model. It owns the
// masking and teacher-forcing logic: the source padding mask, the causal
// target mask, the shift-by-one split of the raw target into decoder input
// and label, and the cross-entropy loss over the generator's logits.
type EvolvedTransformer struct {
	Config    Config
	Encoder   *EvolvedEncoder
	Decoder   *EvolvedDecoder
	Generator *Linear // hidden_dim -> vocab_size
	Training  bool    // If false, dropout is disabled
}

// NewEvolvedTransformer creates a model from the configuration. Returns an
// error when the configuration is inconsistent (odd layer count, head count
// not dividing the hidden width, and so on).
func NewEvolvedTransformer(config Config) (*EvolvedTransformer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &EvolvedTransformer{
		Config:    config,
		Encoder:   NewEvolvedEncoder(config),
		Decoder:   NewEvolvedDecoder(config),
		Generator: NewLinear(config.HiddenDim, config.VocabSize),
		Training:  true,
	}, nil
}

// SetTraining sets the training mode for the model.
// When training=false, every dropout layer behaves as identity.
func (m *EvolvedTransformer) SetTraining(training bool) {
	m.Training = training
}

// PadMask builds the source padding mask: (batch, src_len) with 1 at every
// position holding the pad id.
func (m *EvolvedTransformer) PadMask(ids *tensor.Tensor) *tensor.Tensor {
	mask := tensor.NewTensor(ids.Shape)
	pad := float64(m.Config.PadID)
	for i, v := range ids.Data {
		if v == pad {
			mask.Data[i] = 1
		}
	}
	return mask
}

// CausalMask builds the (size, size) target mask with 1 at every strictly
// upper-triangular position (j > i), forbidding attention to the future.
func CausalMask(size int) *tensor.Tensor {
	mask := tensor.NewTensor([]int{size, size})
	for i := 0; i < size; i++ {
		for j := i + 1; j < size; j++ {
			mask.Data[i*size+j] = 1
		}
	}
	return mask
}

// ShiftTarget derives the teacher-forcing pair from a raw target batch:
// the decoder input drops the last position, the label drops the first.
//
// Input shape: (batch, tgt_len) with tgt_len >= 2
// Output shapes: both (batch, tgt_len-1)
func ShiftTarget(tgt *tensor.Tensor) (decoderInput, label *tensor.Tensor, err error) {
	if len(tgt.Shape) != 2 {
		return nil, nil, fmt.Errorf("expected 2D target (batch, tgt_len), got %dD with shape %v",
			len(tgt.Shape), tgt.Shape)
	}

	batch, tgtLen := tgt.Shape[0], tgt.Shape[1]
	if tgtLen < 2 {
		return nil, nil, fmt.Errorf("target length %d too short to shift (need at least 2 positions)", tgtLen)
	}

	decoderInput, err = tgt.SliceN([]int{0, 0}, []int{batch, tgtLen - 1})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to slice decoder input: %w", err)
	}
	label, err = tgt.SliceN([]int{0, 1}, []int{batch, tgtLen})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to slice label: %w", err)
	}
	return decoderInput, label, nil
}

// Forward runs the full training pass.
//
// Input shapes:
//   - srcIDs: (batch, src_len) source token ids
//   - tgtIDs: (batch, tgt_len) raw target token ids, tgt_len >= 2
//
// The target is shifted for teacher forcing; the loss is cross-entropy over
// the flattened logits, ignoring positions whose label is the pad id.
func (m *EvolvedTransformer) Forward(srcIDs, tgtIDs *tensor.Tensor) (*Output, error) {
	if len(srcIDs.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D source (batch, src_len), got %dD with shape %v",
			len(srcIDs.Shape), srcIDs.Shape)
	}
	if srcIDs.Shape[0] != tgtIDs.Shape[0] {
		return nil, fmt.Errorf("source batch %d doesn't match target batch %d",
			srcIDs.Shape[0], tgtIDs.Shape[0])
	}

	decoderInput, label, err := ShiftTarget(tgtIDs)
	if err != nil {
		return nil, err
	}

	srcMask := m.PadMask(srcIDs)
	tgtMask := CausalMask(decoderInput.Shape[1])

	memory, err := m.Encoder.Forward(srcIDs, srcMask, m.Training)
	if err != nil {
		return nil, fmt.Errorf("encoder failed: %w", err)
	}

	decOut, err := m.Decoder.Forward(decoderInput, memory, srcMask, tgtMask, m.Training)
	if err != nil {
		return nil, fmt.Errorf("decoder failed: %w", err)
	}

	logits, err := m.Generator.Forward(decOut)
	if err != nil {
		return nil, fmt.Errorf("generator projection failed: %w", err)
	}

	loss, err := CrossEntropy(logits, label, m.Config.PadID)
	if err != nil {
		return nil, fmt.Errorf("loss computation failed: %w", err)
	}

	return &Output{Logits: logits, Loss: loss}, nil
}
