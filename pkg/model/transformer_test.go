package model

import (
	"math"
	"testing"

	"evoformer/pkg/tensor"
)

func smallConfig() Config {
	config := DefaultConfig()
	config.VocabSize = 37
	config.EmbDim = 16
	config.HiddenDim = 16
	config.PffDim = 32
	config.NumHeads = 4
	config.NumLayers = 2
	config.Dropout = 0.1
	config.PadID = 0
	config.PadFill = 0
	config.MaxLen = 64
	return config
}

// TestShiftTarget checks the teacher-forcing split.
func TestShiftTarget(t *testing.T) {
	tgt, err := tensor.FromInts([][]int{{5, 6, 7, 8, 9}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}

	decoderInput, label, err := ShiftTarget(tgt)
	if err != nil {
		t.Fatalf("ShiftTarget failed: %v", err)
	}

	wantInput := []float64{5, 6, 7, 8}
	wantLabel := []float64{6, 7, 8, 9}
	for i := range wantInput {
		if decoderInput.Data[i] != wantInput[i] {
			t.Errorf("decoderInput[%d] = %v, expected %v", i, decoderInput.Data[i], wantInput[i])
		}
		if label.Data[i] != wantLabel[i] {
			t.Errorf("label[%d] = %v, expected %v", i, label.Data[i], wantLabel[i])
		}
	}
	if decoderInput.Shape[1] != 4 || label.Shape[1] != 4 {
		t.Errorf("Expected both outputs length 4, got %d and %d",
			decoderInput.Shape[1], label.Shape[1])
	}
}

// TestShiftTarget_Errors checks the length and rank requirements.
func TestShiftTarget_Errors(t *testing.T) {
	short, err := tensor.FromInts([][]int{{5}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}
	if _, _, err := ShiftTarget(short); err == nil {
		t.Error("Expected error for single-position target, got none")
	}

	if _, _, err := ShiftTarget(tensor.NewTensor([]int{2, 3, 4})); err == nil {
		t.Error("Expected error for 3D target, got none")
	}
}

// TestPadMask checks pad-position marking.
func TestPadMask(t *testing.T) {
	SetInitSeed(1)
	m, err := NewEvolvedTransformer(smallConfig())
	if err != nil {
		t.Fatalf("NewEvolvedTransformer failed: %v", err)
	}

	ids, err := tensor.FromInts([][]int{{3, 0, 5}, {0, 0, 7}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}

	mask := m.PadMask(ids)
	want := []float64{0, 1, 0, 1, 1, 0}
	for i, w := range want {
		if mask.Data[i] != w {
			t.Errorf("mask[%d] = %v, expected %v", i, mask.Data[i], w)
		}
	}
}

// TestCausalMask checks the strictly upper-triangular pattern.
func TestCausalMask(t *testing.T) {
	mask := CausalMask(4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if j > i {
				want = 1
			}
			if mask.Get([]int{i, j}) != want {
				t.Errorf("mask[%d,%d] = %v, expected %v", i, j, mask.Get([]int{i, j}), want)
			}
		}
	}
}

// TestNewEvolvedTransformer_RejectsInvalidConfig checks construction-time
// validation.
func TestNewEvolvedTransformer_RejectsInvalidConfig(t *testing.T) {
	config := smallConfig()
	config.NumLayers = 3
	if _, err := NewEvolvedTransformer(config); err == nil {
		t.Error("Expected error for odd layer count, got none")
	}

	config = smallConfig()
	config.HiddenDim = 18 // 18 % 4 != 0
	if _, err := NewEvolvedTransformer(config); err == nil {
		t.Error("Expected error for head count not dividing hidden width, got none")
	}
}

// TestForward_RoundTrip runs a full forward pass on a small model and checks
// every output contract.
func TestForward_RoundTrip(t *testing.T) {
	SetInitSeed(42)
	m, err := NewEvolvedTransformer(smallConfig())
	if err != nil {
		t.Fatalf("NewEvolvedTransformer failed: %v", err)
	}
	m.SetTraining(false)

	srcIDs, err := tensor.FromInts([][]int{
		{4, 8, 15, 16, 0, 0},
		{23, 42, 7, 9, 11, 0},
	})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}
	tgtIDs, err := tensor.FromInts([][]int{
		{2, 12, 13, 14, 3},
		{2, 20, 21, 3, 0},
	})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}

	out, err := m.Forward(srcIDs, tgtIDs)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	// Logits cover the shifted target: (batch, tgt_len-1, vocab).
	if out.Logits.Shape[0] != 2 || out.Logits.Shape[1] != 4 || out.Logits.Shape[2] != 37 {
		t.Fatalf("Expected logits shape [2 4 37], got %v", out.Logits.Shape)
	}
	for i, v := range out.Logits.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Non-finite logit at %d: %v", i, v)
		}
	}
	if out.Loss < 0 || math.IsNaN(out.Loss) {
		t.Fatalf("Loss = %v, expected a finite non-negative value", out.Loss)
	}

	// Softmax over each logit row must form a distribution.
	probs := tensor.Softmax(out.Logits)
	for b := 0; b < 2; b++ {
		for s := 0; s < 4; s++ {
			sum := 0.0
			for v := 0; v < 37; v++ {
				sum += probs.Get([]int{b, s, v})
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("Softmax row (%d,%d) sums to %v", b, s, sum)
			}
		}
	}
}

// TestForward_DeterministicInEval checks that two eval-mode passes agree
// exactly.
func TestForward_DeterministicInEval(t *testing.T) {
	SetInitSeed(42)
	m, err := NewEvolvedTransformer(smallConfig())
	if err != nil {
		t.Fatalf("NewEvolvedTransformer failed: %v", err)
	}
	m.SetTraining(false)

	srcIDs, err := tensor.FromInts([][]int{{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}
	tgtIDs, err := tensor.FromInts([][]int{{2, 5, 6, 3}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}

	out1, err := m.Forward(srcIDs, tgtIDs)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	out2, err := m.Forward(srcIDs, tgtIDs)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	if !out1.Logits.Equals(out2.Logits, 0) {
		t.Error("Eval-mode logits differ between identical passes")
	}
	if out1.Loss != out2.Loss {
		t.Errorf("Eval-mode loss differs: %v vs %v", out1.Loss, out2.Loss)
	}
}

// TestForward_InputErrors checks the batch and shape validation at the top
// level.
func TestForward_InputErrors(t *testing.T) {
	SetInitSeed(2)
	m, err := NewEvolvedTransformer(smallConfig())
	if err != nil {
		t.Fatalf("NewEvolvedTransformer failed: %v", err)
	}
	m.SetTraining(false)

	src, err := tensor.FromInts([][]int{{1, 2, 3}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}
	tgtShort, err := tensor.FromInts([][]int{{2}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}
	if _, err := m.Forward(src, tgtShort); err == nil {
		t.Error("Expected error for length-1 target, got none")
	}

	tgtBatch, err := tensor.FromInts([][]int{{2, 5, 3}, {2, 6, 3}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}
	if _, err := m.Forward(src, tgtBatch); err == nil {
		t.Error("Expected error for mismatched batch sizes, got none")
	}

	if _, err := m.Forward(tensor.NewTensor([]int{1, 2, 3}), tgtShort); err == nil {
		t.Error("Expected error for 3D source, got none")
	}
}

func BenchmarkForward(b *testing.B) {
	SetInitSeed(42)
	m, err := NewEvolvedTransformer(smallConfig())
	if err != nil {
		b.Fatalf("NewEvolvedTransformer failed: %v", err)
	}
	m.SetTraining(false)

	srcIDs, _ := tensor.FromInts([][]int{{4, 8, 15, 16, 23, 0}, {1, 2, 3, 4, 5, 6}})
	tgtIDs, _ := tensor.FromInts([][]int{{2, 12, 13, 14, 3}, {2, 20, 21, 3, 0}})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Forward(srcIDs, tgtIDs); err != nil {
			b.Fatal(err)
		}
	}
}
