package model

import (
	"math"
	"testing"

	"evoformer/pkg/tensor"
)

func embeddingTestConfig() Config {
	config := DefaultConfig()
	config.VocabSize = 10
	config.EmbDim = 4
	config.HiddenDim = 4
	config.MaxLen = 8
	config.Dropout = 0
	return config
}

// TestEmbeddings_ScaleAndPosition verifies lookup * sqrt(emb_dim) + table row.
func TestEmbeddings_ScaleAndPosition(t *testing.T) {
	emb := NewEmbeddings(embeddingTestConfig())

	// Overwrite the table with known values so the output is predictable.
	for i := range emb.Table.Data {
		emb.Table.Data[i] = float64(i)
	}

	ids, err := tensor.FromInts([][]int{{3, 0}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}

	out, err := emb.Forward(ids, false)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.Shape[0] != 1 || out.Shape[1] != 2 || out.Shape[2] != 4 {
		t.Fatalf("Expected shape [1 2 4], got %v", out.Shape)
	}

	scale := math.Sqrt(4)
	for d := 0; d < 4; d++ {
		// Token 3 sits at position 0.
		expected := float64(3*4+d)*scale + emb.PosEnc.Table.Get([]int{0, d})
		if math.Abs(out.Get([]int{0, 0, d})-expected) > 1e-9 {
			t.Errorf("out[0,0,%d] = %v, expected %v", d, out.Get([]int{0, 0, d}), expected)
		}
		// Token 0 sits at position 1.
		expected = float64(d)*scale + emb.PosEnc.Table.Get([]int{1, d})
		if math.Abs(out.Get([]int{0, 1, d})-expected) > 1e-9 {
			t.Errorf("out[0,1,%d] = %v, expected %v", d, out.Get([]int{0, 1, d}), expected)
		}
	}
}

// TestEmbeddings_Projection verifies the emb_dim -> hidden_dim projection path.
func TestEmbeddings_Projection(t *testing.T) {
	config := embeddingTestConfig()
	config.EmbDim = 4
	config.HiddenDim = 6

	SetInitSeed(11)
	emb := NewEmbeddings(config)
	if emb.Proj == nil {
		t.Fatal("Expected a projection layer when emb_dim != hidden_dim")
	}

	ids, err := tensor.FromInts([][]int{{1, 2, 3}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}

	out, err := emb.Forward(ids, false)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.Shape[0] != 1 || out.Shape[1] != 3 || out.Shape[2] != 6 {
		t.Fatalf("Expected shape [1 3 6], got %v", out.Shape)
	}
}

// TestEmbeddings_NoProjectionWhenEqual verifies equal dims skip projection.
func TestEmbeddings_NoProjectionWhenEqual(t *testing.T) {
	emb := NewEmbeddings(embeddingTestConfig())
	if emb.Proj != nil {
		t.Error("Expected no projection layer when emb_dim == hidden_dim")
	}
}

// TestEmbeddings_InvalidToken verifies out-of-vocabulary id rejection.
func TestEmbeddings_InvalidToken(t *testing.T) {
	emb := NewEmbeddings(embeddingTestConfig())

	ids, err := tensor.FromInts([][]int{{0, 10}})
	if err != nil {
		t.Fatalf("FromInts failed: %v", err)
	}
	if _, err := emb.Forward(ids, false); err == nil {
		t.Error("Expected error for token id outside the vocabulary, got none")
	}

	ids3d := tensor.NewTensor([]int{1, 2, 3})
	if _, err := emb.Forward(ids3d, false); err == nil {
		t.Error("Expected error for non-2D input, got none")
	}
}
