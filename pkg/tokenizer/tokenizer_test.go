package tokenizer

import "testing"

// TestPadBatch_RaggedRows checks rectangularization with pad filling.
func TestPadBatch_RaggedRows(t *testing.T) {
	batch, err := PadBatch([][]int{
		{5, 6, 7},
		{8},
		{9, 10, 11, 12, 13},
	}, 0)
	if err != nil {
		t.Fatalf("PadBatch failed: %v", err)
	}

	if batch.Shape[0] != 3 || batch.Shape[1] != 5 {
		t.Fatalf("Expected shape [3 5], got %v", batch.Shape)
	}

	want := []float64{
		5, 6, 7, 0, 0,
		8, 0, 0, 0, 0,
		9, 10, 11, 12, 13,
	}
	for i, w := range want {
		if batch.Data[i] != w {
			t.Errorf("batch[%d] = %v, expected %v", i, batch.Data[i], w)
		}
	}
}

// TestPadBatch_NonZeroPad checks the pad id is honored.
func TestPadBatch_NonZeroPad(t *testing.T) {
	batch, err := PadBatch([][]int{{1, 2}, {3}}, 7)
	if err != nil {
		t.Fatalf("PadBatch failed: %v", err)
	}
	if batch.Get([]int{1, 1}) != 7 {
		t.Errorf("Expected pad id 7 at (1,1), got %v", batch.Get([]int{1, 1}))
	}
}

// TestPadBatch_AlreadyRectangular checks the no-op case.
func TestPadBatch_AlreadyRectangular(t *testing.T) {
	batch, err := PadBatch([][]int{{1, 2}, {3, 4}}, 0)
	if err != nil {
		t.Fatalf("PadBatch failed: %v", err)
	}
	want := []float64{1, 2, 3, 4}
	for i, w := range want {
		if batch.Data[i] != w {
			t.Errorf("batch[%d] = %v, expected %v", i, batch.Data[i], w)
		}
	}
}

// TestPadBatch_Errors checks the degenerate inputs.
func TestPadBatch_Errors(t *testing.T) {
	if _, err := PadBatch(nil, 0); err == nil {
		t.Error("Expected error for nil batch, got none")
	}
	if _, err := PadBatch([][]int{}, 0); err == nil {
		t.Error("Expected error for empty batch, got none")
	}
	if _, err := PadBatch([][]int{{}, {}}, 0); err == nil {
		t.Error("Expected error for batch of empty sequences, got none")
	}
}

// TestLoad_MissingFile checks the load error path.
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.json"); err == nil {
		t.Error("Expected error for a missing tokenizer file, got none")
	}
}
