// Package tokenizer adapts a pretrained BPE tokenizer file to the model's
// input contract: integer token-id sequences, a vocabulary size, and the
// special-token ids (<pad>, <bos>, <eos>, <unk>). Tokenizer training and
// vocabulary persistence happen upstream; this package only loads and
// applies an existing tokenizer.json.
package tokenizer

import (
	"fmt"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"evoformer/pkg/tensor"
)

// Special token literals expected in the pretrained vocabulary.
const (
	PadToken = "<pad>"
	UnkToken = "<unk>"
	BosToken = "<bos>"
	EosToken = "<eos>"
)

// Tokenizer wraps a pretrained subword tokenizer and its special-token ids.
type Tokenizer struct {
	inner *tk.Tokenizer
	vocab map[string]int

	padID int
	unkID int
	bosID int
	eosID int
}

// Load reads a pretrained tokenizer.json and resolves the special-token ids
// from its vocabulary.
func Load(path string) (*Tokenizer, error) {
	inner, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer from %s: %w", path, err)
	}

	vocab := inner.GetVocab(true)
	t := &Tokenizer{inner: inner, vocab: vocab}

	for _, s := range []struct {
		token string
		id    *int
	}{
		{PadToken, &t.padID},
		{UnkToken, &t.unkID},
		{BosToken, &t.bosID},
		{EosToken, &t.eosID},
	} {
		id, ok := vocab[s.token]
		if !ok {
			return nil, fmt.Errorf("vocabulary in %s is missing special token %s", path, s.token)
		}
		*s.id = id
	}

	return t, nil
}

// VocabSize returns the vocabulary size including special tokens.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// PadID returns the id of the padding token.
func (t *Tokenizer) PadID() int { return t.padID }

// BosID returns the id of the beginning-of-sequence token.
func (t *Tokenizer) BosID() int { return t.bosID }

// EosID returns the id of the end-of-sequence token.
func (t *Tokenizer) EosID() int { return t.eosID }

// Encode converts raw text into token ids. When wrap is true the sequence is
// framed with bos/eos, the form the decoder target expects.
func (t *Tokenizer) Encode(text string, wrap bool) ([]int, error) {
	enc, err := t.inner.EncodeSingle(text)
	if err != nil {
		return nil, fmt.Errorf("failed to encode text: %w", err)
	}

	ids := make([]int, 0, len(enc.Ids)+2)
	if wrap {
		ids = append(ids, t.bosID)
	}
	ids = append(ids, enc.Ids...)
	if wrap {
		ids = append(ids, t.eosID)
	}
	return ids, nil
}

// Decode converts token ids back to text, skipping special tokens.
func (t *Tokenizer) Decode(ids []int) string {
	return t.inner.Decode(ids, true)
}

// PadBatch packs ragged id sequences into a rectangular (batch, max_len)
// tensor, filling short rows with padID. This is the producer side of the
// model's token-sequence contract.
func PadBatch(seqs [][]int, padID int) (*tensor.Tensor, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("cannot pad an empty batch")
	}

	maxLen := 0
	for _, seq := range seqs {
		if len(seq) > maxLen {
			maxLen = len(seq)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("cannot pad a batch of empty sequences")
	}

	padded := make([][]int, len(seqs))
	for i, seq := range seqs {
		row := make([]int, maxLen)
		copy(row, seq)
		for j := len(seq); j < maxLen; j++ {
			row[j] = padID
		}
		padded[i] = row
	}

	return tensor.FromInts(padded)
}
