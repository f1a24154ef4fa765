package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"evoformer/pkg/model"
	"evoformer/pkg/tensor"
	"evoformer/pkg/tokenizer"
)

func main() {
	// Define command line flags
	text := flag.String("text", "hello world", "Source text to translate")
	tokPath := flag.String("tokenizer", "", "Path to a pretrained tokenizer.json (optional; sample ids are used when absent)")
	hiddenDim := flag.Int("hidden-dim", 128, "Hidden state width")
	pffDim := flag.Int("pff-dim", 256, "Feed-forward inner width")
	numHeads := flag.Int("heads", 4, "Base attention head count")
	numLayers := flag.Int("layers", 2, "Total layer count (split between encoder and decoder)")
	maxTokens := flag.Int("max-tokens", 10, "Maximum number of tokens to decode")
	seed := flag.Int64("seed", 42, "Weight initialization seed")

	flag.Parse()

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("        Evolved Transformer Translation")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	config := model.DefaultConfig()
	config.EmbDim = *hiddenDim
	config.HiddenDim = *hiddenDim
	config.PffDim = *pffDim
	config.NumHeads = *numHeads
	config.NumLayers = *numLayers

	// Encode the source, either through a pretrained tokenizer or as a
	// fixed sample batch when none is supplied.
	var (
		srcIDs     *tensor.Tensor
		tgtIDs     *tensor.Tensor
		tok        *tokenizer.Tokenizer
		bosID      = 2
		eosID      = 3
		encodedLen int
	)

	if *tokPath != "" {
		var err error
		tok, err = tokenizer.Load(*tokPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading tokenizer: %v\n", err)
			os.Exit(1)
		}
		config.VocabSize = tok.VocabSize()
		config.PadID = tok.PadID()
		config.PadFill = float64(tok.PadID())
		bosID, eosID = tok.BosID(), tok.EosID()

		encoded, err := tok.Encode(*text, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding text: %v\n", err)
			os.Exit(1)
		}
		encodedLen = len(encoded)
		srcIDs, err = tokenizer.PadBatch([][]int{encoded}, tok.PadID())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building source batch: %v\n", err)
			os.Exit(1)
		}
		tgtIDs = srcIDs.Clone()
	} else {
		config.VocabSize = 1000
		sample := [][]int{{2, 11, 47, 256, 3, 0}}
		encodedLen = 5
		var err error
		srcIDs, err = tensor.FromInts(sample)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building sample batch: %v\n", err)
			os.Exit(1)
		}
		tgtIDs, _ = tensor.FromInts([][]int{{2, 31, 17, 95, 3}})
	}

	fmt.Printf("Model Configuration:\n")
	fmt.Printf("  Vocab Size: %d\n", config.VocabSize)
	fmt.Printf("  Hidden Dim: %d\n", config.HiddenDim)
	fmt.Printf("  PFF Dim: %d\n", config.PffDim)
	fmt.Printf("  Num Heads: %d\n", config.NumHeads)
	fmt.Printf("  Num Layers: %d\n", config.NumLayers)
	fmt.Printf("  Dropout: %.1f\n", config.Dropout)
	fmt.Printf("  Pad ID: %d\n", config.PadID)
	fmt.Println()

	fmt.Println("Initializing Evolved Transformer...")
	model.SetInitSeed(*seed)
	m, err := model.NewEvolvedTransformer(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating model: %v\n", err)
		os.Exit(1)
	}

	// Evaluation mode: dropout disabled.
	m.SetTraining(false)

	fmt.Println("Model initialized successfully!")
	fmt.Println("Note: weights are untrained; the output demonstrates the forward pass, not a real translation")
	fmt.Println()

	fmt.Printf("Source ids: %v\n", srcIDs)
	fmt.Printf("Number of source tokens: %d\n", encodedLen)
	fmt.Println()

	// One teacher-forced forward pass for the logits/loss contract.
	out, err := m.Forward(srcIDs, tgtIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in forward pass: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Logits shape: %v\n", out.Logits.Shape)
	fmt.Printf("Cross-entropy loss: %.4f\n", out.Loss)
	fmt.Println()

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("            Greedy Decoding...")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	decoded, err := model.Translate(m, srcIDs, bosID, eosID, *maxTokens)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding: %v\n", err)
		os.Exit(1)
	}

	outputTokens := make([]int, decoded.Shape[1])
	for i := 0; i < decoded.Shape[1]; i++ {
		outputTokens[i] = int(decoded.Get([]int{0, i}))
	}

	fmt.Printf("Decoded tokens: %v\n", outputTokens)
	if tok != nil {
		fmt.Printf("Decoded text: %s\n", tok.Decode(outputTokens))
	}
}
