//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// maxSequenceLength caps the model input; BERT-style encoders accept at most 512.
const maxSequenceLength = 512

// ONNXProvider runs a local sentence encoder through ONNX Runtime. It requires CGO
// and the onnxruntime shared library. Token counts are estimated.
type ONNXProvider struct {
	session    *ort.AdvancedSession
	model      string
	dimensions int
	seqLen     int
	tokenizer  Tokenizer

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXProvider loads the model at modelPath.
func NewONNXProvider(modelPath, model string, dimensions, maxTokens int) (*ONNXProvider, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("onnx provider requires embedding.model_path")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	seqLen := maxTokens
	if seqLen <= 0 || seqLen > maxSequenceLength {
		seqLen = maxSequenceLength
	}

	p := &ONNXProvider{
		model:      model,
		dimensions: dimensions,
		seqLen:     seqLen,
		tokenizer:  &HashTokenizer{},
	}
	if err := p.allocate(); err != nil {
		p.Close()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{p.inputIDs, p.attentionMask, p.tokenTypeIDs},
		[]ort.ArbitraryTensor{p.output},
		nil,
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	p.session = session
	return p, nil
}

func (p *ONNXProvider) allocate() error {
	shape := ort.NewShape(1, int64(p.seqLen))
	var err error
	if p.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("create input_ids tensor: %w", err)
	}
	if p.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("create attention_mask tensor: %w", err)
	}
	if p.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	if p.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.dimensions))); err != nil {
		return fmt.Errorf("create output tensor: %w", err)
	}
	return nil
}

// Embed runs one inference. Calls are serialized because the tensors are shared.
func (p *ONNXProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(Words(text)) == 0 {
		return nil, ErrEmptyText
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ids, mask, types := p.tokenizer.Tokenize(text, p.seqLen)
	copy(p.inputIDs.GetData(), ids)
	copy(p.attentionMask.GetData(), mask)
	copy(p.tokenTypeIDs.GetData(), types)

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference: %v", ErrProviderFailed, err)
	}
	vec := make([]float32, p.dimensions)
	copy(vec, p.output.GetData())
	return &Embedding{Vector: vec, Tokens: EstimateTokens(text)}, nil
}

// Dimensions returns the embedding dimension.
func (p *ONNXProvider) Dimensions() int {
	return p.dimensions
}

// Model returns the configured model name.
func (p *ONNXProvider) Model() string {
	return p.model
}

// Close destroys the session and tensors.
func (p *ONNXProvider) Close() error {
	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{p.inputIDs, p.attentionMask, p.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if p.output != nil {
		_ = p.output.Destroy()
	}
	p.inputIDs, p.attentionMask, p.tokenTypeIDs, p.output = nil, nil, nil, nil
	return err
}
