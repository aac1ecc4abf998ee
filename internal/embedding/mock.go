package embedding

import (
	"context"

	"github.com/hyperjump/kioku/pkg/utils"
)

// MockProvider is a deterministic, offline provider. Each word is feature-hashed
// into a bucket and the counts are L2-normalized, so texts sharing words score
// higher than texts that do not.
type MockProvider struct {
	dimensions int
	model      string
}

// NewMockProvider returns a mock provider. Non-positive dimensions default to 384.
func NewMockProvider(dimensions int, model string) *MockProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	if model == "" {
		model = "mock"
	}
	return &MockProvider{dimensions: dimensions, model: model}
}

// Embed returns the hashed bag-of-words vector for text.
func (m *MockProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := Words(text)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}
	vec := make([]float32, m.dimensions)
	for _, w := range words {
		vec[HashWord(w)%uint32(m.dimensions)]++
	}
	utils.NormalizeL2(vec)

	tokens := EstimateTokens(text)
	if tokens == 0 {
		tokens = 1
	}
	return &Embedding{Vector: vec, Tokens: tokens}, nil
}

// Dimensions returns the vector dimension.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// Model returns the model name.
func (m *MockProvider) Model() string {
	return m.model
}

// Close is a no-op.
func (m *MockProvider) Close() error {
	return nil
}
