// Package embedding turns text into vectors through a configurable provider and
// caches the results.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kioku/internal/config"
)

// Embedding is a single provider response.
type Embedding struct {
	Vector []float32
	Tokens int
}

// Provider produces vector embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) (*Embedding, error)
	Dimensions() int
	Model() string
	Close() error
}

// NewProvider builds the provider selected by cfg.Provider. A missing credential
// for a remote provider returns ErrNoCredential.
func NewProvider(cfg *config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		p, err := NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey(),
			APIKeyEnv:  cfg.APIKeyEnv,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderONNX:
		p, err := NewONNXProvider(cfg.ModelPath, cfg.Model, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderMock:
		return NewMockProvider(cfg.Dimensions, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
