package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider wraps a Provider with an in-memory LRU keyed by model and text.
// It is used for queries; indexing relies on content hashes instead.
type CachedProvider struct {
	Provider
	cache *lru.Cache[string, *Embedding]
}

// NewCachedProvider wraps p with an LRU of the given size.
func NewCachedProvider(p Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = 1000
	}
	c, err := lru.New[string, *Embedding](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &CachedProvider{Provider: p, cache: c}, nil
}

// Embed returns a copy of the cached embedding when present.
func (c *CachedProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	key := CacheKey(c.Model(), text)
	if emb, ok := c.cache.Get(key); ok {
		return cloneEmbedding(emb), nil
	}
	emb, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneEmbedding(emb))
	return emb, nil
}

// Len returns the number of cached entries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

// CacheKey returns the hex SHA-256 of model and text.
func CacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func cloneEmbedding(e *Embedding) *Embedding {
	return &Embedding{Vector: append([]float32(nil), e.Vector...), Tokens: e.Tokens}
}
