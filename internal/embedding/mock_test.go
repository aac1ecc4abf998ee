package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProvider(64, "")
	ctx := context.Background()

	a, err := p.Embed(ctx, "Notes about uncertainty.")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "notes about UNCERTAINTY")
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector, "case and punctuation are ignored")
	assert.InDelta(t, 1.0, utils.L2Norm(a.Vector), 1e-5)
	assert.Equal(t, 64, p.Dimensions())
	assert.Equal(t, "mock", p.Model())
}

func TestMockProvider_SharedWordsScoreHigher(t *testing.T) {
	p := NewMockProvider(256, "mock")
	ctx := context.Background()

	q, _ := p.Embed(ctx, "uncertainty")
	related, _ := p.Embed(ctx, "Uncertainty is everywhere. Embracing uncertainty helps planning.")
	unrelated, _ := p.Embed(ctx, "Bread recipe with flour water salt")

	simRelated := vector.InnerProduct(q.Vector, related.Vector)
	simUnrelated := vector.InnerProduct(q.Vector, unrelated.Vector)
	assert.Greater(t, simRelated, 0.3)
	assert.Less(t, simUnrelated, simRelated)
}

func TestMockProvider_Errors(t *testing.T) {
	p := NewMockProvider(0, "")
	assert.Equal(t, 384, p.Dimensions())

	_, err := p.Embed(context.Background(), "!!! ---")
	assert.ErrorIs(t, err, ErrEmptyText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, "words")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockProvider_Tokens(t *testing.T) {
	p := NewMockProvider(16, "")
	emb, err := p.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, emb.Tokens, "short texts count at least one token")

	emb, _ = p.Embed(context.Background(), "abcdefghijklmnop")
	assert.Equal(t, 4, emb.Tokens)
	assert.False(t, math.IsNaN(float64(emb.Vector[0])))
}
