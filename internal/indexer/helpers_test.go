package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/models"
)

const testDims = 64

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	vaultDir := filepath.Join(dir, "vault")
	if err := os.MkdirAll(vaultDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Vault: config.VaultConfig{Path: vaultDir},
		Storage: config.StorageConfig{
			IndexPath:    filepath.Join(dir, "data", "index.bin"),
			MetadataPath: filepath.Join(dir, "data", "metadata.json"),
			LockPath:     filepath.Join(dir, "data", "kioku.lock"),
		},
		Embedding: config.EmbeddingConfig{Provider: config.ProviderMock, Model: "mock", Dimensions: testDims},
		Indexing:  config.IndexingConfig{MinContentLength: 10},
	}
	config.ApplyDefaults(cfg)
	cfg.Embedding.RateLimitDelay = 0
	cfg.Embedding.BatchSize = 2
	return cfg
}

func newTestIndexer(t *testing.T, cfg *config.Config, provider embedding.Provider, opts ...IndexerOption) *Indexer {
	t.Helper()
	state, err := NewState(cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	pipe := NewPipeline(provider, extract.NewExtractor(true), &cfg.Embedding, &cfg.Indexing)
	return NewIndexer(cfg, state, pipe, opts...)
}

func writeNote(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	path := filepath.Join(cfg.Vault.Path, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// countingProvider counts requests and fails for any text containing "FAIL".
type countingProvider struct {
	*embedding.MockProvider
	mu    sync.Mutex
	calls int
	texts []string
}

func newCountingProvider() *countingProvider {
	return &countingProvider{MockProvider: embedding.NewMockProvider(testDims, "mock")}
}

func (c *countingProvider) Embed(ctx context.Context, text string) (*embedding.Embedding, error) {
	c.mu.Lock()
	c.calls++
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("simulated provider outage")
	}
	return c.MockProvider.Embed(ctx, text)
}

func (c *countingProvider) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fixedProvider returns the same vector for every text.
type fixedProvider struct {
	vec    []float32
	tokens int
}

func (f *fixedProvider) Embed(context.Context, string) (*embedding.Embedding, error) {
	return &embedding.Embedding{Vector: append([]float32(nil), f.vec...), Tokens: f.tokens}, nil
}
func (f *fixedProvider) Dimensions() int { return testDims }
func (f *fixedProvider) Model() string   { return "fixed" }
func (f *fixedProvider) Close() error    { return nil }

type fakeLedger struct {
	mu   sync.Mutex
	runs []*models.RunRecord
}

func (f *fakeLedger) RecordRun(_ context.Context, stats *models.IndexStats, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := &models.RunRecord{IndexStats: *stats}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	f.runs = append(f.runs, rec)
	return nil
}

func (f *fakeLedger) ListRuns(context.Context, int) ([]*models.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs, nil
}

func (f *fakeLedger) Close() error { return nil }

type fakePublisher struct {
	mu   sync.Mutex
	runs []*models.RunRecord
}

func (f *fakePublisher) PublishRun(_ context.Context, run *models.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func unitVector(i int) []float32 {
	v := make([]float32, testDims)
	v[i%testDims] = 1
	return v
}
