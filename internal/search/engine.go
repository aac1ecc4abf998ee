// Package search answers similarity queries against the vector index.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine runs similarity search over an indexer.State.
type Engine struct {
	state     *indexer.State
	provider  embedding.Provider
	reason    string
	extractor *extract.Extractor
	maxTokens int
	threshold float64
	limit     int
	tracer    trace.Tracer
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithUnavailableReason sets the reason reported when no provider is configured.
func WithUnavailableReason(reason string) EngineOption {
	return func(e *Engine) {
		e.reason = reason
	}
}

// NewEngine creates an engine. A nil provider makes every search report
// StatusUnavailable. A non-nil provider is wrapped in an LRU query cache.
func NewEngine(state *indexer.State, provider embedding.Provider, extractor *extract.Extractor, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		state:     state,
		extractor: extractor,
		maxTokens: cfg.Embedding.MaxTokens,
		threshold: cfg.Query.Threshold(),
		limit:     cfg.Query.MaxResults,
		reason:    "no embedding provider configured",
		tracer:    otel.Tracer("kioku/search"),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if provider != nil {
		cached, err := embedding.NewCachedProvider(provider, cfg.Embedding.QueryCacheSize)
		if err != nil {
			return nil, err
		}
		e.provider = cached
	}
	return e, nil
}

// Available reports whether the engine can embed queries.
func (e *Engine) Available() bool {
	return e.provider != nil
}

// Search runs q by text or by file after validating it.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	if err := q.Validate(e.limit); err != nil {
		return nil, err
	}
	if q.File != "" {
		return e.SearchByFile(ctx, q.File, q.Limit)
	}
	return e.SearchByText(ctx, q.Text, q.Limit)
}

// SearchByText returns up to k documents similar to text, best first. Results
// below the similarity threshold are dropped.
func (e *Engine) SearchByText(ctx context.Context, text string, k int) (*models.SearchResponse, error) {
	start := time.Now()
	resp := &models.SearchResponse{Query: text, Status: models.StatusOK, Results: []*models.SearchResult{}}
	defer func() { resp.QueryTime = time.Since(start).Milliseconds() }()

	if e.provider == nil {
		resp.Status = models.StatusUnavailable
		resp.Reason = e.reason
		return resp, nil
	}
	if e.state.LiveCount() == 0 {
		resp.Status = models.StatusEmpty
		return resp, nil
	}
	if k <= 0 {
		k = e.limit
	}

	ctx, span := e.tracer.Start(ctx, "search.text", trace.WithAttributes(attribute.Int("k", k)))
	defer span.End()

	query, err := e.embedQuery(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return nil, err
	}
	matches, err := e.state.Search(ctx, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return nil, fmt.Errorf("vector search: %w", err)
	}

	for _, m := range matches {
		if m.Score < e.threshold {
			continue
		}
		resp.Results = append(resp.Results, &models.SearchResult{
			Path:       m.Path,
			Similarity: m.Score,
			Title:      Title(m.Path),
			Snippet:    e.snippet(m.Path),
		})
	}
	span.SetAttributes(attribute.Int("matches", len(matches)), attribute.Int("results", len(resp.Results)))
	e.logger.Debug("search complete",
		zap.Int("k", k),
		zap.Int("matches", len(matches)),
		zap.Int("results", len(resp.Results)),
		zap.Float64("threshold", e.threshold),
	)
	return resp, nil
}

// SearchByFile searches with the cleaned content of path as the query.
func (e *Engine) SearchByFile(ctx context.Context, path string, k int) (*models.SearchResponse, error) {
	content, err := e.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("query file: %w", err)
	}
	if content == "" {
		return &models.SearchResponse{Query: "file: " + path, Status: models.StatusEmpty, Results: []*models.SearchResult{}}, nil
	}
	resp, err := e.SearchByText(ctx, content, k)
	if err != nil {
		return nil, err
	}
	resp.Query = "file: " + path
	return resp, nil
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	text = embedding.TruncateToTokenLimit(text, e.maxTokens)
	emb, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(emb.Vector) != e.state.Dimensions() {
		return nil, fmt.Errorf("embed query: %w: got %d, expected %d", vector.ErrDimensionMismatch, len(emb.Vector), e.state.Dimensions())
	}
	if !utils.NormalizeL2(emb.Vector) {
		return nil, errors.New("embed query: zero or non-finite vector")
	}
	return emb.Vector, nil
}

func (e *Engine) snippet(path string) string {
	content, err := e.extractor.Extract(path)
	if err != nil {
		e.logger.Debug("snippet read failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return Snippet(content)
}
