package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Document is a cleaned note ready to embed.
type Document struct {
	Path    string
	Info    os.FileInfo
	Content string
	Hash    string
}

// Result is a successful embedding together with the record that describes it.
type Result struct {
	Record *models.DocumentRecord
	Vector []float32
	Cached bool
}

// Pipeline turns one file into a normalized embedding. It is safe for concurrent use.
type Pipeline struct {
	provider  embedding.Provider
	extractor *extract.Extractor
	limiter   *rate.Limiter
	cache     *embedding.BoltCache
	tracer    trace.Tracer
	logger    *zap.Logger

	minLength  int
	maxLength  int
	maxTokens  int
	pricePer1K float64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCache enables the persistent embedding cache.
func WithCache(c *embedding.BoltCache) PipelineOption {
	return func(p *Pipeline) { p.cache = c }
}

// WithLimiter replaces the limiter built from embedding.rate_limit_delay.
func WithLimiter(l *rate.Limiter) PipelineOption {
	return func(p *Pipeline) { p.limiter = l }
}

// WithPipelineLogger sets the logger for per-document diagnostics.
func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline builds a pipeline from the embedding and indexing sections.
func NewPipeline(provider embedding.Provider, extractor *extract.Extractor, emb *config.EmbeddingConfig, idx *config.IndexingConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		provider:   provider,
		extractor:  extractor,
		limiter:    NewLimiter(emb.RateLimitDelay),
		tracer:     otel.Tracer("kioku/indexer"),
		logger:     zap.NewNop(),
		minLength:  idx.MinContentLength,
		maxLength:  idx.MaxContentLength,
		maxTokens:  emb.MaxTokens,
		pricePer1K: emb.PricePer1KTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewLimiter returns a limiter allowing one request per delay. A non-positive
// delay disables limiting.
func NewLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Prepare reads and cleans path, applies the length gate and hashes the result.
// It returns an *IOError for unreadable files and ErrTooShort for short content.
func (p *Pipeline) Prepare(path string, info os.FileInfo) (*Document, error) {
	content, err := p.extractor.Extract(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	n := utf8.RuneCountInString(content)
	if n < p.minLength {
		return nil, fmt.Errorf("%w: %d characters", ErrTooShort, n)
	}
	if p.maxLength > 0 && n > p.maxLength {
		content = string([]rune(content)[:p.maxLength])
	}
	return &Document{Path: path, Info: info, Content: content, Hash: ContentHash(content)}, nil
}

// Embed produces the normalized vector for doc. Each provider request, successful
// or not, takes a token from the shared limiter, so requests across all workers
// start at least rate_limit_delay apart. After an idle period the first request
// waits for nothing. Cache hits make no request.
func (p *Pipeline) Embed(ctx context.Context, doc *Document) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.embed", trace.WithAttributes(attribute.String("path", doc.Path)))
	defer span.End()

	model := p.provider.Model()
	if p.cache != nil {
		if emb, ok := p.cache.Get(model, doc.Hash); ok && len(emb.Vector) == p.provider.Dimensions() {
			if utils.NormalizeL2(emb.Vector) {
				span.SetAttributes(attribute.Bool("cached", true), attribute.Int("tokens", emb.Tokens))
				return &Result{Record: p.record(doc, emb.Tokens, 0), Vector: emb.Vector, Cached: true}, nil
			}
		}
	}

	text := embedding.TruncateToTokenLimit(doc.Content, p.maxTokens)
	emb, err := p.provider.Embed(ctx, text)
	// The indexer embeds on context.WithoutCancel and the limiter has burst 1,
	// so Wait cannot fail here.
	_ = p.limiter.Wait(ctx)
	var vec []float32
	if err == nil {
		vec, err = p.normalize(emb)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, &ProviderError{Path: doc.Path, Err: err}
	}

	cost := float64(emb.Tokens) * p.pricePer1K / 1000
	span.SetAttributes(attribute.Int("tokens", emb.Tokens), attribute.Float64("cost", cost))

	if p.cache != nil {
		if err := p.cache.Put(model, doc.Hash, &embedding.Embedding{Vector: vec, Tokens: emb.Tokens}); err != nil {
			p.logger.Warn("embedding cache write failed", zap.String("path", doc.Path), zap.Error(err))
		}
	}
	return &Result{Record: p.record(doc, emb.Tokens, cost), Vector: vec}, nil
}

// normalize checks the provider output and returns a unit-length copy.
func (p *Pipeline) normalize(emb *embedding.Embedding) ([]float32, error) {
	if emb == nil || len(emb.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", embedding.ErrProviderFailed)
	}
	if want := p.provider.Dimensions(); len(emb.Vector) != want {
		return nil, fmt.Errorf("%w: got %d, expected %d", vector.ErrDimensionMismatch, len(emb.Vector), want)
	}
	vec := append([]float32(nil), emb.Vector...)
	if !utils.NormalizeL2(vec) {
		return nil, errors.New("zero or non-finite embedding vector")
	}
	return vec, nil
}

func (p *Pipeline) record(doc *Document, tokens int, cost float64) *models.DocumentRecord {
	return &models.DocumentRecord{
		Path:        doc.Path,
		Size:        doc.Info.Size(),
		ModTime:     doc.Info.ModTime(),
		ContentHash: doc.Hash,
		EmbeddedAt:  time.Now(),
		TokenCount:  tokens,
		Cost:        cost,
	}
}
