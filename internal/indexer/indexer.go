// Package indexer keeps the vector index synchronized with the vault: change
// detection, the embedding pipeline, the persisted index state and the writer lock.
package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/events"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vault"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Indexer runs rebuilds and incremental updates against a State. Runs are
// serialized; at most one writer touches the persisted files at a time.
type Indexer struct {
	state     *State
	pipeline  *Pipeline
	rules     vault.Rules
	storage   config.StorageConfig
	batchSize int
	workers   int
	lock      *writerLock
	ledger    storage.RunLedger
	publisher events.Publisher
	logger    *zap.Logger

	// persisted is the version of the files this indexer last loaded or wrote.
	persisted diskStamp

	retryMin time.Duration
	retryMax time.Duration
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger for run and per-document events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithLedger records every finished run in ledger.
func WithLedger(ledger storage.RunLedger) IndexerOption {
	return func(idx *Indexer) { idx.ledger = ledger }
}

// WithPublisher announces every finished run on p.
func WithPublisher(p events.Publisher) IndexerOption {
	return func(idx *Indexer) {
		if p != nil {
			idx.publisher = p
		}
	}
}

// WithLockTimeout bounds how long a run waits for the file lock.
func WithLockTimeout(d time.Duration) IndexerOption {
	return func(idx *Indexer) {
		if d > 0 {
			idx.lock.timeout = d
		}
	}
}

// WithRetryBackoff bounds the delay before Watch retries a failed run.
func WithRetryBackoff(first, limit time.Duration) IndexerOption {
	return func(idx *Indexer) {
		if first > 0 {
			idx.retryMin = first
		}
		if limit >= idx.retryMin {
			idx.retryMax = limit
		}
	}
}

// NewIndexer creates an indexer over state using the vault, storage and
// embedding sections of cfg. state is expected to hold what is currently
// persisted; a later commit by another process is reloaded before the next run.
func NewIndexer(cfg *config.Config, state *State, pipeline *Pipeline, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		state:     state,
		pipeline:  pipeline,
		rules:     vault.RulesFromConfig(&cfg.Vault),
		storage:   cfg.Storage,
		batchSize: cfg.Embedding.BatchSize,
		workers:   cfg.Embedding.Workers,
		lock:      &writerLock{path: cfg.Storage.LockPath, timeout: defaultLockTimeout},
		publisher: events.NopPublisher{},
		logger:    zap.NewNop(),
		persisted: statPersisted(cfg.Storage.IndexPath, cfg.Storage.MetadataPath),
		retryMin:  defaultRetryMin,
		retryMax:  defaultRetryMax,
	}
	if idx.batchSize <= 0 {
		idx.batchSize = 10
	}
	if idx.workers <= 0 {
		idx.workers = 1
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// State returns the in-memory index the indexer writes to.
func (idx *Indexer) State() *State {
	return idx.state
}

// Rebuild discards the index and embeds every document in the vault.
func (idx *Indexer) Rebuild(ctx context.Context) (*models.IndexStats, error) {
	return idx.run(ctx, models.RunRebuild, nil)
}

// Update embeds the documents that are new or whose content changed.
func (idx *Indexer) Update(ctx context.Context) (*models.IndexStats, error) {
	return idx.run(ctx, models.RunUpdate, nil)
}

// UpdatePaths is Update restricted to paths. Paths outside the vault rules are ignored.
func (idx *Indexer) UpdatePaths(ctx context.Context, paths []string) (*models.IndexStats, error) {
	return idx.updatePaths(ctx, models.RunUpdate, paths)
}

func (idx *Indexer) updatePaths(ctx context.Context, kind models.RunKind, paths []string) (*models.IndexStats, error) {
	filtered := idx.filter(paths)
	if len(filtered) == 0 {
		return &models.IndexStats{Kind: kind, StartedAt: time.Now()}, nil
	}
	return idx.run(ctx, kind, filtered)
}

func (idx *Indexer) filter(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || !idx.rules.Matches(abs) {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	sort.Strings(out)
	return out
}

// run executes one writer run. A nil paths slice means the whole vault.
func (idx *Indexer) run(ctx context.Context, kind models.RunKind, paths []string) (*models.IndexStats, error) {
	release, err := idx.lock.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	if kind != models.RunRebuild {
		idx.reloadIfChanged()
	}

	ctx, span := otel.Tracer("kioku/indexer").Start(ctx, "indexer."+string(kind))
	defer span.End()

	stats := &models.IndexStats{RunID: uuid.NewString(), Kind: kind, StartedAt: time.Now()}
	runErr := idx.sync(ctx, kind, paths, stats)
	stats.Elapsed = time.Since(stats.StartedAt)

	span.SetAttributes(
		attribute.String("run_id", stats.RunID),
		attribute.Int("processed", stats.Processed),
		attribute.Int("failed", stats.Failed),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run failed")
	}
	idx.finish(context.WithoutCancel(ctx), stats, runErr)
	return stats, runErr
}

func (idx *Indexer) sync(ctx context.Context, kind models.RunKind, paths []string, stats *models.IndexStats) error {
	if paths == nil {
		scanned, err := vault.Scan(idx.rules)
		if err != nil {
			return err
		}
		paths = scanned
	}
	if kind == models.RunRebuild {
		idx.state.Reset()
	}
	stats.Total = len(paths)
	idx.logger.Info("run started", zap.String("kind", string(kind)), zap.String("run_id", stats.RunID), zap.Int("documents", len(paths)))

	runErr := idx.process(ctx, paths, stats)
	if err := idx.state.Persist(idx.storage.IndexPath, idx.storage.MetadataPath); err != nil {
		idx.logger.Error("persist failed", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	idx.persisted = statPersisted(idx.storage.IndexPath, idx.storage.MetadataPath)
	return runErr
}

// reloadIfChanged replaces the in-memory state with the persisted files when
// another process committed since this indexer last loaded or wrote them.
// Must be called with the writer lock held.
func (idx *Indexer) reloadIfChanged() {
	current := statPersisted(idx.storage.IndexPath, idx.storage.MetadataPath)
	if current.equal(idx.persisted) {
		return
	}
	if err := idx.state.Load(idx.storage.IndexPath, idx.storage.MetadataPath); err != nil {
		idx.logger.Warn("persisted index changed but could not be reloaded, keeping in-memory state", zap.Error(err))
	} else {
		idx.logger.Info("persisted index changed on disk, reloaded",
			zap.Int("vectors", idx.state.Count()),
			zap.Int("live", idx.state.LiveCount()))
	}
	idx.persisted = current
}

// diskStamp identifies one version of the index and metadata files. A missing
// file has a zero size and mtime.
type diskStamp struct {
	indexSize int64
	indexMod  time.Time
	metaSize  int64
	metaMod   time.Time
}

func statPersisted(indexPath, metadataPath string) diskStamp {
	var s diskStamp
	if info, err := os.Stat(indexPath); err == nil {
		s.indexSize, s.indexMod = info.Size(), info.ModTime()
	}
	if info, err := os.Stat(metadataPath); err == nil {
		s.metaSize, s.metaMod = info.Size(), info.ModTime()
	}
	return s
}

func (s diskStamp) equal(o diskStamp) bool {
	return s.indexSize == o.indexSize && s.indexMod.Equal(o.indexMod) &&
		s.metaSize == o.metaSize && s.metaMod.Equal(o.metaMod)
}

type outcomeKind int

const (
	outcomeCanceled outcomeKind = iota
	outcomeUnchanged
	outcomeSkipped
	outcomeRefreshed
	outcomeProcessed
	outcomeFailed
)

type outcome struct {
	kind   outcomeKind
	path   string
	info   os.FileInfo
	result *Result
	err    error
}

// process embeds paths batch by batch. Documents within a batch are embedded
// concurrently and applied in path order.
func (idx *Indexer) process(ctx context.Context, paths []string, stats *models.IndexStats) error {
	for start := 0; start < len(paths); start += idx.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + idx.batchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[start:end]
		outcomes := make([]outcome, len(batch))

		var g errgroup.Group
		g.SetLimit(idx.workers)
		for i, path := range batch {
			g.Go(func() error {
				if ctx.Err() != nil {
					outcomes[i] = outcome{kind: outcomeCanceled, path: path}
					return nil
				}
				outcomes[i] = idx.processOne(context.WithoutCancel(ctx), path)
				return nil
			})
		}
		_ = g.Wait()

		for _, o := range outcomes {
			idx.apply(o, stats)
		}
		idx.logger.Debug("batch complete",
			zap.Int("done", end), zap.Int("total", len(paths)),
			zap.Int("processed", stats.Processed), zap.Int("failed", stats.Failed))
	}
	return ctx.Err()
}

func (idx *Indexer) processOne(ctx context.Context, path string) outcome {
	info, err := os.Stat(path)
	if err != nil {
		return outcome{kind: outcomeSkipped, path: path, err: &IOError{Path: path, Err: err}}
	}
	record := idx.state.Record(path)
	class := Classify(record, info)
	if class == models.Unchanged {
		return outcome{kind: outcomeUnchanged, path: path}
	}

	doc, err := idx.pipeline.Prepare(path, info)
	if err != nil {
		return outcome{kind: outcomeSkipped, path: path, err: err}
	}
	if class == models.Changed && !NeedsEmbedding(record, doc.Hash) {
		return outcome{kind: outcomeRefreshed, path: path, info: info}
	}

	res, err := idx.pipeline.Embed(ctx, doc)
	if err != nil {
		return outcome{kind: outcomeFailed, path: path, err: err}
	}
	return outcome{kind: outcomeProcessed, path: path, result: res}
}

func (idx *Indexer) apply(o outcome, stats *models.IndexStats) {
	switch o.kind {
	case outcomeCanceled:
	case outcomeUnchanged:
		stats.Unchanged++
	case outcomeRefreshed:
		idx.state.Touch(o.path, o.info)
		stats.Skipped++
		idx.logger.Debug("content unchanged", zap.String("path", o.path))
	case outcomeSkipped:
		stats.Skipped++
		if errors.Is(o.err, ErrTooShort) {
			idx.logger.Debug("skipping document", zap.String("path", o.path), zap.Error(o.err))
		} else {
			stats.RecordError(o.path, o.err)
			idx.logger.Warn("skipping document", zap.String("path", o.path), zap.Error(o.err))
		}
	case outcomeFailed:
		stats.Failed++
		stats.RecordError(o.path, o.err)
		idx.logger.Error("embedding failed", zap.String("path", o.path), zap.Error(o.err))
	case outcomeProcessed:
		if _, err := idx.state.Apply(o.result.Record, o.result.Vector); err != nil {
			stats.Failed++
			stats.RecordError(o.path, err)
			idx.logger.Error("apply failed", zap.String("path", o.path), zap.Error(err))
			return
		}
		stats.Processed++
		stats.Tokens += o.result.Record.TokenCount
		stats.Cost += o.result.Record.Cost
		idx.logger.Debug("document embedded",
			zap.String("path", o.path),
			zap.Int("tokens", o.result.Record.TokenCount),
			zap.Bool("cached", o.result.Cached))
	}
}

// finish logs the tally, records the run and publishes it.
func (idx *Indexer) finish(ctx context.Context, stats *models.IndexStats, runErr error) {
	fields := []zap.Field{
		zap.String("kind", string(stats.Kind)),
		zap.String("run_id", stats.RunID),
		zap.Int("total", stats.Total),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("tokens", stats.Tokens),
		zap.Float64("cost", stats.Cost),
		zap.Float64("avg_tokens", stats.AvgTokens()),
		zap.Float64("files_per_sec", stats.Rate()),
		zap.Duration("elapsed", stats.Elapsed),
	}
	if runErr != nil {
		idx.logger.Warn("run finished with error", append(fields, zap.Error(runErr))...)
	} else {
		idx.logger.Info("run complete", fields...)
	}

	if idx.ledger != nil {
		if err := idx.ledger.RecordRun(ctx, stats, runErr); err != nil {
			idx.logger.Warn("failed to record run", zap.Error(err))
		}
	}
	rec := &models.RunRecord{IndexStats: *stats}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := idx.publisher.PublishRun(ctx, rec); err != nil {
		idx.logger.Warn("failed to publish run", zap.Error(err))
	}
}
