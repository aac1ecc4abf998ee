package main

import (
	"errors"
	"fmt"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/events"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/storage"
	"go.uber.org/zap"
)

// Components holds everything a command needs. Indexer, Ledger, Cache and
// Publisher are only set for writer commands. Provider is nil when search is
// unavailable.
type Components struct {
	Config    *config.Config
	State     *indexer.State
	Provider  embedding.Provider
	Engine    *search.Engine
	Indexer   *indexer.Indexer
	Ledger    storage.RunLedger
	Cache     *embedding.BoltCache
	Publisher events.Publisher
}

func (c *Components) Close() {
	if c.Publisher != nil {
		_ = c.Publisher.Close()
	}
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
}

// initializeComponents wires config, provider, state and engine. Writers also
// get the indexer with its ledger, embedding cache and run publisher, and fail
// with a *config.ConfigError when no credential is configured. Readers get an
// engine that reports the missing credential as unavailable.
func initializeComponents(cfg *config.Config, logger *zap.Logger, writer bool) (*Components, error) {
	c := &Components{Config: cfg}

	state, err := indexer.NewState(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	if err := state.Load(cfg.Storage.IndexPath, cfg.Storage.MetadataPath); err != nil {
		if !writer {
			return nil, fmt.Errorf("failed to load index (run kioku rebuild): %w", err)
		}
		logger.Warn("index load failed, starting empty", zap.Error(err))
	}
	c.State = state
	logger.Debug("index loaded",
		zap.Int("vectors", state.Count()),
		zap.Int("live", state.LiveCount()),
		zap.Int("tombstoned", state.TombstoneCount()))

	reason := ""
	provider, err := embedding.NewProvider(&cfg.Embedding)
	switch {
	case errors.Is(err, embedding.ErrNoCredential):
		if writer {
			return nil, &config.ConfigError{Field: "embedding.api_key_env", Err: fmt.Errorf("%s is not set: %w", cfg.Embedding.APIKeyEnv, err)}
		}
		reason = "OpenAI API key not configured; set " + cfg.Embedding.APIKeyEnv
	case err != nil:
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	default:
		c.Provider = provider
	}

	extractor := extract.NewExtractor(cfg.Indexing.SkipFrontmatterOrDefault())
	engineOpts := []search.EngineOption{search.WithLogger(logger)}
	if reason != "" {
		engineOpts = append(engineOpts, search.WithUnavailableReason(reason))
	}
	c.Engine, err = search.NewEngine(state, c.Provider, extractor, cfg, engineOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	if !writer {
		return c, nil
	}

	if err := c.initWriter(cfg, logger, extractor); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) initWriter(cfg *config.Config, logger *zap.Logger, extractor *extract.Extractor) error {
	pipeOpts := []indexer.PipelineOption{
		indexer.WithLimiter(indexer.NewLimiter(cfg.Embedding.RateLimitDelay)),
		indexer.WithPipelineLogger(logger),
	}
	if cfg.Storage.CachePath != "" {
		cache, err := embedding.OpenBoltCache(cfg.Storage.CachePath)
		if err != nil {
			return err
		}
		c.Cache = cache
		pipeOpts = append(pipeOpts, indexer.WithCache(cache))
	}
	pipe := indexer.NewPipeline(c.Provider, extractor, &cfg.Embedding, &cfg.Indexing, pipeOpts...)

	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	if cfg.Storage.DatabasePath != "" {
		ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open run ledger: %w", err)
		}
		c.Ledger = ledger
		idxOpts = append(idxOpts, indexer.WithLedger(ledger))
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject, events.WithLogger(logger))
		if err != nil {
			logger.Warn("run events disabled", zap.Error(err))
		} else {
			c.Publisher = pub
			idxOpts = append(idxOpts, indexer.WithPublisher(pub))
		}
	}
	c.Indexer = indexer.NewIndexer(cfg, c.State, pipe, idxOpts...)
	return nil
}
