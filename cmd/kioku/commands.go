package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kioku/internal/cli"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/mcp"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/server"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vault"
	"github.com/hyperjump/kioku/internal/watcher"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	triggerBuffer   = 256
	defaultRunLimit = 20
)

func runInit(_ context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("init")
	vaultPath := fs.String("vault", "", "path to the markdown vault (required)")
	provider := fs.String("provider", config.ProviderOpenAI, "embedding provider: openai, onnx or mock")
	force := fs.Bool("force", false, "overwrite an existing config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vaultPath == "" {
		return errors.New("--vault is required")
	}
	absVault, err := filepath.Abs(*vaultPath)
	if err != nil {
		return fmt.Errorf("invalid vault path: %w", err)
	}
	path := *cf.config
	if path == "" {
		path = defaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := &config.Config{
		Vault:     config.VaultConfig{Path: absVault},
		Embedding: config.EmbeddingConfig{Provider: *provider},
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

func runRebuild(ctx context.Context, args []string, stdout io.Writer) error {
	return runIndex(ctx, models.RunRebuild, args, stdout)
}

func runUpdate(ctx context.Context, args []string, stdout io.Writer) error {
	return runIndex(ctx, models.RunUpdate, args, stdout)
}

func runIndex(ctx context.Context, kind models.RunKind, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet(string(kind))
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger, true)
	if err != nil {
		return err
	}
	defer c.Close()

	var stats *models.IndexStats
	if kind == models.RunRebuild {
		stats, err = c.Indexer.Rebuild(ctx)
	} else {
		stats, err = c.Indexer.Update(ctx)
	}
	if stats != nil {
		cli.WriteStats(stdout, runTitle(kind, err), stats)
	}
	return err
}

func runTitle(kind models.RunKind, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("Index %s interrupted", kind)
	case err != nil:
		return fmt.Sprintf("Index %s failed", kind)
	}
	return fmt.Sprintf("Index %s complete", kind)
}

// startWatcher watches the vault and feeds settled paths into the returned
// channel until ctx is done.
func startWatcher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*watcher.Watcher, <-chan string, error) {
	triggers := make(chan string, triggerBuffer)
	w := watcher.NewWatcher(
		vault.RulesFromConfig(&cfg.Vault),
		func(path string) {
			select {
			case triggers <- path:
			case <-ctx.Done():
			}
		},
		watcher.WithDebounce(cfg.Indexing.Debounce()),
		watcher.WithLogger(logger),
	)
	if err := w.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	return w, triggers, nil
}

// initialUpdate brings the index up to date before watching. Only
// cancellation and lock contention stop the caller.
func initialUpdate(ctx context.Context, idx *indexer.Indexer, stdout io.Writer, logger *zap.Logger) error {
	stats, err := idx.Update(ctx)
	if stats != nil {
		cli.WriteStats(stdout, runTitle(models.RunUpdate, err), stats)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, indexer.ErrLocked):
		return err
	}
	logger.Warn("initial update failed, watching anyway", zap.Error(err))
	return nil
}

func runWatch(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger, true)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := initialUpdate(ctx, c.Indexer, stdout, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	w, triggers, err := startWatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintln(stdout, "Watching for file changes... Press Ctrl+C to stop")
	return c.Indexer.Watch(ctx, triggers)
}

func runQuery(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("query")
	text := fs.String("text", "", "search by text query")
	file := fs.String("file", "", "search by similarity to a file")
	limit := fs.Int("limit", 0, "maximum number of results (default: query.max_results)")
	output := fs.String("output", "", "output format: text, detailed or json (default: query.result_format)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *text == "" && *file == "" {
		return errors.New("please specify either --text or --file")
	}

	cfg, logger, err := setup(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	configured, err := cli.ParseOutputFormat(cfg.Query.ResultFormat, cli.OutputText)
	if err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*output, configured)
	if err != nil {
		return err
	}
	query := &models.SearchQuery{Text: *text, File: *file, Limit: *limit}
	if err := query.Validate(cfg.Query.MaxResults); err != nil {
		return err
	}

	c, err := initializeComponents(cfg, logger, false)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Engine.Search(ctx, query)
	if err != nil {
		return err
	}
	return cli.WriteSearchResults(stdout, query, resp, format)
}

func runStatus(_ context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("status")
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger, false)
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := indexer.BuildStatus(c.State, cfg)
	if err != nil {
		return err
	}
	if *output == "json" {
		return writeJSON(stdout, map[string]interface{}{
			"index":            status,
			"search_available": c.Engine.Available(),
		})
	}
	cli.WriteStatus(stdout, status, c.Engine.Available())
	return nil
}

func runRuns(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("runs")
	limit := fs.Int("limit", defaultRunLimit, "number of runs to show")
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer ledger.Close()

	runs, err := ledger.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	if *output == "json" {
		if runs == nil {
			runs = []*models.RunRecord{}
		}
		return writeJSON(stdout, map[string]interface{}{"runs": runs})
	}
	return cli.WriteRuns(stdout, runs)
}

func runServe(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger, true)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := initialUpdate(ctx, c.Indexer, stdout, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	w, triggers, err := startWatcher(gctx, cfg, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	srv := server.NewServer(c.Engine, c.Indexer, c.Ledger, cfg, logger)
	g.Go(func() error { return c.Indexer.Watch(gctx, triggers) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(sctx)
	})
	return g.Wait()
}

func runMCP(ctx context.Context, args []string, _ io.Writer) error {
	fs, cf := newFlagSet("mcp")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := setup(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger, true)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcp.NewServer(c.Engine, c.Indexer, cfg, version, mcp.WithLogger(logger))
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
