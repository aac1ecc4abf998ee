// Package main is the kioku CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

// defaultConfigPath is ~/.local/share/kioku/config.yaml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(config.DefaultDataDir, "config.yaml")
	}
	return filepath.Join(home, config.DefaultDataDir, "config.yaml")
}

// loadConfig loads config from path. An empty path means the default location,
// except that a config.yaml in the current directory takes precedence (for
// development). Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// commonFlags are accepted by every command that reads the config.
type commonFlags struct {
	config *string
	debug  *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, commonFlags{
		config: fs.String("config", "", "config file path (default: ./config.yaml, then ~/.local/share/kioku/config.yaml)"),
		debug:  fs.Bool("debug", false, "enable debug logging"),
	}
}

// setup loads the config and builds the logger the way every command does.
func setup(f commonFlags) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(*f.config)
	if err != nil {
		return nil, nil, err
	}
	debugMode := cfg.Debug || *f.debug
	logger, err := utils.NewLoggerWithOptions(debugMode, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger, nil
}

type command func(ctx context.Context, args []string, stdout io.Writer) error

var commands = map[string]command{
	"init":    runInit,
	"rebuild": runRebuild,
	"update":  runUpdate,
	"watch":   runWatch,
	"query":   runQuery,
	"status":  runStatus,
	"runs":    runRuns,
	"serve":   runServe,
	"mcp":     runMCP,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	name := args[0]
	switch name {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "kioku version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		printUsage(stderr)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd(ctx, args[1:], stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `kioku - semantic search over a markdown vault

Usage:
  kioku init --vault <dir>        Write a starter config
  kioku rebuild [flags]           Re-embed every note from scratch
  kioku update [flags]            Embed new and changed notes
  kioku watch [flags]             Update, then keep the index in sync with edits
  kioku query [flags]             Search by --text or by --file
  kioku status [flags]            Show index counts and file sizes
  kioku runs [flags]              Show recent indexing runs
  kioku serve [flags]             Start the HTTP API and watch the vault
  kioku mcp [flags]               Serve MCP tools on stdio
  kioku version                   Show version
  kioku help                      Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, then ~/.local/share/kioku/config.yaml)
  --debug            Enable debug logging

Query Flags:
  --text string      Query text
  --file string      Find notes similar to this file
  --limit int        Maximum number of results (default: query.max_results)
  --output string    text, detailed or json (default: query.result_format)

Status/Runs Flags:
  --output string    text or json (default: text)
  --limit int        Number of runs to show (runs only, default: 20)

Examples:
  kioku init --vault ~/Notes
  kioku rebuild
  kioku query --text "decision making under uncertainty"
  kioku query --file ~/Notes/ideas.md --output detailed
  kioku serve`)
}
