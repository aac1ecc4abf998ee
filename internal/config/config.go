// Package config provides configuration loading and structs for kioku.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Vault     VaultConfig     `yaml:"vault"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Query     QueryConfig     `yaml:"query"`
	Server    ServerConfig    `yaml:"server"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// VaultConfig describes the directory of notes to index.
type VaultConfig struct {
	Path         string   `yaml:"path"`
	Extensions   []string `yaml:"extensions"`
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	ExcludeFiles []string `yaml:"exclude_files"`
}

// StorageConfig holds paths for the persisted index state.
type StorageConfig struct {
	IndexPath    string `yaml:"index_path"`
	MetadataPath string `yaml:"metadata_path"`
	// CachePath is the persistent embedding cache; empty disables it.
	CachePath    string `yaml:"cache_path"`
	DatabasePath string `yaml:"database_path"`
	LockPath     string `yaml:"lock_path"`
}

// EmbeddingConfig holds provider and pipeline settings.
type EmbeddingConfig struct {
	Provider         string        `yaml:"provider"`
	Model            string        `yaml:"model"`
	Dimensions       int           `yaml:"dimensions"`
	MaxTokens        int           `yaml:"max_tokens"`
	RateLimitDelay   time.Duration `yaml:"rate_limit_delay"`
	BatchSize        int           `yaml:"batch_size"`
	Workers          int           `yaml:"workers"`
	PricePer1KTokens float64       `yaml:"price_per_1k_tokens"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	BaseURL          string        `yaml:"base_url"`
	TimeoutSeconds   int           `yaml:"timeout_seconds"`
	ModelPath        string        `yaml:"model_path"`
	QueryCacheSize   int           `yaml:"query_cache_size"`
}

// APIKey returns the provider credential from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// IndexingConfig holds content gating and watch settings.
type IndexingConfig struct {
	SkipFrontmatter  *bool   `yaml:"skip_frontmatter"`
	MinContentLength int     `yaml:"min_content_length"`
	MaxContentLength int     `yaml:"max_content_length"`
	DebounceSeconds  float64 `yaml:"debounce_seconds"`
}

// SkipFrontmatterOrDefault returns whether to strip frontmatter; defaults to true when unset.
func (i *IndexingConfig) SkipFrontmatterOrDefault() bool {
	if i.SkipFrontmatter != nil {
		return *i.SkipFrontmatter
	}
	return true
}

// Debounce returns the debounce window as a duration.
func (i *IndexingConfig) Debounce() time.Duration {
	return time.Duration(i.DebounceSeconds * float64(time.Second))
}

// QueryConfig holds retrieval settings.
type QueryConfig struct {
	MaxResults int `yaml:"max_results"`
	// SimilarityThreshold drops results below it; -1 keeps everything.
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	ResultFormat        string   `yaml:"result_format"`
}

// Threshold returns the similarity threshold, defaulting when unset.
func (q *QueryConfig) Threshold() float64 {
	if q.SimilarityThreshold != nil {
		return *q.SimilarityThreshold
	}
	return DefaultSimilarityThreshold
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ServiceName string `yaml:"service_name"`
}

// EventsConfig holds run event publishing settings.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConfigError reports an unusable configuration. It is fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads and parses the config file at path, applies defaults, expands paths
// and validates the result. All failures are returned as *ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to read config: %w", err)}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to parse config: %w", err)}
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths(configDir string) {
	c.Vault.Path = expandPath(c.Vault.Path, configDir)
	c.Storage.IndexPath = expandPath(c.Storage.IndexPath, configDir)
	c.Storage.MetadataPath = expandPath(c.Storage.MetadataPath, configDir)
	c.Storage.CachePath = expandPath(c.Storage.CachePath, configDir)
	c.Storage.DatabasePath = expandPath(c.Storage.DatabasePath, configDir)
	c.Storage.LockPath = expandPath(c.Storage.LockPath, configDir)
	c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, configDir)
	c.Logging.File = expandPath(c.Logging.File, configDir)
}

// Validate checks settings that would make the index unusable.
func (c *Config) Validate() error {
	if c.Vault.Path == "" {
		return &ConfigError{Field: "vault.path", Err: errors.New("is required")}
	}
	if c.Embedding.Dimensions <= 0 {
		return &ConfigError{Field: "embedding.dimensions", Err: fmt.Errorf("must be positive, got %d", c.Embedding.Dimensions)}
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderONNX, ProviderMock:
	default:
		return &ConfigError{Field: "embedding.provider", Err: fmt.Errorf("unknown provider %q", c.Embedding.Provider)}
	}
	if c.Indexing.MaxContentLength < c.Indexing.MinContentLength {
		return &ConfigError{Field: "indexing.max_content_length", Err: fmt.Errorf("%d is below min_content_length %d",
			c.Indexing.MaxContentLength, c.Indexing.MinContentLength)}
	}
	if t := c.Query.Threshold(); t < -1 || t > 1 {
		return &ConfigError{Field: "query.similarity_threshold", Err: fmt.Errorf("must be within [-1, 1], got %v", t)}
	}
	switch c.Query.ResultFormat {
	case FormatSimple, FormatDetailed:
	default:
		return &ConfigError{Field: "query.result_format", Err: fmt.Errorf("unknown format %q", c.Query.ResultFormat)}
	}
	return nil
}

// Save writes the config to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
