package config

import "time"

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// Query result formats.
const (
	FormatSimple   = "simple"
	FormatDetailed = "detailed"
)

// DefaultSimilarityThreshold applies when query.similarity_threshold is unset.
const DefaultSimilarityThreshold = 0.3

// DefaultDataDir is where state lives unless configured otherwise (relative to home).
const DefaultDataDir = ".local/share/kioku"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Vault.Extensions == nil {
		cfg.Vault.Extensions = []string{".md"}
	}
	if cfg.Vault.ExcludeDirs == nil {
		cfg.Vault.ExcludeDirs = []string{".obsidian", ".trash", ".git"}
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = DefaultDataDir + "/index.bin"
	}
	if cfg.Storage.MetadataPath == "" {
		cfg.Storage.MetadataPath = DefaultDataDir + "/metadata.json"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = DefaultDataDir + "/runs.db"
	}
	if cfg.Storage.LockPath == "" {
		cfg.Storage.LockPath = DefaultDataDir + "/kioku.lock"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOpenAI
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-large"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 3072
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 8000
	}
	if cfg.Embedding.RateLimitDelay == 0 {
		cfg.Embedding.RateLimitDelay = 100 * time.Millisecond
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 10
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.PricePer1KTokens == 0 {
		cfg.Embedding.PricePer1KTokens = 0.00013
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.QueryCacheSize == 0 {
		cfg.Embedding.QueryCacheSize = 1000
	}
	if cfg.Indexing.MinContentLength == 0 {
		cfg.Indexing.MinContentLength = 50
	}
	if cfg.Indexing.MaxContentLength == 0 {
		cfg.Indexing.MaxContentLength = 100000
	}
	if cfg.Indexing.DebounceSeconds == 0 {
		cfg.Indexing.DebounceSeconds = 2
	}
	if cfg.Query.MaxResults == 0 {
		cfg.Query.MaxResults = 10
	}
	if cfg.Query.ResultFormat == "" {
		cfg.Query.ResultFormat = FormatSimple
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8484
	}
	if cfg.Server.ServiceName == "" {
		cfg.Server.ServiceName = "kioku"
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "kioku.runs"
	}
}
