package indexer

import (
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/storage"
)

// Status summarizes the index and its files on disk.
type Status struct {
	Vault      string              `json:"vault"`
	Provider   string              `json:"provider"`
	Model      string              `json:"model"`
	Dimensions int                 `json:"dimensions"`
	Documents  int                 `json:"documents"`
	Vectors    int                 `json:"vectors"`
	Live       int                 `json:"live"`
	Tombstoned int                 `json:"tombstoned"`
	Tokens     int                 `json:"tokens"`
	Cost       float64             `json:"cost"`
	Files      []storage.FileUsage `json:"files"`
	DiskBytes  int64               `json:"disk_bytes"`
}

// BuildStatus reads the counts from state and stats the configured files.
func BuildStatus(state *State, cfg *config.Config) (*Status, error) {
	docs, tokens, cost := state.Totals()
	files, total, err := storage.DiskUsage(
		cfg.Storage.IndexPath,
		cfg.Storage.MetadataPath,
		cfg.Storage.CachePath,
		cfg.Storage.DatabasePath,
	)
	if err != nil {
		return nil, err
	}
	return &Status{
		Vault:      cfg.Vault.Path,
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: state.Dimensions(),
		Documents:  docs,
		Vectors:    state.Count(),
		Live:       state.LiveCount(),
		Tombstoned: state.TombstoneCount(),
		Tokens:     tokens,
		Cost:       cost,
		Files:      files,
		DiskBytes:  total,
	}, nil
}
