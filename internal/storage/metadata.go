package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Metadata is the on-disk companion of the vector index. FilePaths[i] is the
// document whose vector sits at ordinal i; Tombstones lists superseded ordinals.
type Metadata struct {
	Files       map[string]*models.DocumentRecord `json:"files"`
	FilePaths   []string                          `json:"file_paths"`
	Tombstones  []int                             `json:"tombstones"`
	LastUpdated time.Time                         `json:"last_updated"`
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{
		Files:      make(map[string]*models.DocumentRecord),
		FilePaths:  []string{},
		Tombstones: []int{},
	}
}

// LoadMetadata reads the metadata file at path. A missing file yields empty metadata.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMetadata(), nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	m := NewMetadata()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	if m.Files == nil {
		m.Files = make(map[string]*models.DocumentRecord)
	}
	for _, ord := range m.Tombstones {
		if ord < 0 || ord >= len(m.FilePaths) {
			return nil, fmt.Errorf("metadata %s: tombstone %d out of range", path, ord)
		}
	}
	return m, nil
}

// SaveMetadata writes m as indented JSON through a temporary file and rename.
// Tombstones are written sorted.
func SaveMetadata(path string, m *Metadata) error {
	sort.Ints(m.Tombstones)
	if m.LastUpdated.IsZero() {
		m.LastUpdated = time.Now()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return utils.WriteFileAtomic(path, data, 0644)
}
