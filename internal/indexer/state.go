package indexer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

// Match is a search hit resolved to its document.
type Match struct {
	Path    string
	Ordinal int
	Score   float64
}

// State is the in-memory index: an append-only vector store, the path of every
// ordinal, the tombstoned ordinals and one record per document.
//
// Invariants: len(pathAt) == index.Count(); every path in pathAt has a record;
// live[path] is the only non-tombstoned ordinal for path.
type State struct {
	mu         sync.RWMutex
	index      *vector.FlatIndex
	pathAt     []string
	records    map[string]*models.DocumentRecord
	live       map[string]int
	tombstones map[int]struct{}
}

// NewState returns an empty state for vectors of the given dimension.
func NewState(dimensions int) (*State, error) {
	index, err := vector.NewFlatIndex(dimensions)
	if err != nil {
		return nil, err
	}
	s := &State{index: index}
	s.clear()
	return s, nil
}

func (s *State) clear() {
	s.pathAt = []string{}
	s.records = make(map[string]*models.DocumentRecord)
	s.live = make(map[string]int)
	s.tombstones = make(map[int]struct{})
}

// Apply appends vec for rec.Path, tombstones the path's previous ordinal and
// replaces its record.
func (s *State) Apply(rec *models.DocumentRecord, vec []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, err := s.index.Add(vec)
	if err != nil {
		return 0, err
	}
	s.pathAt = append(s.pathAt, rec.Path)
	if prev, ok := s.live[rec.Path]; ok {
		s.tombstones[prev] = struct{}{}
	}
	s.live[rec.Path] = ord
	r := *rec
	s.records[rec.Path] = &r
	return ord, nil
}

// Touch refreshes the size and mtime of an existing record without re-embedding.
func (s *State) Touch(path string, info os.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[path]
	if !ok {
		return
	}
	r := *old
	r.Size = info.Size()
	r.ModTime = info.ModTime()
	s.records[path] = &r
}

// Record returns a copy of the record for path, or nil.
func (s *State) Record(path string) *models.DocumentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	if !ok {
		return nil
	}
	r := *rec
	return &r
}

// Reset drops every vector, record and tombstone.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Reset()
	s.clear()
}

// Search returns up to k live matches ordered by descending score.
func (s *State) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if live := len(s.live); k > live {
		k = live
	}
	if k <= 0 {
		return nil, nil
	}
	hits, err := s.index.Search(ctx, query, k, func(ord int) bool {
		_, dead := s.tombstones[ord]
		return dead
	})
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{Path: s.pathAt[h.Ordinal], Ordinal: h.Ordinal, Score: h.Score})
	}
	return matches, nil
}

// PathAt returns the path whose vector sits at ordinal.
func (s *State) PathAt(ordinal int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(s.pathAt) {
		return "", false
	}
	return s.pathAt[ordinal], true
}

// Count returns the number of stored vectors, including tombstoned ones.
func (s *State) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Count()
}

// LiveCount returns the number of searchable vectors.
func (s *State) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// TombstoneCount returns the number of superseded vectors.
func (s *State) TombstoneCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tombstones)
}

// Dimensions returns the vector dimension.
func (s *State) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Dimensions()
}

// Totals sums the token counts and cost of every record.
func (s *State) Totals() (documents, tokens int, cost float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		tokens += r.TokenCount
		cost += r.Cost
	}
	return len(s.records), tokens, cost
}

// Persist writes the vector blob, then the metadata file. On failure the
// in-memory state is untouched and a *PersistenceError is returned.
func (s *State) Persist(indexPath, metadataPath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.index.Save(indexPath); err != nil {
		return &PersistenceError{Path: indexPath, Err: err}
	}
	meta := &storage.Metadata{
		Files:       s.records,
		FilePaths:   s.pathAt,
		Tombstones:  make([]int, 0, len(s.tombstones)),
		LastUpdated: time.Now(),
	}
	for ord := range s.tombstones {
		meta.Tombstones = append(meta.Tombstones, ord)
	}
	sort.Ints(meta.Tombstones)
	if err := storage.SaveMetadata(metadataPath, meta); err != nil {
		return &PersistenceError{Path: metadataPath, Err: err}
	}
	return nil
}

// Load replaces the state with the persisted files. Missing files give an empty
// state. A corrupt file returns an error and leaves the state unchanged.
func (s *State) Load(indexPath, metadataPath string) error {
	index, err := vector.NewFlatIndex(s.index.Dimensions())
	if err != nil {
		return err
	}
	if err := index.Load(indexPath); err != nil {
		return fmt.Errorf("load index %s: %w", indexPath, err)
	}
	meta, err := storage.LoadMetadata(metadataPath)
	if err != nil {
		return err
	}
	if len(meta.FilePaths) != index.Count() {
		return &PersistenceError{
			Path: metadataPath,
			Err:  fmt.Errorf("metadata lists %d vectors, index holds %d", len(meta.FilePaths), index.Count()),
		}
	}

	tombstones := make(map[int]struct{}, len(meta.Tombstones))
	for _, ord := range meta.Tombstones {
		tombstones[ord] = struct{}{}
	}
	live := make(map[string]int)
	for ord, path := range meta.FilePaths {
		if _, ok := meta.Files[path]; !ok {
			return &PersistenceError{Path: metadataPath, Err: fmt.Errorf("no record for %s at ordinal %d", path, ord)}
		}
		if _, dead := tombstones[ord]; !dead {
			live[path] = ord
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
	s.pathAt = meta.FilePaths
	s.records = meta.Files
	s.live = live
	s.tombstones = tombstones
	return nil
}
