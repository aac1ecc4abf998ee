// Package models defines core data structures for tracked documents, queries, and run results.
package models

import "time"

// DocumentRecord is the last known state of one embedded document.
type DocumentRecord struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mtime"`
	ContentHash string    `json:"content_hash"`
	EmbeddedAt  time.Time `json:"embedding_timestamp"`
	TokenCount  int       `json:"embedding_tokens"`
	Cost        float64   `json:"embedding_cost"`
}

// Classification is the change detector's verdict for a document.
type Classification int

const (
	Unchanged Classification = iota
	Changed
	New
)

func (c Classification) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case New:
		return "new"
	default:
		return "unknown"
	}
}
