package models

import "path/filepath"

// SearchResult is a single retrieval hit.
type SearchResult struct {
	Path       string  `json:"path"`
	Similarity float64 `json:"similarity"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
}

// Filename returns the base name of the result path.
func (r *SearchResult) Filename() string {
	return filepath.Base(r.Path)
}

// SearchStatus tells an empty result set apart from an unusable engine.
type SearchStatus string

const (
	StatusOK SearchStatus = "ok"
	// StatusEmpty means the index holds nothing to compare against.
	StatusEmpty SearchStatus = "empty"
	// StatusUnavailable means no embedding provider is configured.
	StatusUnavailable SearchStatus = "unavailable"
)

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string          `json:"query"`
	Status    SearchStatus    `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Results   []*SearchResult `json:"results"`
	QueryTime int64           `json:"query_time_ms"`
}
