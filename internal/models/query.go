package models

import (
	"fmt"
	"path/filepath"
)

// SearchQuery is a retrieval request by free text or by reference document.
type SearchQuery struct {
	Text  string `json:"text,omitempty"`
	File  string `json:"file,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Validate requires exactly one of Text or File and uses defaultLimit when
// Limit is unset. Limit is not capped; the search returns at most the number of
// live documents.
func (q *SearchQuery) Validate(defaultLimit int) error {
	if q.Text == "" && q.File == "" {
		return fmt.Errorf("query requires text or file")
	}
	if q.Text != "" && q.File != "" {
		return fmt.Errorf("query accepts text or file, not both")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	return nil
}

// Description is the human-readable form used in result headers: the quoted
// text, or "file: " and the base name of the reference document.
func (q *SearchQuery) Description() string {
	if q.File != "" {
		return "file: " + filepath.Base(q.File)
	}
	return `"` + q.Text + `"`
}
