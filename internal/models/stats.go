package models

import (
	"fmt"
	"time"
)

// RunKind names the operation that produced an IndexStats.
type RunKind string

const (
	RunRebuild RunKind = "rebuild"
	RunUpdate  RunKind = "update"
	RunWatch   RunKind = "watch"
)

const maxRunErrors = 20

// IndexStats tallies one rebuild or update run.
type IndexStats struct {
	RunID     string        `json:"run_id"`
	Kind      RunKind       `json:"kind"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Total     int           `json:"total"`
	Unchanged int           `json:"unchanged"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Tokens    int           `json:"tokens"`
	Cost      float64       `json:"cost"`
	Errors    []string      `json:"errors,omitempty"`
}

// RecordError keeps the most recent failure messages for reporting.
func (s *IndexStats) RecordError(path string, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", path, err))
	if len(s.Errors) > maxRunErrors {
		s.Errors = s.Errors[len(s.Errors)-maxRunErrors:]
	}
}

// AvgTokens is the mean token count of processed documents.
func (s *IndexStats) AvgTokens() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Tokens) / float64(s.Processed)
}

// Rate is processed documents per second.
func (s *IndexStats) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Processed) / s.Elapsed.Seconds()
}

// RunRecord is one entry of the run ledger: the final tally plus the error that
// ended the run, if any.
type RunRecord struct {
	IndexStats
	Error string `json:"error,omitempty"`
}
