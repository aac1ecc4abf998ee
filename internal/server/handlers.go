package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/models"
	"go.uber.org/zap"
)

const defaultRunsLimit = 20

type updateRequest struct {
	Paths []string `json:"paths,omitempty"`
}

type runResponse struct {
	Stats *models.IndexStats `json:"stats,omitempty"`
	Error string             `json:"error,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(s.config.Query.MaxResults); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Description()), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var (
		stats *models.IndexStats
		err   error
	)
	if len(req.Paths) > 0 {
		s.logger.Debug("update request", zap.Strings("paths", req.Paths))
		stats, err = s.indexer.UpdatePaths(r.Context(), req.Paths)
	} else {
		s.logger.Debug("update request")
		stats, err = s.indexer.Update(r.Context())
	}
	s.respondRun(w, stats, err)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("rebuild request")
	stats, err := s.indexer.Rebuild(r.Context())
	s.respondRun(w, stats, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := indexer.BuildStatus(s.indexer.State(), s.config)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"index":            status,
		"search_available": s.engine.Available(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "run ledger not enabled")
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondRun reports a finished run. A locked index is a conflict; any other
// run error still carries the stats gathered before it.
func (s *Server) respondRun(w http.ResponseWriter, stats *models.IndexStats, err error) {
	if err == nil {
		s.respondJSON(w, http.StatusOK, runResponse{Stats: stats})
		return
	}
	status := http.StatusInternalServerError
	if errors.Is(err, indexer.ErrLocked) {
		status = http.StatusConflict
	}
	s.logger.Error("run failed", zap.Error(err))
	s.respondJSON(w, status, runResponse{Stats: stats, Error: err.Error()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
