package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/models"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
	ErrorCodeLocked        = -32002 // Another writer holds the index lock
)

// handleSemanticSearch handles the semantic_search tool invocation
func (s *Server) handleSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := &models.SearchQuery{
		Text:  getStringDefault(args, "query", ""),
		File:  getStringDefault(args, "file", ""),
		Limit: getIntDefault(args, "limit", 0),
	}
	if query.Limit < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be positive", map[string]interface{}{
			"param": "limit",
			"value": query.Limit,
		})
	}
	if err := query.Validate(s.config.Query.MaxResults); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}

	resp, err := s.engine.Search(ctx, query)
	if err != nil {
		s.logger.Error("mcp search failed", zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if resp.Status == models.StatusUnavailable {
		return mcp.NewToolResultText("Semantic search unavailable: " + resp.Reason), nil
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"path":       r.Path,
			"title":      r.Title,
			"similarity": r.Similarity,
			"snippet":    r.Snippet,
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":         query.Description(),
		"status":        resp.Status,
		"results":       results,
		"query_time_ms": resp.QueryTime,
	})), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := indexer.BuildStatus(s.indexer.State(), s.config)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"index":            status,
		"search_available": s.engine.Available(),
	})), nil
}

// handleUpdateIndex handles the update_index tool invocation
func (s *Server) handleUpdateIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	var (
		stats *models.IndexStats
		err   error
	)
	if getBoolDefault(args, "rebuild", false) {
		stats, err = s.indexer.Rebuild(ctx)
	} else {
		stats, err = s.indexer.Update(ctx)
	}
	if errors.Is(err, indexer.ErrLocked) {
		return nil, newMCPError(ErrorCodeLocked, "index is locked by another writer", nil)
	}
	if err != nil {
		data := map[string]interface{}{"error": err.Error()}
		if stats != nil {
			data["stats"] = stats
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", data)
	}

	response := map[string]interface{}{
		"kind":        stats.Kind,
		"total":       stats.Total,
		"unchanged":   stats.Unchanged,
		"processed":   stats.Processed,
		"skipped":     stats.Skipped,
		"failed":      stats.Failed,
		"tokens":      stats.Tokens,
		"cost":        stats.Cost,
		"duration_ms": stats.Elapsed.Milliseconds(),
	}
	if len(stats.Errors) > 0 {
		if len(stats.Errors) > 5 {
			response["errors"] = stats.Errors[:5]
			response["error_count"] = len(stats.Errors)
		} else {
			response["errors"] = stats.Errors
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault accepts JSON numbers (float64) as well as ints
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
