package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg}
}

// Request types for each tool

// ClassifyRequest represents the arguments for query_classify.
type ClassifyRequest struct {
	Path string `json:"path"`
	Root string `json:"root,omitempty"`
}

// RootRequest represents the arguments for tools that only take a root.
type RootRequest struct {
	Root  string `json:"root,omitempty"`
	Apply bool   `json:"apply,omitempty"`
}

// SortRequest represents the arguments for corpus_sort.
type SortRequest struct {
	Root    string            `json:"root,omitempty"`
	Sources []string          `json:"sources,omitempty"`
	Folders map[string]string `json:"folders,omitempty"`
	Prefix  *string           `json:"prefix,omitempty"`
	Device  string            `json:"device,omitempty"`
	Apply   bool              `json:"apply,omitempty"`
}

// DedupeRequest represents the arguments for corpus_dedupe.
type DedupeRequest struct {
	Root      string  `json:"root,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Apply     bool    `json:"apply,omitempty"`
}

// FixRequest represents the arguments for corpus_fix.
type FixRequest struct {
	Root  string `json:"root,omitempty"`
	Yara  string `json:"yara,omitempty"`
	Apply bool   `json:"apply,omitempty"`
}

// PathsRequest represents the arguments for corpus_paths.
type PathsRequest struct {
	Root   string `json:"root,omitempty"`
	Update bool   `json:"update,omitempty"`
}

// RunListRequest represents the arguments for run_list.
type RunListRequest struct {
	Op     string `json:"op,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RunFetchRequest represents the arguments for run_fetch.
type RunFetchRequest struct {
	ID string `json:"id"`
}

// Handler implementations

// HandleClassify handles the query_classify tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClassifyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Classify(ops.ClassifyInput{Path: input.Path, Root: input.Root})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDiscover handles the corpus_discover tool call.
func (h *Handlers) HandleDiscover(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RootRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Discover(h.cfg, ops.DiscoverInput{Root: input.Root})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSort handles the corpus_sort tool call.
func (h *Handlers) HandleSort(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SortRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Sort(ctx, h.db, h.cfg, ops.SortInput{
		Root:    input.Root,
		Sources: input.Sources,
		Folders: input.Folders,
		Prefix:  input.Prefix,
		Device:  input.Device,
		DryRun:  !input.Apply,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDedupe handles the corpus_dedupe tool call.
func (h *Handlers) HandleDedupe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DedupeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Dedupe(ctx, h.db, h.cfg, ops.DedupeInput{
		Root:      input.Root,
		Threshold: input.Threshold,
		DryRun:    !input.Apply,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFix handles the corpus_fix tool call.
func (h *Handlers) HandleFix(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FixRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fix(ctx, h.db, h.cfg, ops.FixInput{
		Root:   input.Root,
		Yara:   ops.YaraMode(input.Yara),
		DryRun: !input.Apply,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleConvert handles the corpus_convert tool call.
func (h *Handlers) HandleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RootRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Convert(ctx, h.db, h.cfg, ops.ConvertInput{Root: input.Root, DryRun: !input.Apply})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePaths handles the corpus_paths tool call.
func (h *Handlers) HandlePaths(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Paths(h.cfg, ops.PathsInput{Root: input.Root, Update: input.Update})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRunList handles the run_list tool call.
func (h *Handlers) HandleRunList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(h.db, ops.HistoryInput{Op: input.Op, Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRunFetch handles the run_fetch tool call.
func (h *Handlers) HandleRunFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchRun(h.db, ops.FetchRunInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error messages are replaced with a generic one.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if qErr, ok := errors.As(err); ok {
		msg := qErr.Message
		if err != error(qErr) {
			// Keep wrapper context such as "sources[1]: ".
			msg = strings.Replace(err.Error(), qErr.Error(), qErr.Message, 1)
		}
		if qErr.Code == errors.ErrInternal {
			msg = "an internal error occurred"
		}

		errorObj := map[string]any{
			"code":    qErr.Code,
			"message": msg,
			"status":  qErr.Status,
		}
		if qErr.Code != errors.ErrInternal && qErr.Details != nil {
			errorObj["details"] = qErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
