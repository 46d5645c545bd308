package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/ctxbridge/internal/capture"
	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/config"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/ops"
	"github.com/hpungsan/ctxbridge/internal/synth"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps   Deps
	cfg    *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{deps: deps, cfg: cfg, logger: logger}
}

// Request types for each tool

// CaptureRequest represents the arguments for clip_capture.
type CaptureRequest struct {
	Mode  string `json:"mode,omitempty"`
	Text  string `json:"text,omitempty"`
	HTML  string `json:"html,omitempty"`
	Type  string `json:"type,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// ListRequest represents the arguments for clip_list.
type ListRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// IDRequest is the argument shape of single-clip tools.
type IDRequest struct {
	ID string `json:"id"`
}

// IDsRequest is the argument shape of multi-clip tools.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// UpdateRequest represents the arguments for clip_update.
type UpdateRequest struct {
	ID      string  `json:"id"`
	Content *string `json:"content"`
}

// ExportRequest represents the arguments for clip_export.
type ExportRequest struct {
	Path   string   `json:"path,omitempty"`
	IDs    []string `json:"ids,omitempty"`
	Status string   `json:"status,omitempty"`
}

// Handler implementations

// HandleCapture handles the clip_capture tool call.
func (h *Handlers) HandleCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	var result *capture.Result
	switch input.Mode {
	case "", "selection":
		result, err = h.deps.Producer.CaptureSelection(ctx, capture.SelectionInput{
			HTML:  input.HTML,
			Text:  input.Text,
			Type:  clip.Type(input.Type),
			URL:   input.URL,
			Title: input.Title,
		})
	case "page":
		result, err = h.deps.Producer.CapturePage(ctx, capture.PageInput{
			HTML:  input.HTML,
			URL:   input.URL,
			Title: input.Title,
		})
	default:
		err = errors.NewValidation("mode must be selection or page")
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the clip_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.deps.Repo.List(ops.ListInput{
		Status: input.Status,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleGet handles the clip_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewValidation("id is required")), nil
	}

	item, err := h.deps.Repo.Get(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(item)
}

// HandleDelete handles the clip_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewValidation("id is required")), nil
	}

	n, err := h.deps.Repo.DeleteMany(ctx, []string{input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "deleted": n == 1})
}

// HandleBulkDelete handles the clip_bulk_delete tool call.
func (h *Handlers) HandleBulkDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if len(input.IDs) == 0 {
		return errorResult(errors.NewValidation("ids is required")), nil
	}

	n, err := h.deps.Repo.DeleteMany(ctx, input.IDs)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": n})
}

// HandleArchive handles the clip_archive tool call.
func (h *Handlers) HandleArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if len(input.IDs) == 0 {
		return errorResult(errors.NewValidation("ids is required")), nil
	}

	n, err := h.deps.Repo.Archive(ctx, input.IDs)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"archived": n})
}

// HandleRestore handles the clip_restore tool call.
func (h *Handlers) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.deps.Repo.Restore(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "status": clip.StatusStaging})
}

// HandleUpdate handles the clip_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Content == nil {
		return errorResult(errors.NewValidation("content is required")), nil
	}

	item, err := h.deps.Repo.UpdateContent(ctx, input.ID, *input.Content)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(ops.Summarize(item))
}

// HandleReorder handles the clip_reorder tool call.
func (h *Handlers) HandleReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.deps.Repo.ReorderStaging(ctx, input.IDs); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"staging": clip.IDs(h.deps.Repo.Staging())})
}

// HandleExport handles the clip_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.deps.Repo.Export(ctx, ops.ExportInput{
		Path:   input.Path,
		IDs:    input.IDs,
		Status: input.Status,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSynthesize handles the clip_synthesize tool call. Each call owns a
// fresh session: without confirm nothing is written.
func (h *Handlers) HandleSynthesize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[synth.Request](req)
	if err != nil {
		return errorResult(err), nil
	}

	sess := synth.NewSession(h.deps.Engine, h.logger)
	result, err := synth.Run(ctx, sess, h.deps.Settings, h.deps.Repo, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if be, ok := errors.As(err); ok {
		msg := be.Message
		if err != error(be) {
			// Keep context added by wrappers
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    be.Code,
			"message": msg,
			"status":  be.Status,
		}
		if be.Code != errors.ErrInternal && be.Details != nil {
			errorObj["details"] = be.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
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

// successResult creates an MCP success result with data as JSON text.
func successResult(data any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
