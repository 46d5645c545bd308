package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = mcp.Items(map[string]any{"type": "string"})

var captureToolDef = mcp.NewTool("clip_capture",
	mcp.WithDescription("Capture text, an HTML selection or a whole HTML page as a new staged clip. "+
		"A capture identical to a staged clip from the same URL returns that clip with duplicate=true."),
	mcp.WithString("mode", mcp.Description("selection (default) or page"), mcp.Enum("selection", "page")),
	mcp.WithString("text", mcp.Description("Plain text or Markdown content (selection mode, when html is empty)")),
	mcp.WithString("html", mcp.Description("HTML of the selection, or the whole document in page mode")),
	mcp.WithString("type", mcp.Description("text (default) or code; selection mode only"), mcp.Enum("text", "code")),
	mcp.WithString("url", mcp.Description("Source URL")),
	mcp.WithString("title", mcp.Description("Source title")),
)

var listToolDef = mcp.NewTool("clip_list",
	mcp.WithDescription("List clips in collection order with previews, token totals and pagination."),
	mcp.WithString("status", mcp.Description("staging or archived; omit for all"), mcp.Enum("staging", "archived")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var getToolDef = mcp.NewTool("clip_get",
	mcp.WithDescription("Fetch one clip with its full content and provenance."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var deleteToolDef = mcp.NewTool("clip_delete",
	mcp.WithDescription("Permanently delete a clip. Deleting a missing id is a no-op."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
	mcp.WithDestructiveHintAnnotation(true),
)

var bulkDeleteToolDef = mcp.NewTool("clip_bulk_delete",
	mcp.WithDescription("Permanently delete several clips in one write."),
	mcp.WithArray("ids", mcp.Required(), mcp.Description("Clip ids"), stringItems),
	mcp.WithDestructiveHintAnnotation(true),
)

var archiveToolDef = mcp.NewTool("clip_archive",
	mcp.WithDescription("Move staged clips to the archive."),
	mcp.WithArray("ids", mcp.Required(), mcp.Description("Clip ids"), stringItems),
)

var restoreToolDef = mcp.NewTool("clip_restore",
	mcp.WithDescription("Move an archived clip back to staging."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
)

var updateToolDef = mcp.NewTool("clip_update",
	mcp.WithDescription("Replace a clip's content. The token estimate is recomputed."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
	mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
)

var reorderToolDef = mcp.NewTool("clip_reorder",
	mcp.WithDescription("Reorder the staging list. ids must name every staged clip exactly once."),
	mcp.WithArray("ids", mcp.Required(), mcp.Description("Staged clip ids in the new order"), stringItems),
)

var exportToolDef = mcp.NewTool("clip_export",
	mcp.WithDescription("Export clips to a Markdown file under ~/.ctxbridge/exports or an allowed path."),
	mcp.WithString("path", mcp.Description("Target .md file; default is a timestamped file in the exports directory")),
	mcp.WithArray("ids", mcp.Description("Clip ids to export, in order"), stringItems),
	mcp.WithString("status", mcp.Description("Export a whole partition: staging or archived"), mcp.Enum("staging", "archived")),
)

var synthesizeToolDef = mcp.NewTool("clip_synthesize",
	mcp.WithDescription("Synthesize staged clips into one draft with a template (join) or the configured "+
		"language model (ai_refine). With confirm=true the result is stored as a new staged clip and the "+
		"sources are archived in the same write; otherwise only the draft is returned."),
	mcp.WithString("strategy", mcp.Description("join (default) or ai_refine"), mcp.Enum("join", "ai_refine")),
	mcp.WithArray("ids", mcp.Description("Staged clip ids in order; omit for all staged clips"), stringItems),
	mcp.WithString("template_id", mcp.Description("Join template id; default is the first template")),
	mcp.WithString("prompt_id", mcp.Description("Preset prompt id for ai_refine")),
	mcp.WithString("instruction", mcp.Description("Custom instruction for ai_refine; overrides prompt_id")),
	mcp.WithBoolean("confirm", mcp.Description("Store the result and archive the sources")),
)
