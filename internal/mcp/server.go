package mcp

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/ctxbridge/internal/capture"
	"github.com/hpungsan/ctxbridge/internal/config"
	"github.com/hpungsan/ctxbridge/internal/ops"
	"github.com/hpungsan/ctxbridge/internal/settings"
	"github.com/hpungsan/ctxbridge/internal/synth"
)

// Type names accepted in disabled_types.
const (
	TypeClip      = "clip"
	TypeSynthesis = "synthesis"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{TypeClip, TypeSynthesis}

// toolEntry pairs a tool definition with its type and a handler factory.
type toolEntry struct {
	typ     string
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"clip_capture": {
		typ:     TypeClip,
		def:     captureToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapture },
	},
	"clip_list": {
		typ:     TypeClip,
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"clip_get": {
		typ:     TypeClip,
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"clip_delete": {
		typ:     TypeClip,
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"clip_bulk_delete": {
		typ:     TypeClip,
		def:     bulkDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBulkDelete },
	},
	"clip_archive": {
		typ:     TypeClip,
		def:     archiveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleArchive },
	},
	"clip_restore": {
		typ:     TypeClip,
		def:     restoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRestore },
	},
	"clip_update": {
		typ:     TypeClip,
		def:     updateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdate },
	},
	"clip_reorder": {
		typ:     TypeClip,
		def:     reorderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReorder },
	},
	"clip_export": {
		typ:     TypeClip,
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"clip_synthesize": {
		typ:     TypeSynthesis,
		def:     synthesizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSynthesize },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool returns the type a tool belongs to, or "" for unknown tools.
func GetTypeForTool(toolName string) string {
	return toolRegistry[toolName].typ
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name, entry := range toolRegistry {
		if typeSet[entry.typ] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// Deps are the services the tools call into.
type Deps struct {
	Repo     *ops.Repository
	Producer *capture.Producer
	Settings *settings.Settings
	Engine   *synth.Engine
	Logger   *slog.Logger
}

// NewServer creates a new MCP server with the clip tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(deps Deps, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"ctxbridge",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps, cfg)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, cfg *config.Config, version string) error {
	s := NewServer(deps, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
