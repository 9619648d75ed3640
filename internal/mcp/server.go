package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/lspgate/internal/config"
	"github.com/hpungsan/lspgate/internal/session"
	"github.com/hpungsan/lspgate/internal/tool"
)

// Name is the MCP server name reported to clients.
const Name = "lspgate"

// SessionHeader carries the session id on streamable HTTP requests.
const SessionHeader = "Mcp-Session-Id"

// Instructions is the usage guide served by get_instructions and /instructions.
//
//go:embed instructions.md
var Instructions string

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// gated builds a registry entry for a backend query.
func gated(def mcp.Tool, kind tool.Kind, required ...string) toolEntry {
	return toolEntry{
		def:     def,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.Gated(kind, required...) },
	}
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"get_hover":            gated(hoverToolDef, tool.Hover, "uri"),
	"get_definition":       gated(definitionToolDef, tool.Definition, "uri"),
	"get_references":       gated(referencesToolDef, tool.References, "uri"),
	"find_implementations": gated(implementationsToolDef, tool.Implementations, "uri"),
	"get_completions":      gated(completionsToolDef, tool.Completions, "uri"),
	"get_document_symbols": gated(documentSymbolsToolDef, tool.DocumentSymbols, "uri"),
	"search_text":          gated(searchTextToolDef, tool.TextSearch, "query"),
	"get_call_hierarchy":   gated(callHierarchyToolDef, tool.CallHierarchy, "uri"),
	"rename_symbol":        gated(renameToolDef, tool.Rename, "uri", "newName"),
	"retrieve_buffer": {
		def:     retrieveBufferToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRetrieveBuffer },
	},
	"get_buffer_stats": {
		def:     bufferStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBufferStats },
	},
	"get_session_info": {
		def:     sessionInfoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionInfo },
	},
	"get_instructions": {
		def:     instructionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInstructions },
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

// NewServer creates a new MCP server with the gated tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(d Deps, cfg *config.Config, version string) *server.MCPServer {
	h := NewHandlers(d)

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, res *mcp.InitializeResult) {
		s, created := d.Broker.Initialize()
		h.logger.Info("client initialized",
			"client", req.Params.ClientInfo.Name,
			"session_id", s.ID,
			"created", created,
		)
	})

	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(Instructions),
		server.WithHooks(hooks),
		server.WithToolHandlerMiddleware(sessionMiddleware(d.Broker, h.logger)),
		server.WithRecovery(),
	)

	disabled := make(map[string]bool)
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

// ServeStdio runs s over stdin/stdout until stdin closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// NewStreamableHTTP returns the streamable HTTP transport for s, mounted at
// path. Every client shares the broker's singleton session id.
func NewStreamableHTTP(s *server.MCPServer, broker *session.Broker, path string, logger *slog.Logger) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s,
		server.WithEndpointPath(path),
		server.WithSessionIdManager(NewSessionIDManager(broker, logger)),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return WithClaimedSession(ctx, r.Header.Get(SessionHeader))
		}),
	)
}

type claimedKey struct{}

// WithClaimedSession returns a context carrying the session id a caller
// presented.
func WithClaimedSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, claimedKey{}, id)
}

// ClaimedSession returns the session id stored by WithClaimedSession.
func ClaimedSession(ctx context.Context) string {
	id, _ := ctx.Value(claimedKey{}).(string)
	return id
}

// sessionMiddleware resolves the caller's claimed session before every tool
// call. Mismatched ids are logged and served like the live session.
func sessionMiddleware(broker *session.Broker, logger *slog.Logger) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			r := broker.Resolve(ClaimedSession(ctx))
			if r.Claimed != "" && !r.Matched {
				logger.Warn("session id mismatch",
					"tool", req.Params.Name,
					"claimed", r.Claimed,
					"session_id", r.SessionID,
				)
			}
			return next(session.WithResolution(ctx, r), req)
		}
	}
}
