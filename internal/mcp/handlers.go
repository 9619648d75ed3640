package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/lspgate/internal/backend"
	"github.com/hpungsan/lspgate/internal/buffer"
	"github.com/hpungsan/lspgate/internal/errors"
	"github.com/hpungsan/lspgate/internal/gate"
	"github.com/hpungsan/lspgate/internal/session"
	"github.com/hpungsan/lspgate/internal/tool"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	backend backend.Backend
	gate    *gate.Gate
	store   *buffer.Store
	broker  *session.Broker
	logger  *slog.Logger
}

// Deps are the components the tool surface is served from.
type Deps struct {
	Backend backend.Backend
	Gate    *gate.Gate
	Store   *buffer.Store
	Broker  *session.Broker
	Logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		backend: d.Backend,
		gate:    d.Gate,
		store:   d.Store,
		broker:  d.Broker,
		logger:  logger,
	}
}

// RetrieveRequest represents the arguments for retrieve_buffer.
type RetrieveRequest struct {
	BufferID string `json:"bufferId"`
}

// Gated returns the handler for a backend query of the given kind. Required
// arguments are checked before the backend is called.
func (h *Handlers) Gated(kind tool.Kind, required ...string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		for _, name := range required {
			if v, ok := args[name]; !ok || v == nil || v == "" {
				return errorResult(errors.NewInvalidRequest(fmt.Sprintf("%s is required", name))), nil
			}
		}

		raw, err := h.backend.Invoke(ctx, kind, args)
		if err != nil {
			return errorResult(h.backendError(req.Params.Name, err)), nil
		}

		out, err := h.gate.Apply(ctx, raw, kind)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(out.Text), nil
	}
}

func (h *Handlers) backendError(name string, err error) error {
	if stderrors.Is(err, backend.ErrUnavailable) {
		return errors.NewUnavailable(err.Error())
	}
	h.logger.Warn("backend call failed", "tool", name, "error", err)
	return errors.NewBackend(name, err)
}

// HandleRetrieveBuffer handles the retrieve_buffer tool call.
func (h *Handlers) HandleRetrieveBuffer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RetrieveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.BufferID == "" {
		return errorResult(errors.NewInvalidRequest("bufferId is required")), nil
	}

	data, err := h.store.Get(input.BufferID)
	if err != nil {
		return errorResult(err), nil
	}
	return textResult(data), nil
}

// HandleBufferStats handles the get_buffer_stats tool call.
func (h *Handlers) HandleBufferStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.store.Stats())
}

// HandleSessionInfo handles the get_session_info tool call.
func (h *Handlers) HandleSessionInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.broker.Info())
}

// HandleInstructions handles the get_instructions tool call.
func (h *Handlers) HandleInstructions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(Instructions), nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if gErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    gErr.Code,
			"message": gErr.Message,
			"status":  gErr.Status,
		}
		// Wrapping context is kept in the message
		if err != error(gErr) {
			errorObj["message"] = err.Error()
		}
		if gErr.Code != errors.ErrInternal && gErr.Details != nil {
			errorObj["details"] = gErr.Details
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

// textResult delivers already-serialized JSON as the only content. Gated
// results go through here so the caller receives exactly the bytes the gate
// measured: no HTML escaping and no structured duplicate.
func textResult(data []byte) *mcp.CallToolResult {
	return mcp.NewToolResultText(string(data))
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
