package apiserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moolen/causeway/internal/evidence"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/tools"
)

// registerMCPHandler exposes the tool-intent registry as MCP tools at
// /v1/mcp. Every tool takes a session_id plus the intent's parameters;
// results land in the session's evidence state like any quick action.
func (s *Server) registerMCPHandler() {
	if s.registry == nil {
		s.logger.Debug("no tool registry configured, skipping /v1/mcp endpoint")
		return
	}

	mcpServer := server.NewMCPServer(
		"Causeway MCP Server",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	for _, schema := range s.registry.Registry() {
		schema := schema
		mcpServer.AddTool(mcpToolFor(schema), s.mcpHandlerFor(schema))
	}

	streamableServer := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath("/v1/mcp"),
		server.WithStateLess(true),
	)
	s.router.Handle("/v1/mcp", streamableServer)
	s.logger.Info("MCP endpoint registered at /v1/mcp")
}

func mcpToolFor(schema tools.IntentSchema) mcp.Tool {
	properties := map[string]any{
		"session_id": map[string]any{
			"type":        "string",
			"description": "Live diagnosis session the evidence is pinned to",
		},
	}
	for _, name := range schema.Required {
		properties[name] = map[string]any{"type": "string"}
	}
	for _, name := range schema.Optional {
		properties[name] = map[string]any{"type": "string"}
	}
	inputSchema := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   append([]string{"session_id"}, schema.Required...),
	}
	raw, _ := json.Marshal(inputSchema)
	return mcp.NewToolWithRawSchema(schema.Name, schema.Description, raw)
}

func (s *Server) mcpHandlerFor(schema tools.IntentSchema) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		sessionID, _ := args["session_id"].(string)
		if sessionID == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		h, err := s.sessions.Get(sessionID)
		if err != nil {
			return mcp.NewToolResultError("no live session with that id"), nil
		}

		params := tools.Params{}
		for key, value := range args {
			if key == "session_id" {
				continue
			}
			params[key] = value
		}

		result := h.Executor().Execute(ctx, schema.Name, params)
		pin := evidence.NewPin(result, models.TriggeredByQuickAction, evidence.RouterContext{
			Namespace: h.Session().Incident.Namespace,
			Service:   h.Session().Incident.Service,
		})
		pin.SourceAgent = "mcp"
		h.Persist(pin)

		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}
