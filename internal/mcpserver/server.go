// Package mcpserver exposes gateway dev tools over the Model Context
// Protocol using stdio transport, grounded on the teacher's mcp.MCPServer
// (§4.14 of the spec).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/anthropic"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/ollama"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/openaichat"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/responses"
	"github.com/jbctechsolutions/ghcp-gateway/internal/config"
	"github.com/jbctechsolutions/ghcp-gateway/internal/modelcatalog"
)

// Server exposes the gateway's translation logic as MCP dev tools, wrapping
// the config and model catalogue the way the teacher's MCPServer wraps the
// classifier and router.
type Server struct {
	cfg    *config.Config
	models modelcatalog.Provider

	adapters map[string]adapter.Adapter
}

// New constructs a Server from the already-initialized config and model
// catalogue.
func New(cfg *config.Config, models modelcatalog.Provider) *Server {
	return &Server{
		cfg:    cfg,
		models: models,
		adapters: map[string]adapter.Adapter{
			"ollama":     ollama.New(),
			"openai":     openaichat.New(),
			"anthropic":  anthropic.New(),
			"responses":  responses.New(),
		},
	}
}

// Start registers all tools with a new MCP server and begins serving
// requests over stdio. It blocks until stdin is closed or an error occurs.
func (s *Server) Start() error {
	srv := server.NewMCPServer(
		"ghcp-gateway",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	srv.AddTool(mcpgo.NewTool("convert",
		mcpgo.WithDescription("Run a protocol payload through Adapter.ConvertRequest and return the upstream JSON"),
		mcpgo.WithString("protocol",
			mcpgo.Required(),
			mcpgo.Description("One of: ollama, openai, anthropic, responses"),
		),
		mcpgo.WithString("payload",
			mcpgo.Required(),
			mcpgo.Description("The inbound protocol JSON payload"),
		),
	), s.handleConvert)

	srv.AddTool(mcpgo.NewTool("models",
		mcpgo.WithDescription("Return the active model and the hard-coded fallback"),
	), s.handleModels)

	srv.AddTool(mcpgo.NewTool("health",
		mcpgo.WithDescription("Return configured protocols and listen port"),
	), s.handleHealth)

	return server.ServeStdio(srv)
}

func (s *Server) handleConvert(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	protocol, err := req.RequireString("protocol")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	payload, err := req.RequireString("payload")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	a, ok := s.adapters[protocol]
	if !ok {
		return mcpgo.NewToolResultError(fmt.Sprintf("unknown protocol: %q", protocol)), nil
	}

	upstream, err := a.ConvertRequest([]byte(payload))
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("convert request: %v", err)), nil
	}

	b, err := upstream.MarshalJSON()
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

func (s *Server) handleModels(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	active, err := s.models.GetCurrentModel()
	if err != nil {
		active = modelcatalog.Fallback
	}

	result := struct {
		Active   modelcatalog.Model `json:"active"`
		Fallback modelcatalog.Model `json:"fallback"`
	}{Active: active, Fallback: modelcatalog.Fallback}

	b, err := json.Marshal(result)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

func (s *Server) handleHealth(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	result := struct {
		Protocols []string `json:"protocols"`
		Port      string   `json:"port"`
	}{
		Protocols: []string{"ollama", "openai", "anthropic", "responses"},
		Port:      s.cfg.ListenPort,
	}

	b, err := json.Marshal(result)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(b)), nil
}
