package service

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsettle/kit"
)

// RegisterMCP registers the settle tool on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerWaitStableTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s *Service) registerWaitStableTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domsettle_wait_stable",
		Description: "Open a page, wait until it has settled (network idle, main thread idle, optional paint stability), and return the captured document with its transition trail.",
		InputSchema: inputSchema(map[string]any{
			"url":               map[string]any{"type": "string", "description": "Page to open and observe"},
			"initial_delay_ms":  map[string]any{"type": "integer", "description": "Delay before monitoring begins, letting the action's consequences start"},
			"paint_stability":   map[string]any{"type": "boolean", "description": "Also require consecutive identical rendered frames"},
			"markdown":          map[string]any{"type": "boolean", "description": "Include a markdown rendering of the visible DOM"},
			"pdf":               map[string]any{"type": "boolean", "description": "Include the printed PDF (base64)"},
			"screenshot":        map[string]any{"type": "boolean", "description": "Include a full-page PNG (base64)"},
			"global_timeout_ms": map[string]any{"type": "integer", "description": "Upper bound on the whole observation"},
			"min_wait_ms":       map[string]any{"type": "integer", "description": "Guaranteed minimum observation time"},
		}, []string{"url"}),
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r settleRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.settleEndpoint, decode)
}
