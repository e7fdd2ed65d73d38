package compick

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the compick tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerResolveTool(srv)
	s.registerProbeTool(srv)
	s.registerHistoryTool(srv)
	s.registerClearHistoryTool(srv)
}

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

// addTool decodes arguments into a fresh Req, runs endpoint and returns its
// result as JSON text. Failures become tool errors, never protocol errors.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(ctx context.Context, req *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req Req
		if len(call.Params.Arguments) > 0 {
			if err := json.Unmarshal(call.Params.Arguments, &req); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		resp, err := endpoint(ctx, &req)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

// --- compick_resolve ---

type resolveRequest struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Depth    *int   `json:"depth,omitempty"`
}

// depthOrConfigured maps an omitted depth to ConfiguredDepth.
func depthOrConfigured(d *int) int {
	if d == nil {
		return ConfiguredDepth
	}
	return *d
}

func (s *Service) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "compick_resolve",
		Description: "Report the chain of UI framework components (React, Vue, Angular, Svelte) that rendered the element matching a CSS selector, root first.",
		InputSchema: inputSchema(map[string]any{
			"url":      map[string]any{"type": "string", "description": "Page to open"},
			"selector": map[string]any{"type": "string", "description": "CSS selector of the target element"},
			"depth":    map[string]any{"type": "integer", "description": "Keep only the N components nearest the element (0 = all; omitted = configured session.depth)"},
		}, []string{"url", "selector"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *resolveRequest) (any, error) {
		if req.URL == "" || req.Selector == "" {
			return nil, fmt.Errorf("url and selector are required")
		}
		return s.Resolve(ctx, req.URL, req.Selector, depthOrConfigured(req.Depth))
	})
}

// --- compick_probe ---

type probeRequest struct {
	URL string `json:"url"`
}

func (s *Service) registerProbeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "compick_probe",
		Description: "Detect whether a supported UI framework (React, Vue, Angular, Svelte) runs on a page.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page to open"},
		}, []string{"url"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *probeRequest) (any, error) {
		if req.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		return s.Probe(ctx, req.URL)
	})
}

// --- compick_history ---

type historyRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "compick_history",
		Description: "List recent successful picks, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max entries (default all)"},
		}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, req *historyRequest) (any, error) {
		return s.History(ctx, req.Limit)
	})
}

// --- compick_clear_history ---

func (s *Service) registerClearHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "compick_clear_history",
		Description: "Forget every remembered pick.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ *struct{}) (any, error) {
		n, err := s.ClearHistory(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"cleared": n}, nil
	})
}
