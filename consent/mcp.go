// CLAUDE:SUMMARY Registers the bannerclick MCP tools: visit, analyze_html, get_visit.
package consent

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/bannerclick/idgen"
	"github.com/hazyhaar/bannerclick/kit"
)

var mcpRequestID = idgen.Prefixed("mcp_", idgen.NanoID(12))

// RegisterMCP registers the tools whose backing is configured: visit needs
// a Visitor, analyze_html an Engine and get_visit a Store.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	if s.Visitor != nil {
		s.registerVisitTool(srv)
	}
	if s.Engine != nil {
		s.registerAnalyzeTool(srv)
	}
	if s.Store != nil {
		s.registerGetVisitTool(srv)
	}
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// decodeAs unmarshals the tool arguments into a fresh T and tags the call
// with a request ID.
func decodeAs[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	r := new(T)
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{
		Request: r,
		EnrichCtx: func(ctx context.Context) context.Context {
			return kit.WithRequestID(ctx, mcpRequestID())
		},
	}, nil
}

func (s *Service) registerVisitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "bannerclick_visit",
		Description: "Visit a domain in a browser, detect its cookie consent banners, click the configured choice and return the recorded visit, banners and buttons.",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Domain to visit (e.g. example.com). https:// is tried first, then http://."},
		}, []string{"domain"}),
	}
	kit.RegisterMCPTool(srv, tool, s.visitEndpoint(), decodeAs[visitRequest])
}

func (s *Service) registerAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "bannerclick_analyze_html",
		Description: "Detect cookie consent banners in saved page HTML without a browser. No button is clicked.",
		InputSchema: inputSchema(map[string]any{
			"html": map[string]any{"type": "string", "description": "Full page markup"},
			"name": map[string]any{"type": "string", "description": "Label recorded as the visit domain (default inline.html)"},
		}, []string{"html"}),
	}
	kit.RegisterMCPTool(srv, tool, s.analyzeEndpoint(), decodeAs[analyzeRequest])
}

func (s *Service) registerGetVisitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "bannerclick_get_visit",
		Description: "Fetch a stored visit with its banners, buttons and interaction outcomes.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Visit ID"},
		}, []string{"id"}),
	}
	kit.RegisterMCPTool(srv, tool, s.getVisitEndpoint(), decodeAs[getVisitRequest])
}
