// CLAUDE:SUMMARY Binds kit Endpoints to MCP tools: argument decoding, mcp transport tagging, JSON text results and tool-level errors.
package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult is what a tool's decode function produces: the typed
// request for the endpoint and an optional hook adding request-scoped
// values to the call context.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder turns raw tool arguments into an endpoint request.
type MCPDecoder func(*mcp.CallToolRequest) (*MCPDecodeResult, error)

// RegisterMCPTool exposes endpoint as tool on srv. Decode and endpoint
// failures are reported as tool errors (IsError results) so the client
// model can read them; the protocol call itself succeeds.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := decode(call)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		ctx = WithTransport(ctx, TransportMCP)
		if in.EnrichCtx != nil {
			ctx = in.EnrichCtx(ctx)
		}
		out, err := endpoint(ctx, in.Request)
		if err != nil {
			return toolError(err), nil
		}
		return toolJSON(out), nil
	})
}

func toolJSON(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Errorf("encode result: %w", err))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}

func toolError(err error) *mcp.CallToolResult {
	res := new(mcp.CallToolResult)
	res.SetError(err)
	return res
}
