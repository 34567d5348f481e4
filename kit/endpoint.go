// CLAUDE:SUMMARY Transport-agnostic Endpoint type, Middleware chaining and a slog logging middleware shared by HTTP and MCP.
// Package kit holds the transport plumbing shared by the HTTP API and the
// MCP tools: a transport-agnostic Endpoint, middleware chaining and
// request-scoped context values.
package kit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares. The first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of an endpoint with its transport, request ID
// and duration.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint done", attrs...)
			}
			return resp, err
		}
	}
}

// Recover turns a panic in the endpoint into an error, logged with its
// stack. The HTTP router has its own recoverer; MCP calls rely on this one.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (resp any, err error) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("kit: endpoint panic", "panic", p, "request_id", GetRequestID(ctx), "stack", string(debug.Stack()))
					resp, err = nil, fmt.Errorf("internal error: %v", p)
				}
			}()
			return next(ctx, req)
		}
	}
}
