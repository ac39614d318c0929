// Package toolserver exposes built-in [tools.Tool] sets as an MCP server over
// the official Go SDK (github.com/modelcontextprotocol/go-sdk).
//
// A [Server] can run on either transport:
//
//   - [Server.RunStdio] speaks MCP on stdin/stdout, for supervisor-spawned
//     child processes.
//   - [Server.RunHTTP] serves streamable HTTP on /mcp, with /healthz, /readyz
//     and a Prometheus /metrics endpoint on the same listener.
//
// Tool handlers never surface application failures as protocol errors: a
// failing handler produces a CallToolResult with IsError set so the calling
// LLM can read the failure text.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paul60209/toolbench/internal/health"
	"github.com/Paul60209/toolbench/internal/observe"
	"github.com/Paul60209/toolbench/internal/tools"
)

// shutdownTimeout bounds how long an HTTP server drains in-flight requests
// after its context is cancelled.
const shutdownTimeout = 5 * time.Second

// Option configures a [Server].
type Option func(*Server)

// WithMetrics attaches OTel instruments. Tool executions are timed and
// counted; HTTP requests go through [observe.Middleware].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthChecks adds readiness checkers evaluated by /readyz.
func WithHealthChecks(checkers ...health.Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, checkers...)
	}
}

// Server wraps an MCP server around a set of built-in tools.
type Server struct {
	name    string
	version string

	mcp      *mcpsdk.Server
	metrics  *observe.Metrics
	checkers []health.Checker
	names    []string
}

// New creates a Server announcing itself as name/version during the MCP
// handshake.
func New(name, version string, opts ...Option) *Server {
	s := &Server{
		name:    name,
		version: version,
		mcp: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: name, Version: version},
			nil,
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the server's announced name.
func (s *Server) Name() string { return s.name }

// ToolNames returns the names of all registered tools, in registration order.
func (s *Server) ToolNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Register adds the given tools to the MCP server. Registering two tools with
// the same name is an error.
func (s *Server) Register(toolSet ...tools.Tool) error {
	for _, t := range toolSet {
		if t.Definition.Name == "" {
			return fmt.Errorf("toolserver: tool with empty name")
		}
		if t.Handler == nil {
			return fmt.Errorf("toolserver: tool %q has no handler", t.Definition.Name)
		}
		for _, existing := range s.names {
			if existing == t.Definition.Name {
				return fmt.Errorf("toolserver: tool %q registered twice", t.Definition.Name)
			}
		}

		schema, err := schemaFromMap(t.Definition.Parameters)
		if err != nil {
			return fmt.Errorf("toolserver: tool %q has an invalid parameter schema: %w", t.Definition.Name, err)
		}

		s.mcp.AddTool(
			&mcpsdk.Tool{
				Name:        t.Definition.Name,
				Description: t.Definition.Description,
				InputSchema: schema,
			},
			s.wrapHandler(t),
		)
		s.names = append(s.names, t.Definition.Name)
	}
	return nil
}

// wrapHandler adapts a [tools.Tool] handler to the SDK's handler shape,
// adding instrumentation and folding handler errors into IsError results.
func (s *Server) wrapHandler(t tools.Tool) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return s.invoke(ctx, t, argsJSON(req.Params.Arguments)), nil
	}
}

// invoke runs a tool handler with instrumentation. Handler failures become
// IsError results carrying the failure text.
func (s *Server) invoke(ctx context.Context, t tools.Tool, args string) *mcpsdk.CallToolResult {
	name := t.Definition.Name
	start := time.Now()
	out, err := t.Handler(ctx, args)
	s.recordCall(ctx, name, time.Since(start), err)

	if err != nil {
		slog.Warn("tool call failed", "server", s.name, "tool", name, "err", err)
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			IsError: true,
		}
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
	}
}

func (s *Server) recordCall(ctx context.Context, tool string, d time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordToolCall(ctx, tool, status)
	s.metrics.ToolExecutionDuration.Record(ctx, d.Seconds())
}

// argsJSON renders the SDK-provided arguments value as a JSON object string.
// Raw handlers receive arguments as json.RawMessage; a nil value means the
// caller passed no arguments at all.
func argsJSON(v any) string {
	switch a := v.(type) {
	case nil:
		return "{}"
	case json.RawMessage:
		if len(a) == 0 {
			return "{}"
		}
		return string(a)
	case string:
		if a == "" {
			return "{}"
		}
		return a
	default:
		data, err := json.Marshal(a)
		if err != nil {
			return "{}"
		}
		return string(data)
	}
}

// schemaFromMap converts a JSON-Schema-shaped map into the SDK's schema type.
// A nil map yields the empty object schema.
func schemaFromMap(m map[string]any) (*jsonschema.Schema, error) {
	if m == nil {
		m = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// RunStdio serves MCP on stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	slog.Info("mcp server listening on stdio", "server", s.name, "tools", s.names)
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("toolserver: stdio server %q: %w", s.name, err)
	}
	return nil
}

// Handler returns the HTTP handler [Server.RunHTTP] serves: streamable MCP on
// /mcp, health endpoints, and Prometheus metrics on /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var mcpHandler http.Handler = mcpsdk.NewStreamableHTTPHandler(
		func(*http.Request) *mcpsdk.Server { return s.mcp },
		nil,
	)
	if s.metrics != nil {
		mcpHandler = observe.Middleware(s.metrics)(mcpHandler)
	}
	mux.Handle("/mcp", mcpHandler)

	health.New(s.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// RunHTTP serves the handler from [Server.Handler] on addr until ctx is
// cancelled, then drains in-flight requests.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.metrics != nil {
		s.metrics.ActiveToolServers.Add(ctx, 1)
		defer s.metrics.ActiveToolServers.Add(context.WithoutCancel(ctx), -1)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mcp server listening on http", "server", s.name, "addr", addr, "tools", s.names)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("toolserver: http server %q: %w", s.name, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("toolserver: shutdown %q: %w", s.name, err)
	}
	return nil
}
