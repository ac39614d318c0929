// Package mcphost connects the chat front-end to MCP tool servers.
//
// A [Host] maintains sessions to external MCP servers reached via stdio or
// streamable-HTTP transports using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk), keeps a concurrent-safe registry
// of their tool catalogues, and executes tool calls on behalf of the LLM.
// Built-in [tools.Tool] values can be registered alongside external servers
// and are called in-process.
//
// Typical usage:
//
//	h := mcphost.New()
//	defer h.Close()
//
//	err := h.RegisterServer(ctx, mcphost.ServerConfig{
//	    Name:      "weather",
//	    Transport: mcphost.TransportStreamableHTTP,
//	    URL:       "http://localhost:8001/mcp",
//	})
//
//	defs := h.AvailableTools()
//	result, err := h.ExecuteTool(ctx, "query_weather", `{"city":"Tokyo"}`)
package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Paul60209/toolbench/internal/tools"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one MCP server the host should connect to.
type ServerConfig struct {
	// Name identifies the server inside the host. Must be unique.
	Name string

	// Transport selects how the server is reached.
	Transport Transport

	// Command is the child process command line for stdio servers. It is
	// split on spaces into executable and arguments.
	Command string

	// Env holds additional environment variables for stdio servers.
	Env map[string]string

	// URL is the endpoint address for streamable-HTTP servers.
	URL string
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	// Content is the concatenated text content of the result.
	Content string

	// IsError reports an application-level tool failure. The content then
	// carries the failure text.
	IsError bool

	// DurationMs is the measured wall-clock execution time.
	DurationMs int64
}

// ToolStats holds per-tool execution counters.
type ToolStats struct {
	Calls  int64
	Errors int64
}

// builtinServerName marks registry entries that run in-process.
const builtinServerName = "(builtin)"

// toolEntry is one registered tool.
type toolEntry struct {
	def        llm.ToolDefinition
	serverName string
	calls      int64
	errors     int64

	// builtinFn is non-nil for in-process tools.
	builtinFn func(ctx context.Context, args string) (string, error)
}

// serverConn holds a live session to an external MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Host manages MCP server sessions and the merged tool registry.
//
// The zero value is not usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]*toolEntry // key: tool name
	servers map[string]serverConn // key: server name

	// client is reused across all server connections; the SDK allows one
	// Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// New creates and returns a ready-to-use Host.
func New() *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "toolbench-mcphost", Version: "1.0.0"},
		nil,
	)
	return &Host{
		tools:   make(map[string]*toolEntry),
		servers: make(map[string]serverConn),
		client:  client,
	}
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. If a server with the same Name is already registered, the
// old connection is closed and its tools replaced.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		cmd.Env = childEnv(cfg.Env)
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: failed to connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range h.tools {
			if t.serverName == cfg.Name {
				delete(h.tools, name)
			}
		}
	}

	h.servers[cfg.Name] = serverConn{session: session}

	for _, t := range discovered {
		h.tools[t.Name] = &toolEntry{
			def: llm.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: cfg.Name,
		}
	}
	return nil
}

// RegisterBuiltin registers an in-process tool. A tool with the same name
// replaces the previous registration.
func (h *Host) RegisterBuiltin(tool tools.Tool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("mcp host: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", tool.Definition.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[tool.Definition.Name] = &toolEntry{
		def:        tool.Definition,
		serverName: builtinServerName,
		builtinFn:  tool.Handler,
	}
	return nil
}

// AvailableTools returns the definitions of all registered tools, sorted by
// name.
func (h *Host) AvailableTools() []llm.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Stats returns per-tool call and error counters keyed by tool name.
func (h *Host) Stats() map[string]ToolStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]ToolStats, len(h.tools))
	for name, e := range h.tools {
		out[name] = ToolStats{Calls: e.calls, Errors: e.errors}
	}
	return out
}

// ExecuteTool calls the named tool with a JSON object string of arguments.
//
// A non-nil *ToolResult is returned even when [ToolResult.IsError] is true
// (application-level failure). A Go error is returned only when the tool is
// unknown or the transport fails.
func (h *Host) ExecuteTool(ctx context.Context, name, args string) (*ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcp host: tool %q not found", name)
	}

	start := time.Now()

	var result *ToolResult
	var err error
	if entry.builtinFn != nil {
		result, err = executeBuiltin(ctx, entry, args)
	} else {
		result, err = h.executeRemote(ctx, entry, args)
	}

	h.recordCall(name, err != nil || (result != nil && result.IsError))
	if err != nil {
		return nil, err
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// executeBuiltin calls the in-process handler, folding handler errors into an
// IsError result.
func executeBuiltin(ctx context.Context, entry *toolEntry, args string) (*ToolResult, error) {
	output, err := entry.builtinFn(ctx, args)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: output}, nil
}

// executeRemote routes the call to the owning server session.
func (h *Host) executeRemote(ctx context.Context, entry *toolEntry, args string) (*ToolResult, error) {
	h.mu.RLock()
	conn, ok := h.servers[entry.serverName]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcp host: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("mcp host: invalid args JSON for tool %q: %w", entry.def.Name, err)
		}
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q failed: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return &ToolResult{Content: sb.String(), IsError: callResult.IsError}, nil
}

// recordCall updates the per-tool counters.
func (h *Host) recordCall(name string, isError bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.tools[name]
	if !ok {
		return
	}
	entry.calls++
	if isError {
		entry.errors++
	}
}

// Close closes all server sessions. The host must not be used afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp host: close server %q: %w", name, err))
		}
		delete(h.servers, name)
	}
	clear(h.tools)
	return errors.Join(errs...)
}

// splitCommand splits a command line on spaces into executable and arguments.
// Quoting is not supported; configure complex invocations via a wrapper
// script.
func splitCommand(command string) (executable string, args []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// childEnv builds a stdio subprocess environment: the host's own environment
// with extra K=V pairs appended. A nil return keeps exec's default inherit
// behaviour when there is nothing to add.
func childEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := append([]string{}, os.Environ()...)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// schemaToMap converts any schema value to a map[string]any via a JSON
// round-trip. Unknown or nil schemas become the empty object schema.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
