package mcphost

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Paul60209/toolbench/internal/tools"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// echoTool returns a builtin tool that echoes its args back as the result.
func echoTool(name string) tools.Tool {
	return tools.Tool{
		Definition: llm.ToolDefinition{Name: name, Description: "echoes args"},
		Handler: func(_ context.Context, args string) (string, error) {
			return args, nil
		},
	}
}

// failTool returns a builtin tool that always fails.
func failTool(name string) tools.Tool {
	return tools.Tool{
		Definition: llm.ToolDefinition{Name: name},
		Handler: func(context.Context, string) (string, error) {
			return "", errors.New("always fails")
		},
	}
}

func TestTransportIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transport Transport
		want      bool
	}{
		{TransportStdio, true},
		{TransportStreamableHTTP, true},
		{Transport("sse"), false},
		{Transport(""), false},
	}
	for _, tt := range tests {
		if got := tt.transport.IsValid(); got != tt.want {
			t.Errorf("Transport(%q).IsValid() = %v, want %v", tt.transport, got, tt.want)
		}
	}
}

func TestRegisterBuiltin(t *testing.T) {
	t.Parallel()

	h := New()
	defer h.Close()

	if err := h.RegisterBuiltin(echoTool("echo")); err != nil {
		t.Fatalf("RegisterBuiltin() error = %v", err)
	}
	if err := h.RegisterBuiltin(echoTool("other")); err != nil {
		t.Fatalf("RegisterBuiltin() error = %v", err)
	}

	defs := h.AvailableTools()
	if len(defs) != 2 {
		t.Fatalf("AvailableTools() returned %d tools, want 2", len(defs))
	}
	// Sorted by name.
	if defs[0].Name != "echo" || defs[1].Name != "other" {
		t.Errorf("AvailableTools() order = %q, %q", defs[0].Name, defs[1].Name)
	}
}

func TestRegisterBuiltin_Invalid(t *testing.T) {
	t.Parallel()

	h := New()
	defer h.Close()

	if err := h.RegisterBuiltin(tools.Tool{Handler: func(context.Context, string) (string, error) { return "", nil }}); err == nil {
		t.Error("RegisterBuiltin() with empty name: error = nil, want error")
	}
	if err := h.RegisterBuiltin(tools.Tool{Definition: llm.ToolDefinition{Name: "x"}}); err == nil {
		t.Error("RegisterBuiltin() with nil handler: error = nil, want error")
	}
}

func TestExecuteTool_Builtin(t *testing.T) {
	t.Parallel()

	h := New()
	defer h.Close()

	if err := h.RegisterBuiltin(echoTool("echo")); err != nil {
		t.Fatalf("RegisterBuiltin() error = %v", err)
	}

	result, err := h.ExecuteTool(context.Background(), "echo", `{"text":"hi"}`)
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if result.IsError {
		t.Error("IsError = true")
	}
	if result.Content != `{"text":"hi"}` {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestExecuteTool_HandlerFailureIsToolResult(t *testing.T) {
	t.Parallel()

	h := New()
	defer h.Close()

	if err := h.RegisterBuiltin(failTool("boom")); err != nil {
		t.Fatalf("RegisterBuiltin() error = %v", err)
	}

	result, err := h.ExecuteTool(context.Background(), "boom", "{}")
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v, want failure folded into the result", err)
	}
	if !result.IsError {
		t.Fatal("IsError = false, want true")
	}
	if !strings.Contains(result.Content, "always fails") {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestExecuteTool_Unknown(t *testing.T) {
	t.Parallel()

	h := New()
	defer h.Close()

	if _, err := h.ExecuteTool(context.Background(), "nope", "{}"); err == nil {
		t.Error("ExecuteTool() error = nil for unknown tool, want error")
	}
}

func TestStats_CountsCallsAndErrors(t *testing.T) {
	t.Parallel()

	h := New()
	defer h.Close()

	if err := h.RegisterBuiltin(echoTool("echo")); err != nil {
		t.Fatalf("RegisterBuiltin() error = %v", err)
	}
	if err := h.RegisterBuiltin(failTool("boom")); err != nil {
		t.Fatalf("RegisterBuiltin() error = %v", err)
	}

	for range 3 {
		if _, err := h.ExecuteTool(context.Background(), "echo", "{}"); err != nil {
			t.Fatalf("ExecuteTool(echo) error = %v", err)
		}
	}
	if _, err := h.ExecuteTool(context.Background(), "boom", "{}"); err != nil {
		t.Fatalf("ExecuteTool(boom) error = %v", err)
	}

	stats := h.Stats()
	if got := stats["echo"]; got.Calls != 3 || got.Errors != 0 {
		t.Errorf("echo stats = %+v, want 3 calls, 0 errors", got)
	}
	if got := stats["boom"]; got.Calls != 1 || got.Errors != 1 {
		t.Errorf("boom stats = %+v, want 1 call, 1 error", got)
	}
}

func TestRegisterServer_Validation(t *testing.T) {
	t.Parallel()

	h := New()
	defer h.Close()

	tests := []struct {
		name string
		cfg  ServerConfig
	}{
		{name: "empty name", cfg: ServerConfig{Transport: TransportStdio, Command: "cat"}},
		{name: "bad transport", cfg: ServerConfig{Name: "x", Transport: "sse"}},
		{name: "stdio without command", cfg: ServerConfig{Name: "x", Transport: TransportStdio}},
		{name: "http without url", cfg: ServerConfig{Name: "x", Transport: TransportStreamableHTTP}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := h.RegisterServer(context.Background(), tt.cfg); err == nil {
				t.Error("RegisterServer() error = nil, want error")
			}
		})
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantExec string
		wantArgs []string
	}{
		{in: "server", wantExec: "server"},
		{in: "server --port 8001", wantExec: "server", wantArgs: []string{"--port", "8001"}},
		{in: "  spaced   out  ", wantExec: "spaced", wantArgs: []string{"out"}},
		{in: "", wantExec: ""},
	}
	for _, tt := range tests {
		gotExec, gotArgs := splitCommand(tt.in)
		if gotExec != tt.wantExec {
			t.Errorf("splitCommand(%q) executable = %q, want %q", tt.in, gotExec, tt.wantExec)
		}
		if len(gotArgs) != len(tt.wantArgs) {
			t.Errorf("splitCommand(%q) args = %v, want %v", tt.in, gotArgs, tt.wantArgs)
			continue
		}
		for i := range gotArgs {
			if gotArgs[i] != tt.wantArgs[i] {
				t.Errorf("splitCommand(%q) args = %v, want %v", tt.in, gotArgs, tt.wantArgs)
				break
			}
		}
	}
}

func TestChildEnv_InheritsParentEnvironment(t *testing.T) {
	t.Setenv("MCPHOST_TEST_INHERITED", "from-parent")

	env := childEnv(map[string]string{"EXTRA_KEY": "extra-value"})

	var gotInherited, gotExtra bool
	for _, kv := range env {
		switch kv {
		case "MCPHOST_TEST_INHERITED=from-parent":
			gotInherited = true
		case "EXTRA_KEY=extra-value":
			gotExtra = true
		}
	}
	if !gotInherited {
		t.Error("childEnv dropped the parent environment")
	}
	if !gotExtra {
		t.Error("childEnv missing the extra variable")
	}
}

func TestChildEnv_NilWithoutExtras(t *testing.T) {
	t.Parallel()

	if env := childEnv(nil); env != nil {
		t.Errorf("childEnv(nil) = %v, want nil (inherit)", env)
	}
}

func TestSchemaToMap(t *testing.T) {
	t.Parallel()

	if m := schemaToMap(nil); m["type"] != "object" {
		t.Errorf("schemaToMap(nil) = %v, want empty object schema", m)
	}

	in := map[string]any{"type": "object", "required": []any{"x"}}
	if m := schemaToMap(in); m["type"] != "object" {
		t.Errorf("schemaToMap(map) = %v", m)
	}

	type schemaLike struct {
		Type string `json:"type"`
	}
	if m := schemaToMap(schemaLike{Type: "object"}); m["type"] != "object" {
		t.Errorf("schemaToMap(struct) = %v", m)
	}
}
