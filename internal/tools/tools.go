// Package tools defines the shared [Tool] type used by all built-in MCP tool
// packages in Toolbench. Each sub-package exports a constructor function that
// returns a slice of [Tool] values ready for registration with a tool server.
package tools

import (
	"context"

	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// Tool represents a built-in tool ready for registration with a tool server.
//
// Each Tool carries its LLM-facing schema ([llm.ToolDefinition]) together
// with the handler function that is invoked when a client calls the tool.
type Tool struct {
	// Definition is the tool's LLM-facing schema including its name,
	// description, and JSON Schema parameter specification.
	Definition llm.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns the
	// result string on success, or a descriptive error. Implementations
	// must be safe for concurrent use and must respect context
	// cancellation.
	Handler func(ctx context.Context, args string) (string, error)
}
