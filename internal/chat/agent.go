// Package chat implements the conversational front-end: an agent loop that
// lets an LLM call MCP tools, a line-based REPL, and a websocket gateway.
//
// The agent keeps per-conversation history and runs bounded tool-calling
// rounds: the model's streamed reply may request tool calls, which are
// executed through the [ToolHost] and fed back as "tool" role messages until
// the model answers in plain text or the round limit is hit.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Paul60209/toolbench/internal/mcphost"
	"github.com/Paul60209/toolbench/internal/observe"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help " +
	"answer the user's question: look up weather, query the sales database, or " +
	"translate PowerPoint files. Answer in the user's language."

// defaultMaxToolRounds bounds how many times a single user turn may bounce
// between the model and the tools.
const defaultMaxToolRounds = 5

// ErrToolRoundLimit is returned when the model keeps requesting tools past
// the configured round limit.
var ErrToolRoundLimit = errors.New("chat: tool round limit exceeded")

// ToolHost is the part of the MCP host the agent needs.
type ToolHost interface {
	// AvailableTools returns the definitions of all registered tools.
	AvailableTools() []llm.ToolDefinition

	// ExecuteTool calls the named tool with a JSON object string of
	// arguments.
	ExecuteTool(ctx context.Context, name, args string) (*mcphost.ToolResult, error)
}

// EventType discriminates the events emitted during one agent turn.
type EventType string

const (
	// EventText is an incremental chunk of assistant text.
	EventText EventType = "text"

	// EventToolCall announces that a tool is about to be executed.
	EventToolCall EventType = "tool_call"

	// EventToolResult carries the outcome of a tool execution.
	EventToolResult EventType = "tool_result"
)

// Event is one observable step of an agent turn. Consumers (REPL, websocket
// gateway) render events as they arrive.
type Event struct {
	Type EventType

	// Text is the chunk content for [EventText] events.
	Text string

	// Tool and Args identify the call for tool events. Result holds the
	// tool output for [EventToolResult]; IsError marks a failed execution.
	Tool    string
	Args    string
	Result  string
	IsError bool
}

// EventFunc receives events during [Agent.Send]. Must not block for long;
// it is called from the agent's streaming loop.
type EventFunc func(Event)

// Option configures an [Agent].
type Option func(*Agent)

// WithSystemPrompt overrides [DefaultSystemPrompt].
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float64) Option {
	return func(a *Agent) {
		a.temperature = t
	}
}

// WithMaxToolRounds overrides the per-turn tool round limit.
func WithMaxToolRounds(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxRounds = n
		}
	}
}

// WithMetrics attaches OTel instruments; every completion records its latency
// and outcome under the given provider name.
func WithMetrics(m *observe.Metrics, providerName string) Option {
	return func(a *Agent) {
		a.metrics = m
		a.providerName = providerName
	}
}

// Agent is one conversation: an LLM provider, an optional tool host, and the
// message history. Concurrent Send calls are serialised.
type Agent struct {
	provider llm.Provider
	host     ToolHost

	systemPrompt string
	temperature  float64
	maxRounds    int

	metrics      *observe.Metrics
	providerName string

	mu       sync.Mutex
	messages []llm.Message
}

// NewAgent creates an Agent. host may be nil for a conversation without
// tools.
func NewAgent(provider llm.Provider, host ToolHost, opts ...Option) *Agent {
	a := &Agent{
		provider:     provider,
		host:         host,
		systemPrompt: DefaultSystemPrompt,
		maxRounds:    defaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// History returns a copy of the conversation history.
func (a *Agent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Reset clears the conversation history.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
}

// Send processes one user turn and returns the assistant's final text reply.
// onEvent, when non-nil, receives text chunks and tool activity as they
// happen.
func (a *Agent) Send(ctx context.Context, userText string, onEvent EventFunc) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", fmt.Errorf("chat: message must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	emit := func(e Event) {
		if onEvent != nil {
			onEvent(e)
		}
	}

	var tools []llm.ToolDefinition
	if a.host != nil && a.provider.Capabilities().SupportsToolCalling {
		tools = a.host.AvailableTools()
	}

	history := append(a.messages, llm.Message{Role: "user", Content: userText})

	for round := 0; round <= a.maxRounds; round++ {
		text, calls, err := a.streamOnce(ctx, history, tools, emit)
		if err != nil {
			return "", err
		}

		if len(calls) == 0 {
			history = append(history, llm.Message{Role: "assistant", Content: text})
			a.messages = history
			return text, nil
		}

		history = append(history, llm.Message{
			Role:      "assistant",
			Content:   text,
			ToolCalls: calls,
		})
		for _, call := range calls {
			history = append(history, a.runTool(ctx, call, emit))
		}
	}

	a.messages = history
	return "", ErrToolRoundLimit
}

// streamOnce performs a single streamed completion, forwarding text chunks
// and accumulating any tool calls.
func (a *Agent) streamOnce(ctx context.Context, history []llm.Message, tools []llm.ToolDefinition, emit EventFunc) (string, []llm.ToolCall, error) {
	start := time.Now()
	ch, err := a.provider.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     history,
		Tools:        tools,
		Temperature:  a.temperature,
		SystemPrompt: a.systemPrompt,
	})
	if err != nil {
		a.recordCompletion(ctx, start, "error")
		return "", nil, fmt.Errorf("chat: completion failed: %w", err)
	}

	var text strings.Builder
	var calls []llm.ToolCall
	for chunk := range ch {
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emit(Event{Type: EventText, Text: chunk.Text})
		}
		calls = append(calls, chunk.ToolCalls...)
		if chunk.FinishReason == "error" {
			a.recordCompletion(ctx, start, "error")
			return "", nil, fmt.Errorf("chat: stream aborted: %s", chunk.Text)
		}
	}
	if err := ctx.Err(); err != nil {
		a.recordCompletion(ctx, start, "error")
		return "", nil, fmt.Errorf("chat: %w", err)
	}
	a.recordCompletion(ctx, start, "ok")
	return text.String(), calls, nil
}

// recordCompletion records one streamed completion's latency and outcome.
func (a *Agent) recordCompletion(ctx context.Context, start time.Time, status string) {
	if a.metrics == nil {
		return
	}
	a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			observe.Attr("provider", a.providerName),
			observe.Attr("kind", "chat"),
			observe.Attr("status", status),
		))
	a.metrics.RecordProviderRequest(ctx, a.providerName, "chat", status)
	if status != "ok" {
		a.metrics.RecordProviderError(ctx, a.providerName, "chat")
	}
}

// runTool executes one requested tool call and converts the outcome into a
// "tool" role message. Execution failures become error text the model can
// react to instead of aborting the turn.
func (a *Agent) runTool(ctx context.Context, call llm.ToolCall, emit EventFunc) llm.Message {
	emit(Event{Type: EventToolCall, Tool: call.Name, Args: call.Arguments})

	var content string
	var isErr bool
	result, err := a.host.ExecuteTool(ctx, call.Name, call.Arguments)
	switch {
	case err != nil:
		content = "tool call failed: " + err.Error()
		isErr = true
	case result.IsError:
		content = result.Content
		isErr = true
	default:
		content = result.Content
	}

	emit(Event{Type: EventToolResult, Tool: call.Name, Result: content, IsError: isErr})
	return llm.Message{
		Role:       "tool",
		Content:    content,
		Name:       call.Name,
		ToolCallID: call.ID,
	}
}
