package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Paul60209/toolbench/internal/mcphost"
	"github.com/Paul60209/toolbench/internal/observe"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// scriptedProvider plays back one chunk sequence per StreamCompletion call
// and records every request it saw.
type scriptedProvider struct {
	mu       sync.Mutex
	script   [][]llm.Chunk
	call     int
	requests []llm.CompletionRequest
	startErr error
}

var _ llm.Provider = (*scriptedProvider)(nil)

func (p *scriptedProvider) StreamCompletion(_ context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return nil, p.startErr
	}
	p.requests = append(p.requests, req)

	var chunks []llm.Chunk
	if p.call < len(p.script) {
		chunks = p.script[p.call]
	} else {
		chunks = p.script[len(p.script)-1]
	}
	p.call++

	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ch, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := &llm.CompletionResponse{}
	for c := range ch {
		resp.Content += c.Text
		resp.ToolCalls = append(resp.ToolCalls, c.ToolCalls...)
	}
	return resp, nil
}

func (p *scriptedProvider) CountTokens(messages []llm.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

func (p *scriptedProvider) Capabilities() llm.ModelCapabilities {
	return llm.ModelCapabilities{
		ContextWindow:       128000,
		SupportsToolCalling: true,
		SupportsStreaming:   true,
	}
}

// fakeHost implements ToolHost with a canned result per tool name.
type fakeHost struct {
	mu      sync.Mutex
	defs    []llm.ToolDefinition
	results map[string]*mcphost.ToolResult
	errs    map[string]error
	calls   []llm.ToolCall
}

func (h *fakeHost) AvailableTools() []llm.ToolDefinition { return h.defs }

func (h *fakeHost) ExecuteTool(_ context.Context, name, args string) (*mcphost.ToolResult, error) {
	h.mu.Lock()
	h.calls = append(h.calls, llm.ToolCall{Name: name, Arguments: args})
	h.mu.Unlock()
	if err := h.errs[name]; err != nil {
		return nil, err
	}
	if res, ok := h.results[name]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("tool %q not found", name)
}

// collectEvents returns an EventFunc appending to the given slice.
func collectEvents(events *[]Event) EventFunc {
	return func(e Event) {
		*events = append(*events, e)
	}
}

func textChunks(parts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, llm.Chunk{Text: p})
	}
	return append(chunks, llm.Chunk{FinishReason: "stop"})
}

func toolChunk(id, name, args string) []llm.Chunk {
	return []llm.Chunk{
		{ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}}, FinishReason: "tool_calls"},
	}
}

func TestSend_PlainReply(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("Hello", ", world")}}
	agent := NewAgent(provider, nil)

	var events []Event
	reply, err := agent.Send(context.Background(), "hi", collectEvents(&events))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply != "Hello, world" {
		t.Errorf("reply = %q", reply)
	}

	if len(events) != 2 || events[0].Text != "Hello" || events[1].Text != ", world" {
		t.Errorf("events = %+v, want two text chunks", events)
	}

	history := agent.History()
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("history = %+v", history)
	}
	if history[1].Content != "Hello, world" {
		t.Errorf("assistant message = %q", history[1].Content)
	}
}

func TestSend_SystemPromptAndTemperature(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("ok")}}
	agent := NewAgent(provider, nil, WithSystemPrompt("be terse"), WithTemperature(0.3))

	if _, err := agent.Send(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	req := provider.requests[0]
	if req.SystemPrompt != "be terse" {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if req.Temperature != 0.3 {
		t.Errorf("Temperature = %v", req.Temperature)
	}
}

func TestSend_ToolRound(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{
		toolChunk("call-1", "query_weather", `{"city":"Tokyo"}`),
		textChunks("It is sunny in Tokyo."),
	}}
	host := &fakeHost{
		defs:    []llm.ToolDefinition{{Name: "query_weather"}},
		results: map[string]*mcphost.ToolResult{"query_weather": {Content: "Tokyo: sunny, 25°C"}},
	}
	agent := NewAgent(provider, host)

	var events []Event
	reply, err := agent.Send(context.Background(), "weather in tokyo?", collectEvents(&events))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply != "It is sunny in Tokyo." {
		t.Errorf("reply = %q", reply)
	}

	if len(host.calls) != 1 || host.calls[0].Arguments != `{"city":"Tokyo"}` {
		t.Errorf("host calls = %+v", host.calls)
	}

	// Second request must include the assistant tool request and the tool
	// result message.
	second := provider.requests[1]
	var sawToolMsg bool
	for _, m := range second.Messages {
		if m.Role == "tool" && m.ToolCallID == "call-1" && m.Content == "Tokyo: sunny, 25°C" {
			sawToolMsg = true
		}
	}
	if !sawToolMsg {
		t.Errorf("second request messages = %+v, want tool result message", second.Messages)
	}

	// Events: tool_call, tool_result, then the text.
	if events[0].Type != EventToolCall || events[0].Tool != "query_weather" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Type != EventToolResult || events[1].IsError {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestSend_ToolFailureFeedsBackAsText(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{
		toolChunk("call-1", "broken", `{}`),
		textChunks("Sorry, that tool is down."),
	}}
	host := &fakeHost{
		defs: []llm.ToolDefinition{{Name: "broken"}},
		errs: map[string]error{"broken": errors.New("connection refused")},
	}
	agent := NewAgent(provider, host)

	var events []Event
	reply, err := agent.Send(context.Background(), "try the tool", collectEvents(&events))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply != "Sorry, that tool is down." {
		t.Errorf("reply = %q", reply)
	}

	second := provider.requests[1]
	var toolMsg llm.Message
	for _, m := range second.Messages {
		if m.Role == "tool" {
			toolMsg = m
		}
	}
	if !strings.Contains(toolMsg.Content, "connection refused") {
		t.Errorf("tool message = %+v, want the failure text", toolMsg)
	}
	if events[1].Type != EventToolResult || !events[1].IsError {
		t.Errorf("events[1] = %+v, want IsError tool result", events[1])
	}
}

func TestSend_RoundLimit(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{
		toolChunk("call-1", "echo", `{}`),
	}}
	host := &fakeHost{
		defs:    []llm.ToolDefinition{{Name: "echo"}},
		results: map[string]*mcphost.ToolResult{"echo": {Content: "again"}},
	}
	agent := NewAgent(provider, host, WithMaxToolRounds(2))

	_, err := agent.Send(context.Background(), "loop forever", nil)
	if !errors.Is(err, ErrToolRoundLimit) {
		t.Fatalf("Send() error = %v, want ErrToolRoundLimit", err)
	}
	if len(host.calls) != 3 {
		t.Errorf("tool executed %d times, want 3 (initial + 2 rounds)", len(host.calls))
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	t.Parallel()

	agent := NewAgent(&scriptedProvider{script: [][]llm.Chunk{textChunks("x")}}, nil)
	if _, err := agent.Send(context.Background(), "   ", nil); err == nil {
		t.Error("Send() error = nil for blank message, want error")
	}
}

func TestSend_StartError(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{startErr: errors.New("401 unauthorized")}
	agent := NewAgent(provider, nil)

	if _, err := agent.Send(context.Background(), "hi", nil); err == nil {
		t.Error("Send() error = nil, want provider error")
	}
}

func TestSend_RecordsCompletionMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("hello")}}
	agent := NewAgent(provider, nil, WithMetrics(metrics, "openai"))
	if _, err := agent.Send(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	failing := &scriptedProvider{startErr: errors.New("401 unauthorized")}
	failingAgent := NewAgent(failing, nil, WithMetrics(metrics, "openai"))
	if _, err := failingAgent.Send(context.Background(), "hi", nil); err == nil {
		t.Fatal("Send() error = nil, want provider error")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := counterSum(rm, "toolbench.provider.requests"); got != 2 {
		t.Errorf("provider.requests total = %d, want 2", got)
	}
	if got := counterSum(rm, "toolbench.provider.errors"); got != 1 {
		t.Errorf("provider.errors total = %d, want 1", got)
	}
	if got := histogramPoints(rm, "toolbench.llm.duration"); got != 2 {
		t.Errorf("llm.duration data point count = %d, want 2", got)
	}
}

// counterSum adds up all data points of the named Int64 counter.
func counterSum(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// histogramPoints adds up the recorded-value counts of the named histogram.
func histogramPoints(rm metricdata.ResourceMetrics, name string) uint64 {
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok {
				for _, dp := range h.DataPoints {
					count += dp.Count
				}
			}
		}
	}
	return count
}

func TestReset(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("hi")}}
	agent := NewAgent(provider, nil)

	if _, err := agent.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(agent.History()) == 0 {
		t.Fatal("history empty after Send")
	}
	agent.Reset()
	if len(agent.History()) != 0 {
		t.Error("history not cleared by Reset")
	}
}
