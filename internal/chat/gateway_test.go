package chat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Paul60209/toolbench/internal/mcphost"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// dialGateway starts the gateway on a test server and opens a client
// connection to it.
func dialGateway(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

// readFrames reads wire events until a terminal "done" or "error" frame.
func readFrames(t *testing.T, conn *websocket.Conn) []wireEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frames []wireEvent
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode frame %q: %v", data, err)
		}
		frames = append(frames, ev)
		if ev.Type == "done" || ev.Type == "error" {
			return frames
		}
	}
}

func sendMessage(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(wireRequest{Message: message})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func TestGateway_StreamsReply(t *testing.T) {
	t.Parallel()

	g := NewGateway(func() *Agent {
		provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("Hello", " from", " the agent")}}
		return NewAgent(provider, nil)
	})
	conn := dialGateway(t, g)

	sendMessage(t, conn, "hi")
	frames := readFrames(t, conn)

	var text strings.Builder
	for _, f := range frames {
		if f.Type == "text" {
			text.WriteString(f.Text)
		}
	}
	if text.String() != "Hello from the agent" {
		t.Errorf("streamed text = %q", text.String())
	}
	if last := frames[len(frames)-1]; last.Type != "done" {
		t.Errorf("last frame = %+v, want done", last)
	}
}

func TestGateway_ToolEventsAreForwarded(t *testing.T) {
	t.Parallel()

	host := &fakeHost{
		defs:    []llm.ToolDefinition{{Name: "query_weather"}},
		results: map[string]*mcphost.ToolResult{"query_weather": {Content: "sunny"}},
	}
	g := NewGateway(func() *Agent {
		provider := &scriptedProvider{script: [][]llm.Chunk{
			toolChunk("call-1", "query_weather", `{"city":"Oslo"}`),
			textChunks("Sunny in Oslo."),
		}}
		return NewAgent(provider, host)
	})
	conn := dialGateway(t, g)

	sendMessage(t, conn, "weather in oslo")
	frames := readFrames(t, conn)

	var sawCall, sawResult bool
	for _, f := range frames {
		if f.Type == "tool_call" && f.Tool == "query_weather" {
			sawCall = true
		}
		if f.Type == "tool_result" && f.Result == "sunny" {
			sawResult = true
		}
	}
	if !sawCall || !sawResult {
		t.Errorf("frames = %+v, want tool_call and tool_result", frames)
	}
}

func TestGateway_AgentErrorFrame(t *testing.T) {
	t.Parallel()

	g := NewGateway(func() *Agent {
		provider := &scriptedProvider{startErr: context.DeadlineExceeded}
		return NewAgent(provider, nil)
	})
	conn := dialGateway(t, g)

	sendMessage(t, conn, "hi")
	frames := readFrames(t, conn)

	last := frames[len(frames)-1]
	if last.Type != "error" || last.Error == "" {
		t.Errorf("last frame = %+v, want error frame", last)
	}
}

func TestGateway_SessionsAreIndependent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var agents []*Agent
	g := NewGateway(func() *Agent {
		provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("ok")}}
		a := NewAgent(provider, nil)
		mu.Lock()
		agents = append(agents, a)
		mu.Unlock()
		return a
	})

	first := dialGateway(t, g)
	sendMessage(t, first, "hello")
	readFrames(t, first)

	second := dialGateway(t, g)
	sendMessage(t, second, "hello")
	readFrames(t, second)

	if len(agents) != 2 {
		t.Fatalf("agent constructor called %d times, want 2", len(agents))
	}
	if len(agents[1].History()) != len(agents[0].History()) {
		t.Errorf("sessions share state: %d vs %d messages", len(agents[0].History()), len(agents[1].History()))
	}
}
