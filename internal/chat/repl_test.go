package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

func TestREPL_ConversationAndQuit(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("Hi there!")}}
	agent := NewAgent(provider, nil)

	in := strings.NewReader("hello\n/quit\n")
	var out strings.Builder
	repl := NewREPL(agent, in, &out)

	if err := repl.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Hi there!") {
		t.Errorf("output = %q, want the assistant reply", out.String())
	}
}

func TestREPL_SkipsBlankLinesAndStopsAtEOF(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("reply")}}
	agent := NewAgent(provider, nil)

	in := strings.NewReader("\n   \n")
	var out strings.Builder
	if err := NewREPL(agent, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(provider.requests) != 0 {
		t.Errorf("provider called %d times for blank input, want 0", len(provider.requests))
	}
}

func TestREPL_ToolsCommand(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("x")}}
	host := &fakeHost{defs: []llm.ToolDefinition{
		{Name: "query_weather", Description: "current conditions for a city"},
	}}
	agent := NewAgent(provider, host)

	in := strings.NewReader("/tools\n/quit\n")
	var out strings.Builder
	if err := NewREPL(agent, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "query_weather") {
		t.Errorf("output = %q, want the tool listing", out.String())
	}
}

func TestREPL_ResetCommand(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{script: [][]llm.Chunk{textChunks("ok")}}
	agent := NewAgent(provider, nil)

	in := strings.NewReader("hello\n/reset\n/quit\n")
	var out strings.Builder
	if err := NewREPL(agent, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(agent.History()); got != 0 {
		t.Errorf("history length after /reset = %d, want 0", got)
	}
}

func TestREPL_AgentErrorIsPrinted(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{startErr: context.DeadlineExceeded}
	agent := NewAgent(provider, nil)

	in := strings.NewReader("hello\n/quit\n")
	var out strings.Builder
	if err := NewREPL(agent, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "error:") {
		t.Errorf("output = %q, want an error line", out.String())
	}
}
