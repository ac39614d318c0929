package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// REPL drives an [Agent] over a line-based terminal session.
type REPL struct {
	agent *Agent
	in    io.Reader
	out   io.Writer
}

// NewREPL creates a REPL reading user lines from in and writing replies to
// out.
func NewREPL(agent *Agent, in io.Reader, out io.Writer) *REPL {
	return &REPL{agent: agent, in: in, out: out}
}

// Run reads lines until EOF, "/quit", or context cancellation. Blank lines
// are ignored. "/reset" clears the conversation; "/tools" lists the tools the
// agent can call.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Connected. Type a message, or /quit to exit.")

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("chat: read input: %w", err)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			r.agent.Reset()
			fmt.Fprintln(r.out, "Conversation cleared.")
			continue
		case line == "/tools":
			r.printTools()
			continue
		}

		if _, err := r.agent.Send(ctx, line, r.render); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(r.out)
	}
}

// render writes agent events to the terminal as they arrive.
func (r *REPL) render(e Event) {
	switch e.Type {
	case EventText:
		fmt.Fprint(r.out, e.Text)
	case EventToolCall:
		fmt.Fprintf(r.out, "[calling %s %s]\n", e.Tool, e.Args)
	case EventToolResult:
		if e.IsError {
			fmt.Fprintf(r.out, "[%s failed: %s]\n", e.Tool, e.Result)
		}
	}
}

// printTools lists the tools visible to the agent.
func (r *REPL) printTools() {
	if r.agent.host == nil {
		fmt.Fprintln(r.out, "No tools available.")
		return
	}
	defs := r.agent.host.AvailableTools()
	if len(defs) == 0 {
		fmt.Fprintln(r.out, "No tools available.")
		return
	}
	for _, d := range defs {
		fmt.Fprintf(r.out, "%s: %s\n", d.Name, d.Description)
	}
}
