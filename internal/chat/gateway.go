package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/Paul60209/toolbench/internal/observe"
)

// wireEvent is the JSON frame streamed to websocket clients.
type wireEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Args    string `json:"args,omitempty"`
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
}

// wireRequest is the JSON frame websocket clients send.
type wireRequest struct {
	Message string `json:"message"`
}

// GatewayOption configures a [Gateway].
type GatewayOption func(*Gateway)

// WithGatewayMetrics attaches OTel instruments; connected sessions are
// tracked on the active-chat-sessions gauge.
func WithGatewayMetrics(m *observe.Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithOriginPatterns sets the allowed websocket origins. Empty means
// same-origin only.
func WithOriginPatterns(patterns ...string) GatewayOption {
	return func(g *Gateway) {
		g.origins = patterns
	}
}

// Gateway upgrades HTTP requests to websocket chat sessions. Each connection
// gets its own [Agent] (and therefore its own history); events of a turn are
// streamed to the client as JSON frames, terminated by a "done" frame.
type Gateway struct {
	newAgent func() *Agent
	metrics  *observe.Metrics
	origins  []string
}

// NewGateway creates a Gateway. newAgent is called once per accepted
// connection.
func NewGateway(newAgent func() *Agent, opts ...GatewayOption) *Gateway {
	g := &Gateway{newAgent: newAgent}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ServeHTTP implements http.Handler by upgrading the request and serving the
// chat session until the client disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.origins,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	ctx := r.Context()
	if g.metrics != nil {
		g.metrics.ActiveChatSessions.Add(ctx, 1)
		defer g.metrics.ActiveChatSessions.Add(context.WithoutCancel(ctx), -1)
	}

	agent := g.newAgent()
	slog.Info("chat session opened", "remote", r.RemoteAddr)

	for {
		var req wireRequest
		if err := readJSON(ctx, conn, &req); err != nil {
			var closeErr websocket.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, context.Canceled) {
				slog.Warn("chat session read failed", "err", err)
			}
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}

		_, err := agent.Send(ctx, req.Message, func(e Event) {
			writeJSON(ctx, conn, wireEvent{
				Type:    string(e.Type),
				Text:    e.Text,
				Tool:    e.Tool,
				Args:    e.Args,
				Result:  e.Result,
				IsError: e.IsError,
			})
		})
		if err != nil {
			writeJSON(ctx, conn, wireEvent{Type: "error", Error: err.Error()})
			continue
		}
		writeJSON(ctx, conn, wireEvent{Type: "done"})
	}
}

// readJSON reads one text frame and decodes it into v.
func readJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON encodes v and writes it as one text frame. Write failures are
// logged; the read loop notices the dead connection on its next turn.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("encode websocket frame", "err", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("write websocket frame", "err", err)
	}
}
