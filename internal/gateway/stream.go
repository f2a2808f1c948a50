package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
)

// Stream message types sent by the server.
const (
	StreamEvent  = "event"
	StreamAnswer = "answer"
	StreamError  = "error"
)

// StreamMessage is one server-to-client frame on /v1/think/stream.
type StreamMessage struct {
	Type   string                `json:"type"`
	RunID  string                `json:"run_id,omitempty"`
	Status runs.Status           `json:"status,omitempty"`
	Event  *thinking.Event       `json:"event,omitempty"`
	Answer *thinking.FinalAnswer `json:"answer,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// handleStream upgrades to a WebSocket. The client sends one ThinkRequest;
// the server replies with an event frame per controller event, then a
// final answer or error frame, and closes.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()
		conn.SetReadLimit(int64(g.config.MaxBodySize))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		job, _, err := g.decodeThinkRequest(data, runs.ModeThink)
		if err != nil {
			_ = g.send(ctx, conn, StreamMessage{Type: StreamError, Error: err.Error()})
			_ = conn.Close(websocket.StatusPolicyViolation, "invalid request")
			return
		}
		if err := g.admit(job); err != nil {
			_ = g.send(ctx, conn, StreamMessage{Type: StreamError, Error: err.Error()})
			_ = conn.Close(websocket.StatusTryAgainLater, "rate limited")
			return
		}

		// Nothing more is read; a client close cancels the run.
		ctx = conn.CloseRead(ctx)

		// Events arrive on the controller goroutine, one at a time.
		job.Request.Observer = thinking.ObserverFunc(func(e thinking.Event) {
			if err := g.send(ctx, conn, StreamMessage{Type: StreamEvent, RunID: e.SessionID, Event: &e}); err != nil {
				cancel()
			}
		})

		o := g.deps.Executor.Execute(ctx, job)
		if o.Err != nil {
			_ = g.send(ctx, conn, StreamMessage{Type: StreamError, RunID: o.Run.ID, Status: o.Run.Status, Error: o.Err.Error()})
			_ = conn.Close(websocket.StatusInternalError, "run failed")
			return
		}
		_ = g.send(ctx, conn, StreamMessage{Type: StreamAnswer, RunID: o.Run.ID, Status: o.Run.Status, Answer: o.Answer})
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Debug("gateway: stream write failed", "error", err)
		return err
	}
	return nil
}
