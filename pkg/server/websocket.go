package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

const wsWriteTimeout = 10 * time.Second

// Frame is a websocket message. Type is one of the stream event names.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type wsStream struct {
	conn *websocket.Conn
}

func (c *wsStream) Event(name string, payload any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(Frame{Type: name, Data: payload})
}

func (c *wsStream) Heartbeat() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (c *wsStream) fail(err error) {
	_ = c.Event(EventComplete, newCompletion(nil, err))
	_ = c.Event(EventClose, struct{}{})
}

// handleDeployWS reads one DeployRequest frame, then streams the run the
// same way as the SSE endpoint.
func (s *Server) handleDeployWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	stream := &wsStream{conn: conn}

	var req DeployRequest
	if err := conn.ReadJSON(&req); err != nil {
		stream.fail(engine.NewValidationError("invalid deploy request", err).WithCode(engine.ErrCodeInvalidRequest))
		return
	}

	h, err := s.startRun(r.Context(), req)
	if err != nil {
		stream.fail(err)
		return
	}

	// The read loop notices a closed peer and handles pong frames.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.pump(ctx, h, stream)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}
