package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// Stream event names.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventClose    = "close"
)

// DeployRequest is the body of POST /api/deploy and the first frame of a
// websocket deployment.
type DeployRequest struct {
	engine.Request

	// FullTrinity provisions all three platforms instead of routing by
	// category.
	FullTrinity bool `json:"fullTrinity,omitempty"`
}

// eventWriter is a transport for one deployment stream.
type eventWriter interface {
	Event(name string, payload any) error
	Heartbeat() error
}

// runHandle connects a detached run to its listener.
type runHandle struct {
	sink *engine.ChannelSink
	done chan Completion
}

// startRun launches the deployment on a context that outlives the request,
// so a lost listener never aborts provisioning or rollback.
func (s *Server) startRun(ctx context.Context, req DeployRequest) (*runHandle, error) {
	deployer, err := s.deployers(req.DryRun)
	if err != nil {
		return nil, err
	}

	h := &runHandle{
		sink: engine.NewChannelSink(eventBuffer),
		done: make(chan Completion, 1),
	}
	runCtx := context.WithoutCancel(ctx)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()

		deploy := deployer.DeploySingle
		if req.FullTrinity {
			deploy = deployer.Deploy
		}
		outcome, err := deploy(runCtx, req.Request, h.sink)
		h.sink.Close()

		logger := s.logger.With().Str("target", req.Target).Bool("full", req.FullTrinity).Logger()
		if dropped := h.sink.Dropped(); dropped > 0 {
			logger.Warn().Int("dropped", dropped).Msg("progress events dropped for slow listener")
		}
		if err != nil {
			logger.Error().Err(err).Msg("deployment failed")
		} else {
			logger.Info().Str("run_id", outcome.RunID).Msg("deployment succeeded")
		}

		h.done <- newCompletion(outcome, err)
	}()

	return h, nil
}

// pump forwards progress events, heartbeats while waiting, then writes the
// completion and close events. It returns early when the listener goes
// away; the run itself continues.
func (s *Server) pump(ctx context.Context, h *runHandle, out eventWriter) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	events := h.sink.Events()
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := out.Event(EventProgress, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := out.Heartbeat(); err != nil {
				return
			}
		case <-ctx.Done():
			s.logger.Info().Msg("listener disconnected, deployment continues")
			return
		}
	}

	select {
	case c := <-h.done:
		if err := out.Event(EventComplete, c); err != nil {
			return
		}
		_ = out.Event(EventClose, struct{}{})
	case <-ctx.Done():
	}
}

func startStatus(err error) int {
	if engine.IsConfiguration(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleDeploySSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	var req DeployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, engine.NewValidationError("invalid deploy request", err).
			WithCode(engine.ErrCodeInvalidRequest))
		return
	}

	h, err := s.startRun(r.Context(), req)
	if err != nil {
		writeError(w, startStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.pump(r.Context(), h, newSSEStream(w, flusher, s.logger))
}

// sseStream writes Server-Sent Events frames.
type sseStream struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	logger  zerolog.Logger
	closed  bool
}

func newSSEStream(w io.Writer, flusher http.Flusher, logger zerolog.Logger) *sseStream {
	return &sseStream{writer: w, flusher: flusher, logger: logger}
}

// Event writes a named event with a JSON payload.
func (c *sseStream) Event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	return c.write(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

// Heartbeat writes a comment frame to keep intermediaries from closing
// the connection.
func (c *sseStream) Heartbeat() error {
	return c.write(": heartbeat\n\n")
}

func (c *sseStream) write(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := io.WriteString(c.writer, frame); err != nil {
		c.closed = true
		c.logger.Warn().Err(err).Msg("sse write failed")
		return err
	}
	c.flusher.Flush()
	return nil
}
