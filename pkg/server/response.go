package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

const maxBodyBytes = 1 << 20

// ErrorPayload is the JSON form of a failed request or run.
type ErrorPayload struct {
	Kind              engine.ErrorKind         `json:"kind,omitempty"`
	Code              string                   `json:"code,omitempty"`
	Message           string                   `json:"message"`
	Stage             engine.Stage             `json:"stage,omitempty"`
	Platform          engine.Platform          `json:"platform,omitempty"`
	RollbackAttempted bool                     `json:"rollbackAttempted,omitempty"`
	RollbackCompleted bool                     `json:"rollbackCompleted,omitempty"`
	Leftover          []engine.TrackedResource `json:"leftover,omitempty"`
}

// NewErrorPayload flattens err, keeping the deployment fields when err is
// an *engine.DeployError.
func NewErrorPayload(err error) *ErrorPayload {
	p := &ErrorPayload{Message: err.Error()}

	var de *engine.DeployError
	if errors.As(err, &de) {
		p.Kind = de.Kind
		p.Code = de.Code
		p.Stage = de.Stage
		p.Platform = de.Platform
		p.RollbackAttempted = de.RollbackAttempted
		p.RollbackCompleted = de.RollbackCompleted
		p.Leftover = de.Leftover
	}
	return p
}

// Completion is the payload of the complete event.
type Completion struct {
	Success bool            `json:"success"`
	Outcome *engine.Outcome `json:"outcome,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

func newCompletion(outcome *engine.Outcome, err error) Completion {
	if err != nil {
		return Completion{Error: NewErrorPayload(err)}
	}
	return Completion{Success: true, Outcome: outcome}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": NewErrorPayload(err)})
}
