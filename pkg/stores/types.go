package stores

import (
	"context"
	"time"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// OrphanRun is a run whose resources were never cleared: the process
// owning it exited before the run reached a terminal state.
type OrphanRun struct {
	RunID     string    `json:"run_id"`
	Hostname  string    `json:"hostname,omitempty"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at"`

	// Resources are in creation order.
	Resources []engine.TrackedResource `json:"resources"`
}

// Deleter removes a tracked resource from its platform. engine.Adapters
// satisfies it.
type Deleter interface {
	Delete(ctx context.Context, res engine.TrackedResource) error
}

// CleanupFilter selects which orphan runs Cleanup processes.
type CleanupFilter struct {
	// RunID restricts cleanup to a single run.
	RunID string

	// OlderThan skips runs started more recently than this.
	OlderThan time.Duration
}

// CleanupResult reports what Cleanup did for one run.
type CleanupResult struct {
	RunID    string                   `json:"run_id"`
	Deleted  []engine.TrackedResource `json:"deleted"`
	Leftover []engine.TrackedResource `json:"leftover,omitempty"`
	Errors   []string                 `json:"errors,omitempty"`
}

// Completed reports whether every resource of the run was deleted.
func (r CleanupResult) Completed() bool {
	return len(r.Leftover) == 0
}
