package engine

import (
	"context"
	"fmt"
)

// Classifier assigns a deployment category to a source target.
type Classifier interface {
	// Classify inspects a local path or remote URL.
	Classify(ctx context.Context, target string) (*ClassificationResult, error)
}

// DatabaseProvisioner provisions managed databases.
type DatabaseProvisioner interface {
	// CreateProject creates a database project.
	CreateProject(ctx context.Context, name string) (*ProjectRef, error)

	// GetEndpoint returns the connection URI of a project.
	GetEndpoint(ctx context.Context, projectID string) (string, error)

	// DeleteProject deletes a project. Deleting a missing project succeeds.
	DeleteProject(ctx context.Context, projectID string) error
}

// ComputeProvisioner provisions backend projects and services.
type ComputeProvisioner interface {
	// CreateProject creates an empty backend project.
	CreateProject(ctx context.Context, name string) (*ProjectRef, error)

	// CreateService attaches a service built from repo to a project.
	CreateService(ctx context.Context, projectID, name string, repo Repository) (*ServiceRef, error)

	// SetVariables upserts environment variables on a service.
	SetVariables(ctx context.Context, projectID, serviceID string, vars map[string]string) error

	// GetEndpoint returns the public URL of a service. Best effort.
	GetEndpoint(ctx context.Context, service ServiceRef) (string, error)

	// DeleteService deletes a service. Deleting a missing service succeeds.
	DeleteService(ctx context.Context, serviceID string) error

	// DeleteProject deletes a project. Deleting a missing project succeeds.
	DeleteProject(ctx context.Context, projectID string) error
}

// FrontendProvisioner provisions frontend hosting projects.
type FrontendProvisioner interface {
	// CreateProject creates a hosting project.
	CreateProject(ctx context.Context, name string) (*ProjectRef, error)

	// ConnectSource links a repository to the project.
	ConnectSource(ctx context.Context, projectID string, repo Repository) error

	// SetVariables upserts environment variables on the project.
	SetVariables(ctx context.Context, projectID string, vars map[string]string) error

	// GetEndpoint returns the public URL of the project.
	GetEndpoint(ctx context.Context, projectID string) (string, error)

	// DeleteProject deletes a project. Deleting a missing project succeeds.
	DeleteProject(ctx context.Context, projectID string) error
}

// Adapters bundles the three platform adapters a run needs.
type Adapters struct {
	Database DatabaseProvisioner
	Compute  ComputeProvisioner
	Frontend FrontendProvisioner
}

// Validate ensures all adapters are present.
func (a Adapters) Validate() error {
	if a.Database == nil {
		return fmt.Errorf("database adapter is required")
	}
	if a.Compute == nil {
		return fmt.Errorf("compute adapter is required")
	}
	if a.Frontend == nil {
		return fmt.Errorf("frontend adapter is required")
	}
	return nil
}

// Delete removes a tracked resource using the adapter keyed by its
// platform and kind.
func (a Adapters) Delete(ctx context.Context, res TrackedResource) error {
	switch {
	case res.Platform == PlatformDatabase && res.Kind == ResourceKindProject:
		return a.Database.DeleteProject(ctx, res.ID)
	case res.Platform == PlatformCompute && res.Kind == ResourceKindService:
		return a.Compute.DeleteService(ctx, res.ID)
	case res.Platform == PlatformCompute && res.Kind == ResourceKindProject:
		return a.Compute.DeleteProject(ctx, res.ID)
	case res.Platform == PlatformFrontend && res.Kind == ResourceKindProject:
		return a.Frontend.DeleteProject(ctx, res.ID)
	default:
		return fmt.Errorf("no delete operation for %s %s", res.Platform, res.Kind)
	}
}

// ProgressSink receives progress events in emission order.
// Implementations must not block indefinitely.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// ResourceObserver is notified as a run's tracker changes.
type ResourceObserver interface {
	// ResourceTracked is called after a resource is appended.
	ResourceTracked(ctx context.Context, runID string, res TrackedResource) error

	// ResourceDeleted is called after rollback deleted a tracked resource.
	ResourceDeleted(ctx context.Context, runID string, res TrackedResource) error

	// TrackerCleared is called when the run's tracker is emptied. It is
	// not called after a rollback that left resources behind, so those
	// stay recorded.
	TrackerCleared(ctx context.Context, runID string) error
}

// AdmissionRequest is evaluated by a PolicyGate before any resource is created.
type AdmissionRequest struct {
	RunID          string                `json:"run_id"`
	Mode           Mode                  `json:"mode"`
	Target         string                `json:"target"`
	Repository     Repository            `json:"repository"`
	Classification *ClassificationResult `json:"classification"`
	Names          Names                 `json:"names"`
	VariableKeys   map[Platform][]string `json:"variable_keys"`
	DryRun         bool                  `json:"dry_run"`
}

// AdmissionDecision is the verdict of a PolicyGate.
type AdmissionDecision struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// PolicyGate admits or rejects a deployment before provisioning starts.
type PolicyGate interface {
	Admit(ctx context.Context, req *AdmissionRequest) (*AdmissionDecision, error)
}

type allowAllGate struct{}

func (allowAllGate) Admit(context.Context, *AdmissionRequest) (*AdmissionDecision, error) {
	return &AdmissionDecision{Allowed: true}, nil
}

type nopObserver struct{}

func (nopObserver) ResourceTracked(context.Context, string, TrackedResource) error { return nil }
func (nopObserver) ResourceDeleted(context.Context, string, TrackedResource) error { return nil }
func (nopObserver) TrackerCleared(context.Context, string) error                   { return nil }
