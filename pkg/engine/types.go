package engine

import (
	"time"
)

// ClassificationResult is the classifier's verdict for a source target.
// It is produced once per run and never mutated afterwards.
type ClassificationResult struct {
	// Category is the detected deployment category.
	Category Category `json:"category"`

	// Confidence is the classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Indicators lists the distinct signals found, in discovery order.
	Indicators []string `json:"indicators"`

	// Metadata carries free-form details about the detected stack.
	Metadata Metadata `json:"metadata"`
}

// ConfidencePercent returns the confidence rounded to a whole percentage.
func (c *ClassificationResult) ConfidencePercent() int {
	return int(c.Confidence*100 + 0.5)
}

// Metadata describes the technologies detected in a source target.
type Metadata struct {
	// Framework is the primary framework, e.g. "next" or "fastapi".
	Framework string `json:"framework,omitempty"`

	// Runtime is the language runtime, e.g. "node" or "python".
	Runtime string `json:"runtime,omitempty"`

	// PackageManager is the detected package manager.
	PackageManager string `json:"packageManager,omitempty"`

	// Technologies lists every technology recognised.
	Technologies []string `json:"technologies,omitempty"`

	// OptimizedRuntime is set when the backend framework needs fixed
	// runtime variables on the compute platform (FastAPI under uvicorn).
	OptimizedRuntime bool `json:"optimizedRuntime,omitempty"`
}

// TrackedResource records a successfully created external resource.
type TrackedResource struct {
	// Platform is where the resource lives.
	Platform Platform `json:"platform"`

	// Kind is the resource kind.
	Kind ResourceKind `json:"kind"`

	// ID is the platform identifier returned on creation.
	ID string `json:"id"`

	// Name is the human-readable name, used in messages only.
	Name string `json:"name,omitempty"`
}

// Label renders the resource for log and progress messages.
func (r TrackedResource) Label() string {
	if r.Name != "" {
		return string(r.Kind) + " " + r.Name + " (" + r.ID + ")"
	}
	return string(r.Kind) + " " + r.ID
}

// ProgressEvent is a transient notification about a running deployment.
type ProgressEvent struct {
	// Step is the position of this event in its counter sequence.
	Step int `json:"step"`

	// Total is the expected number of steps for the sequence.
	Total int `json:"total"`

	// Message is human-readable text.
	Message string `json:"message"`

	// Platform is the platform the event concerns, or system.
	Platform Platform `json:"platform"`

	// Level is the event severity.
	Level EventLevel `json:"level"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Completed marks the terminal event of a sub-stage.
	Completed bool `json:"completed,omitempty"`
}

// ProjectRef is returned by adapters when a project is created.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServiceRef is returned by the compute adapter when a service is created.
type ServiceRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
}

// PlatformResult is the per-platform record in a successful outcome.
type PlatformResult struct {
	ProjectID     string `json:"projectId"`
	ProjectName   string `json:"projectName"`
	ServiceID     string `json:"serviceId,omitempty"`
	ServiceName   string `json:"serviceName,omitempty"`
	URL           string `json:"url,omitempty"`
	ConnectionURI string `json:"connectionUri,omitempty"`
}

// Outcome is the final result of a successful deployment.
type Outcome struct {
	// RunID identifies the run.
	RunID string `json:"runId"`

	// Mode is the pipeline mode that produced the outcome.
	Mode Mode `json:"mode"`

	// State is always succeeded for a returned outcome.
	State RunState `json:"state"`

	// DryRun reports whether adapters skipped real network calls.
	DryRun bool `json:"dryRun"`

	// Classification is the classifier verdict the run acted on.
	Classification *ClassificationResult `json:"classification"`

	// Platforms maps each provisioned platform to its result.
	Platforms map[Platform]PlatformResult `json:"platforms"`

	// Warnings are non-fatal admission findings.
	Warnings []string `json:"warnings,omitempty"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Duration returns how long the run took.
func (o *Outcome) Duration() time.Duration {
	return o.CompletedAt.Sub(o.StartedAt)
}

// Request describes a deployment to perform.
type Request struct {
	// Target is a local path or remote repository URL to classify.
	Target string `json:"target" validate:"required"`

	// Repository is the source reference given to the compute and frontend
	// platforms. Defaults to Target.
	Repository string `json:"repository,omitempty"`

	// ProjectName overrides the derived base name.
	ProjectName string `json:"projectName,omitempty" validate:"omitempty,max=52"`

	// ServiceName overrides the compute service name.
	ServiceName string `json:"serviceName,omitempty" validate:"omitempty,max=63"`

	// DryRun is reported in the outcome and to admission policies.
	// The adapters themselves decide whether to touch the network.
	DryRun bool `json:"dryRun,omitempty"`

	// BackendEnv holds caller-supplied compute variables.
	BackendEnv map[string]string `json:"backendEnv,omitempty"`

	// FrontendEnv holds caller-supplied frontend variables.
	FrontendEnv map[string]string `json:"frontendEnv,omitempty"`
}

// repositoryRef returns the reference used for source connections.
func (r Request) repositoryRef() string {
	if r.Repository != "" {
		return r.Repository
	}
	return r.Target
}
