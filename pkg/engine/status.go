package engine

import (
	"encoding/json"
	"fmt"
)

// Category is the deployment category assigned to a source target.
type Category string

const (
	// CategoryFrontend indicates a browser-facing application.
	CategoryFrontend Category = "frontend"

	// CategoryBackend indicates an API or server process.
	CategoryBackend Category = "backend"

	// CategoryDatabase indicates a schema/migrations repository.
	CategoryDatabase Category = "database"

	// CategoryUnknown indicates no category could be determined.
	CategoryUnknown Category = "unknown"
)

// Validate checks if the category is valid.
func (c Category) Validate() error {
	switch c {
	case CategoryFrontend, CategoryBackend, CategoryDatabase, CategoryUnknown:
		return nil
	default:
		return fmt.Errorf("invalid category: %s", c)
	}
}

// Platform identifies one of the provisioning platforms, or the orchestrator itself.
type Platform string

const (
	// PlatformDatabase is the managed Postgres platform.
	PlatformDatabase Platform = "database-platform"

	// PlatformCompute is the backend compute platform.
	PlatformCompute Platform = "compute-platform"

	// PlatformFrontend is the static/edge hosting platform.
	PlatformFrontend Platform = "frontend-platform"

	// PlatformSystem marks orchestration-level messages.
	PlatformSystem Platform = "system"
)

// Validate checks if the platform is valid.
func (p Platform) Validate() error {
	switch p {
	case PlatformDatabase, PlatformCompute, PlatformFrontend, PlatformSystem:
		return nil
	default:
		return fmt.Errorf("invalid platform: %s", p)
	}
}

// PlatformFor returns the platform that hosts the given category.
func PlatformFor(c Category) (Platform, bool) {
	switch c {
	case CategoryFrontend:
		return PlatformFrontend, true
	case CategoryBackend:
		return PlatformCompute, true
	case CategoryDatabase:
		return PlatformDatabase, true
	default:
		return "", false
	}
}

// ResourceKind is the kind of an externally created resource.
type ResourceKind string

const (
	// ResourceKindProject is a top-level project on any platform.
	ResourceKindProject ResourceKind = "project"

	// ResourceKindService is a service inside a compute project.
	ResourceKindService ResourceKind = "service"
)

// Validate checks the kind against the platform it was created on.
// Services only exist on the compute platform.
func (k ResourceKind) Validate(p Platform) error {
	switch k {
	case ResourceKindProject:
		return nil
	case ResourceKindService:
		if p != PlatformCompute {
			return fmt.Errorf("resource kind %s is not valid on %s", k, p)
		}
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// Stage names a step of a deployment run for error reporting.
type Stage string

const (
	StageValidation     Stage = "validation"
	StageClassification Stage = "classification"
	StageAdmission      Stage = "admission"
	StageDatabase       Stage = "database"
	StageCompute        Stage = "compute"
	StageFrontend       Stage = "frontend"
)

// StageFor returns the provisioning stage for a platform.
func StageFor(p Platform) Stage {
	switch p {
	case PlatformDatabase:
		return StageDatabase
	case PlatformCompute:
		return StageCompute
	case PlatformFrontend:
		return StageFrontend
	default:
		return StageValidation
	}
}

// Mode selects between the three-platform pipeline and single-platform routing.
type Mode string

const (
	// ModeFull provisions database, compute and frontend in order.
	ModeFull Mode = "full"

	// ModeSingle provisions only the platform matching the category.
	ModeSingle Mode = "single"
)

// RunState represents the state of a deployment run.
//
// Transitions:
//
//	idle -> classifying -> provisioning_database -> provisioning_compute
//	     -> provisioning_frontend -> succeeded
//	provisioning_* -> rolling_back -> failed
//	classifying -> failed
type RunState string

const (
	RunStateIdle                 RunState = "idle"
	RunStateClassifying          RunState = "classifying"
	RunStateProvisioningDatabase RunState = "provisioning_database"
	RunStateProvisioningCompute  RunState = "provisioning_compute"
	RunStateProvisioningFrontend RunState = "provisioning_frontend"
	RunStateRollingBack          RunState = "rolling_back"
	RunStateSucceeded            RunState = "succeeded"
	RunStateFailed               RunState = "failed"
)

var runTransitions = map[RunState][]RunState{
	RunStateIdle:        {RunStateClassifying, RunStateFailed},
	RunStateClassifying: {RunStateProvisioningDatabase, RunStateProvisioningCompute, RunStateProvisioningFrontend, RunStateFailed},
	RunStateProvisioningDatabase: {
		RunStateProvisioningCompute, RunStateSucceeded, RunStateRollingBack,
	},
	RunStateProvisioningCompute: {
		RunStateProvisioningFrontend, RunStateSucceeded, RunStateRollingBack,
	},
	RunStateProvisioningFrontend: {RunStateSucceeded, RunStateRollingBack},
	RunStateRollingBack:          {RunStateFailed},
}

// IsTerminal returns true if the state is final.
func (s RunState) IsTerminal() bool {
	return s == RunStateSucceeded || s == RunStateFailed
}

// IsProvisioning returns true while a platform stage is running.
func (s RunState) IsProvisioning() bool {
	return s == RunStateProvisioningDatabase || s == RunStateProvisioningCompute ||
		s == RunStateProvisioningFrontend
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Single-platform runs may jump from classifying straight to any
// provisioning state, and from any provisioning state to succeeded.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Validate checks if the run state is valid.
func (s RunState) Validate() error {
	switch s {
	case RunStateIdle, RunStateClassifying, RunStateProvisioningDatabase,
		RunStateProvisioningCompute, RunStateProvisioningFrontend,
		RunStateRollingBack, RunStateSucceeded, RunStateFailed:
		return nil
	default:
		return fmt.Errorf("invalid run state: %s", s)
	}
}

// provisioningState maps a platform to the state entered while it is provisioned.
func provisioningState(p Platform) RunState {
	switch p {
	case PlatformDatabase:
		return RunStateProvisioningDatabase
	case PlatformCompute:
		return RunStateProvisioningCompute
	default:
		return RunStateProvisioningFrontend
	}
}

// EventLevel is the severity of a progress event.
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunState(str)
	return s.Validate()
}
