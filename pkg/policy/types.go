package policy

import (
	"time"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is surfaced to the caller but never blocks a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the deployment.
	SeverityError Severity = "error"

	// SeverityCritical blocks the deployment.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies admission.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The module may define a "deny"
	// set and a "warn" set.
	Rego string `json:"rego"`

	// Severity is the default severity for deny results that do not carry
	// their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the binary.
	Builtin bool `json:"builtin"`

	// Source is the file the policy was loaded from.
	Source string `json:"source,omitempty"`
}

// Violation is a single deny or warn result.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	Allowed           bool          `json:"allowed"`
	Violations        []Violation   `json:"violations,omitempty"`
	Warnings          []Violation   `json:"warnings,omitempty"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	RunID        string              `json:"run_id"`
	Mode         string              `json:"mode"`
	Target       string              `json:"target"`
	Repository   string              `json:"repository,omitempty"`
	Category     string              `json:"category"`
	Confidence   float64             `json:"confidence"`
	Framework    string              `json:"framework,omitempty"`
	Names        map[string]string   `json:"names"`
	VariableKeys map[string][]string `json:"variable_keys"`
	DryRun       bool                `json:"dry_run"`
	Reserved     map[string]string   `json:"reserved"`
}

// NewInput flattens an admission request into the policy input document.
func NewInput(req *engine.AdmissionRequest) *Input {
	in := &Input{
		RunID:        req.RunID,
		Mode:         string(req.Mode),
		Target:       req.Target,
		Names:        make(map[string]string),
		VariableKeys: make(map[string][]string),
		DryRun:       req.DryRun,
		Reserved: map[string]string{
			"compute":  engine.DatabaseURLVar,
			"frontend": engine.BackendURLVar,
		},
	}
	if req.Repository.Name != "" {
		in.Repository = req.Repository.FullName()
	}
	if c := req.Classification; c != nil {
		in.Category = string(c.Category)
		in.Confidence = c.Confidence
		in.Framework = c.Metadata.Framework
	}

	for role, name := range map[string]string{
		"database_project": req.Names.DatabaseProject,
		"compute_project":  req.Names.ComputeProject,
		"compute_service":  req.Names.ComputeService,
		"frontend_project": req.Names.FrontendProject,
	} {
		if name != "" {
			in.Names[role] = name
		}
	}

	for p, keys := range req.VariableKeys {
		role := roleOf(p)
		if role == "" {
			continue
		}
		in.VariableKeys[role] = append([]string{}, keys...)
	}
	return in
}

func roleOf(p engine.Platform) string {
	switch p {
	case engine.PlatformDatabase:
		return "database"
	case engine.PlatformCompute:
		return "compute"
	case engine.PlatformFrontend:
		return "frontend"
	}
	return ""
}
