package policy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// Engine evaluates Rego admission policies. It implements engine.PolicyGate.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

var _ engine.PolicyGate = (*Engine)(nil)

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		cp, err := compile(context.Background(), &builtins[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
		e.policies[builtins[i].Name] = cp
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("built-in policies loaded")
	return e, nil
}

// Admit evaluates every enabled policy against an admission request.
func (e *Engine) Admit(ctx context.Context, req *engine.AdmissionRequest) (*engine.AdmissionDecision, error) {
	result, err := e.Evaluate(ctx, NewInput(req))
	if err != nil {
		return nil, err
	}

	decision := &engine.AdmissionDecision{Allowed: result.Allowed}
	for _, v := range result.Violations {
		decision.Violations = append(decision.Violations, v.Policy+": "+v.Message)
	}
	for _, w := range result.Warnings {
		decision.Warnings = append(decision.Warnings, w.Message)
	}
	return decision, nil
}

// Evaluate evaluates every enabled policy against input. A policy that fails
// to evaluate is reported as a warning and does not block.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedPolicies: []string{}}
	for _, name := range slices.Sorted(maps.Keys(e.policies)) {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		deny, warn, err := cp.eval(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).Str("policy", name).Msg("policy evaluation failed")
			result.Warnings = append(result.Warnings, Violation{
				Policy:   name,
				Message:  fmt.Sprintf("policy %s evaluation failed: %v", name, err),
				Severity: SeverityWarning,
			})
			continue
		}

		for _, v := range deny {
			if v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
		result.Warnings = append(result.Warnings, warn...)
	}

	result.Duration = time.Since(start)
	e.logger.Debug().
		Str("run_id", input.RunID).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("admission evaluated")
	return result, nil
}

// eval runs the prepared query and splits the package's deny and warn sets.
func (cp *compiledPolicy) eval(ctx context.Context, input *Input) (deny, warn []Violation, err error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, nil, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil, nil
	}

	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, nil, nil
	}

	if set, ok := doc["deny"].([]interface{}); ok {
		for _, d := range set {
			deny = append(deny, cp.violation(d, cp.policy.Severity))
		}
	}
	if set, ok := doc["warn"].([]interface{}); ok {
		for _, w := range set {
			v := cp.violation(w, SeverityWarning)
			v.Severity = SeverityWarning
			warn = append(warn, v)
		}
	}
	return deny, warn, nil
}

// violation converts a rule value, either a string or an object with
// "message" and optional "severity", into a Violation.
func (cp *compiledPolicy) violation(result interface{}, severity Severity) Violation {
	v := Violation{Policy: cp.policy.Name, Severity: severity}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok && sev != "" {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	if v.Severity == "" {
		v.Severity = SeverityError
	}
	return v
}

// compile parses a policy and prepares a query for its package document.
func compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{policy: policy, query: query}, nil
}

// LoadPolicies loads and compiles policy files from paths. A file that
// fails to compile aborts the load and leaves the current set unchanged.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.SetPolicies(ctx, policies)
}

// SetPolicies replaces every non-built-in policy with policies. Policies
// named like a built-in are skipped.
func (e *Engine) SetPolicies(ctx context.Context, policies []Policy) error {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		p := policies[i]
		cp, err := compile(ctx, &p)
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		compiled[p.Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for name, cp := range compiled {
		if _, ok := e.policies[name]; ok {
			e.logger.Warn().Str("policy", name).Str("source", cp.policy.Source).
				Msg("policy name collides with a built-in policy, skipping")
			continue
		}
		e.policies[name] = cp
	}

	e.logger.Info().Int("count", len(compiled)).Msg("policies loaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	p := *cp.policy
	return &p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range slices.Sorted(maps.Keys(e.policies)) {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("policy toggled")
	return nil
}
