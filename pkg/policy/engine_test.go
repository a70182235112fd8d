package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	require.NoError(t, err)
	return e
}

func fullRequest(base string) *engine.AdmissionRequest {
	return &engine.AdmissionRequest{
		RunID:      "run-1",
		Mode:       engine.ModeFull,
		Target:     "./" + base,
		Repository: engine.Repository{Owner: "acme", Name: base, Branch: "main"},
		Classification: &engine.ClassificationResult{
			Category:   engine.CategoryFrontend,
			Confidence: 0.9,
		},
		Names: engine.Names{
			Base:            base,
			DatabaseProject: base + "-db",
			ComputeProject:  base + "-backend",
			ComputeService:  base + "-backend",
			FrontendProject: base + "-frontend",
		},
		VariableKeys: map[engine.Platform][]string{},
	}
}

func TestNewEngineLoadsBuiltins(t *testing.T) {
	e := newTestEngine(t)

	var names []string
	for _, p := range e.ListPolicies() {
		names = append(names, p.Name)
		assert.True(t, p.Builtin)
		assert.True(t, p.Enabled)
	}
	assert.Equal(t, []string{"minimum-confidence", "reserved-variables", "resource-naming"}, names)
}

func TestAdmitDerivedNames(t *testing.T) {
	e := newTestEngine(t)

	decision, err := e.Admit(context.Background(), fullRequest("shop"))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Violations)
	assert.Empty(t, decision.Warnings)
}

func TestResourceNaming(t *testing.T) {
	tests := []struct {
		name    string
		project string
		allowed bool
		message string
	}{
		{"derived", "shop.web-db", true, ""},
		{"uppercase", "Shop-db", false, "must be lowercase"},
		{"underscore", "shop_db", false, "only letters, digits, dots and hyphens"},
		{"leading hyphen", "-shop", false, "must start with a letter or digit"},
		{"too long", strings.Repeat("a", 64), false, "exceeds 63 characters"},
	}

	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fullRequest("shop")
			req.Names.DatabaseProject = tt.project

			decision, err := e.Admit(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, decision.Allowed)
			if tt.allowed {
				assert.Empty(t, decision.Violations)
				return
			}
			require.Len(t, decision.Violations, 1)
			assert.True(t, strings.HasPrefix(decision.Violations[0], "resource-naming: database_project name"))
			assert.Contains(t, decision.Violations[0], tt.message)
		})
	}
}

func TestMinimumConfidence(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := &engine.AdmissionRequest{
		RunID:          "run-2",
		Mode:           engine.ModeSingle,
		Target:         "./site",
		Classification: &engine.ClassificationResult{Category: engine.CategoryFrontend, Confidence: 0.2},
		Names:          engine.Names{Base: "site", FrontendProject: "site"},
	}
	decision, err := e.Admit(ctx, req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.Len(t, decision.Warnings, 1)
	assert.Contains(t, decision.Warnings[0], "frontend is below 30%")

	req.Classification.Confidence = 0.3
	decision, err = e.Admit(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, decision.Warnings)

	full := fullRequest("site")
	full.Classification.Confidence = 0.1
	decision, err = e.Admit(ctx, full)
	require.NoError(t, err)
	assert.Empty(t, decision.Warnings)
}

func TestReservedVariables(t *testing.T) {
	e := newTestEngine(t)

	req := fullRequest("shop")
	req.VariableKeys = map[engine.Platform][]string{
		engine.PlatformCompute:  {"DATABASE_URL", "LOG_LEVEL"},
		engine.PlatformFrontend: {"NEXT_PUBLIC_API_URL", "NEXT_PUBLIC_FLAG"},
	}

	decision, err := e.Admit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.ElementsMatch(t, []string{
		"DATABASE_URL is set by the pipeline on the compute platform; the supplied value is ignored",
		"NEXT_PUBLIC_API_URL is set by the pipeline on the frontend platform; the supplied value is ignored",
	}, decision.Warnings)
}

func TestCustomPolicies(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.SetPolicies(ctx, []Policy{
		{
			Name:     "no-tmp",
			Severity: SeverityError,
			Enabled:  true,
			Rego: `package custom.tmp

import rego.v1

deny contains msg if {
	not input.dry_run
	startswith(input.names.frontend_project, "tmp")
	msg := "temporary projects require --dry-run"
}
`,
		},
		{
			Name:     "soft",
			Severity: SeverityError,
			Enabled:  true,
			Rego: `package custom.soft

import rego.v1

deny contains {"message": "consider pinning a branch", "severity": "warning"} if {
	input.repository != ""
}
`,
		},
	}))

	req := fullRequest("tmpshop")
	decision, err := e.Admit(ctx, req)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, []string{"no-tmp: temporary projects require --dry-run"}, decision.Violations)
	assert.Equal(t, []string{"consider pinning a branch"}, decision.Warnings)

	req.DryRun = true
	decision, err = e.Admit(ctx, req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEvaluationErrorIsWarning(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.SetPolicies(context.Background(), []Policy{{
		Name:    "conflict",
		Enabled: true,
		Rego: `package custom.conflict

import rego.v1

level = "a" if input.mode == "full"

level = "b" if input.target != ""
`,
	}}))

	result, err := e.Evaluate(context.Background(), NewInput(fullRequest("shop")))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "conflict", result.Warnings[0].Policy)
	assert.Contains(t, result.Warnings[0].Message, "evaluation failed")
}

func TestSetPoliciesCompileErrorKeepsCurrentSet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	good := Policy{Name: "good", Enabled: true, Rego: "package custom.good\n"}
	require.NoError(t, e.SetPolicies(ctx, []Policy{good}))

	err := e.SetPolicies(ctx, []Policy{{Name: "broken", Enabled: true, Rego: "package custom.broken\ndeny contains"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = e.GetPolicy("good")
	assert.NoError(t, err)
	_, err = e.GetPolicy("broken")
	assert.Error(t, err)
}

func TestSetPoliciesReplacesCustomAndKeepsBuiltins(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.SetPolicies(ctx, []Policy{{Name: "one", Enabled: true, Rego: "package custom.one\n"}}))
	require.NoError(t, e.SetPolicies(ctx, []Policy{
		{Name: "two", Enabled: true, Rego: "package custom.two\n"},
		{Name: "resource-naming", Enabled: true, Rego: "package custom.shadow\n"},
	}))

	var names []string
	for _, p := range e.ListPolicies() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"minimum-confidence", "reserved-variables", "resource-naming", "two"}, names)

	p, err := e.GetPolicy("resource-naming")
	require.NoError(t, err)
	assert.True(t, p.Builtin)
}

func TestEnableDisablePolicy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := fullRequest("shop")
	req.Names.FrontendProject = "Shop"

	require.NoError(t, e.DisablePolicy("resource-naming"))
	decision, err := e.Admit(ctx, req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	require.NoError(t, e.EnablePolicy("resource-naming"))
	decision, err = e.Admit(ctx, req)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	assert.Error(t, e.DisablePolicy("missing"))
}

func TestNewInput(t *testing.T) {
	req := fullRequest("shop")
	req.VariableKeys = map[engine.Platform][]string{
		engine.PlatformCompute: {"LOG_LEVEL"},
		engine.PlatformSystem:  {"IGNORED"},
	}
	req.Classification.Metadata.Framework = "next"

	in := NewInput(req)
	assert.Equal(t, "full", in.Mode)
	assert.Equal(t, "acme/shop", in.Repository)
	assert.Equal(t, "frontend", in.Category)
	assert.Equal(t, "next", in.Framework)
	assert.Equal(t, map[string]string{
		"database_project": "shop-db",
		"compute_project":  "shop-backend",
		"compute_service":  "shop-backend",
		"frontend_project": "shop-frontend",
	}, in.Names)
	assert.Equal(t, map[string][]string{"compute": {"LOG_LEVEL"}}, in.VariableKeys)

	local := NewInput(&engine.AdmissionRequest{Mode: engine.ModeSingle})
	assert.Empty(t, local.Repository)
	assert.Empty(t, local.Names)
}
