package engine

import (
	"maps"
	"slices"
)

// Variable names written by the pipeline.
const (
	DatabaseURLVar = "DATABASE_URL"
	BackendURLVar  = "NEXT_PUBLIC_API_URL"

	// BackendURLPlaceholder is used when the compute platform reports no URL.
	BackendURLPlaceholder = "http://localhost:8000"
)

// optimizedRuntimeVars are applied to compute services whose framework
// needs a fixed listen address (FastAPI under uvicorn).
var optimizedRuntimeVars = map[string]string{
	"PORT":             "8000",
	"HOST":             "0.0.0.0",
	"PYTHONUNBUFFERED": "1",
}

// ReservedVariables returns the variable names the pipeline always sets.
func ReservedVariables() []string {
	return []string{DatabaseURLVar, BackendURLVar}
}

// ComputeVariables builds the compute service variables. Layers are
// applied in order: runtime defaults, caller extras, then DATABASE_URL,
// so the propagated connection string always wins.
func ComputeVariables(c *ClassificationResult, databaseURL string, extra map[string]string) map[string]string {
	vars := make(map[string]string)
	if c != nil && c.Metadata.OptimizedRuntime {
		maps.Copy(vars, optimizedRuntimeVars)
	}
	maps.Copy(vars, extra)
	if databaseURL != "" {
		vars[DatabaseURLVar] = databaseURL
	}
	return vars
}

// FrontendVariables builds the frontend project variables. Caller extras
// are applied first and NEXT_PUBLIC_API_URL last.
func FrontendVariables(backendURL string, extra map[string]string) map[string]string {
	vars := make(map[string]string, len(extra)+1)
	maps.Copy(vars, extra)
	if backendURL == "" {
		backendURL = BackendURLPlaceholder
	}
	vars[BackendURLVar] = backendURL
	return vars
}

// sortedKeys returns the map keys in lexical order.
func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
