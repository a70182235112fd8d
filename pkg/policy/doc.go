// Package policy provides the Open Policy Agent (OPA) admission gate for
// deployments.
//
// The engine is consulted once per run, after classification and name
// resolution and before any platform resource is created. It implements
// engine.PolicyGate.
//
// # Usage
//
//	gate, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := gate.LoadPolicies(ctx, []string{"/etc/trinity/policies"}); err != nil {
//	    return err
//	}
//	orch, err := engine.NewOrchestrator(classifier, adapters, engine.WithPolicyGate(gate))
//
// # Input
//
// Policies see the following document as `input`:
//
//	{
//	  "run_id": "…",
//	  "mode": "full" | "single",
//	  "target": "./shop",
//	  "repository": "acme/shop",
//	  "category": "frontend",
//	  "confidence": 0.82,
//	  "framework": "next",
//	  "names": {"database_project": "shop-db", "compute_project": "shop-backend", …},
//	  "variable_keys": {"compute": ["LOG_LEVEL"], "frontend": ["NEXT_PUBLIC_FLAG"]},
//	  "reserved": {"compute": "DATABASE_URL", "frontend": "NEXT_PUBLIC_API_URL"},
//	  "dry_run": false
//	}
//
// # Rules
//
// A module may define a `deny` set and a `warn` set. Deny entries are either
// strings or objects with "message" and an optional "severity"; entries with
// severity error or critical reject the deployment, anything else is
// reported as a warning. Warn entries never block.
//
//	package custom.regions
//
//	import rego.v1
//
//	deny contains msg if {
//	    not input.dry_run
//	    startswith(input.names.frontend_project, "tmp")
//	    msg := "temporary projects may only be deployed with --dry-run"
//	}
//
// # Built-in Policies
//
//  1. resource-naming: names must be lowercase letters, digits, dots or
//     hyphens, start with a letter or digit, and be at most 63 characters
//  2. minimum-confidence: warns when single-platform routing rests on a
//     classification below 30%
//  3. reserved-variables: warns when caller variables collide with
//     DATABASE_URL or NEXT_PUBLIC_API_URL, which the pipeline sets itself
//
// # Hot Reload
//
// Loader.Watch watches policy directories with fsnotify and calls back with
// the re-read policy set; the server passes Engine.SetPolicies.
package policy
