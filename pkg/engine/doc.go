// Package engine provides the deployment orchestrator and its domain types.
//
// # Overview
//
// A deployment run moves through a fixed sequence:
//
//  1. Validate - Check the request and parse the repository reference
//  2. Classify - Ask the Classifier for a category and runtime metadata
//  3. Admit - Evaluate the PolicyGate before anything is created
//  4. Provision - Database, then compute, then frontend (or one platform in single mode)
//  5. Succeed - Clear the tracker and emit the final completion event
//
// Any provisioning failure triggers rollback: every resource recorded by the
// run's Tracker is deleted newest first, delete failures are reported and
// skipped, and the run ends with a *DeployError describing the cause and
// whether cleanup completed.
//
// # Propagation
//
// The database connection URI is written to the compute service as
// DATABASE_URL and the backend URL is written to the frontend project as
// NEXT_PUBLIC_API_URL. Propagated values always replace caller-supplied
// values for the same key.
//
// # Progress
//
// Each run owns an Emitter that numbers events from 1. The full pipeline
// emits exactly FullPipelineSteps events, the last being a terminal system
// event whose Step equals Total. Rollback uses a separate counter sized
// RollbackSteps(n).
//
// # Concurrency
//
// An Orchestrator is safe for concurrent use. Runs share no mutable state,
// and once provisioning starts a run ignores cancellation of the caller's
// context so that it always reaches success or a completed rollback.
package engine
