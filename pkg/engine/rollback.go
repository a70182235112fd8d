package engine

import (
	"context"

	"github.com/trinitydeploy/trinity/pkg/telemetry"
)

// rollback deletes every tracked resource newest first and returns the
// annotated failure. Individual delete failures are reported and skipped.
func (o *Orchestrator) rollback(ctx context.Context, r *run, cause error) error {
	de := asDeployError(cause)
	r.transition(RunStateRollingBack)

	ctx, span := o.tracer.StartSpan(ctx, "deploy.rollback",
		telemetry.AttrRunID.String(r.id),
		telemetry.AttrPlatform.String(string(de.Platform)),
	)

	resources := r.tracker.Reverse()
	re := r.emitter.Sub(RollbackSteps(len(resources)))
	re.Error(PlatformSystem, "deployment failed: %v; initiating rollback", de)

	r.logger.Warn().
		Err(de.Err).
		Str("stage", string(de.Stage)).
		Int("resources", len(resources)).
		Msg("rolling back")

	var leftover []TrackedResource
	for _, res := range resources {
		re.Info(res.Platform, "deleting %s", res.Label())

		err := o.adapters.Delete(ctx, res)
		o.metrics.RecordRollbackDeletion(string(res.Platform), string(res.Kind), err)
		if err != nil {
			leftover = append(leftover, res)
			telemetry.AddResourceEvent(span, res.ID, "rollback.delete_failed", err.Error())
			r.logger.Error().Err(err).
				Str("platform", string(res.Platform)).
				Str("kind", string(res.Kind)).
				Str("resource_id", res.ID).
				Msg("rollback delete failed")
			re.Error(res.Platform, "failed to delete %s: %v", res.Label(), err)
			continue
		}
		if err := r.tracker.Release(ctx, res); err != nil {
			r.logger.Warn().Err(err).Str("resource_id", res.ID).Msg("failed to update resource ledger")
		}
		re.Done(res.Platform, "%s deleted successfully", res.Label())
	}

	// Leftovers stay with the observer so they can be cleaned up later.
	if len(leftover) == 0 {
		if err := r.tracker.Clear(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("failed to clear resource ledger")
		}
	} else {
		r.tracker.Reset()
	}

	if len(leftover) == 0 {
		re.Emit(PlatformSystem, EventLevelInfo, true, "rollback completed")
	} else {
		re.Emit(PlatformSystem, EventLevelWarning, true, "rollback completed with errors; manual cleanup required")
	}

	r.transition(RunStateFailed)

	de.RollbackAttempted = true
	de.RollbackCompleted = len(leftover) == 0
	de.Leftover = leftover
	de.State = r.state
	telemetry.EndSpan(span, cause)
	return de
}
