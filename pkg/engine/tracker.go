package engine

import (
	"context"
	"fmt"
)

// Tracker is the ordered ledger of resources created by one run.
// It is owned by a single run and is not safe for concurrent use.
type Tracker struct {
	runID     string
	resources []TrackedResource
	observer  ResourceObserver
}

// NewTracker creates an empty tracker. A nil observer is allowed.
func NewTracker(runID string, observer ResourceObserver) *Tracker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Tracker{
		runID:    runID,
		observer: observer,
	}
}

// Track appends a resource. It must only be called after the platform
// confirmed creation. The resource is recorded even when the observer
// fails; the observer error is returned for logging.
func (t *Tracker) Track(ctx context.Context, res TrackedResource) error {
	if res.ID == "" {
		return fmt.Errorf("cannot track %s %s without an id", res.Platform, res.Kind)
	}
	if err := res.Kind.Validate(res.Platform); err != nil {
		return err
	}
	t.resources = append(t.resources, res)
	if err := t.observer.ResourceTracked(ctx, t.runID, res); err != nil {
		return fmt.Errorf("resource observer: %w", err)
	}
	return nil
}

// Reverse returns the tracked resources newest first.
func (t *Tracker) Reverse() []TrackedResource {
	out := make([]TrackedResource, len(t.resources))
	for i, res := range t.resources {
		out[len(t.resources)-1-i] = res
	}
	return out
}

// Resources returns the tracked resources in creation order.
func (t *Tracker) Resources() []TrackedResource {
	out := make([]TrackedResource, len(t.resources))
	copy(out, t.resources)
	return out
}

// Len returns the number of tracked resources.
func (t *Tracker) Len() int {
	return len(t.resources)
}

// Release removes a resource that rollback deleted and notifies the
// observer.
func (t *Tracker) Release(ctx context.Context, res TrackedResource) error {
	for i, r := range t.resources {
		if r == res {
			t.resources = append(t.resources[:i], t.resources[i+1:]...)
			break
		}
	}
	if err := t.observer.ResourceDeleted(ctx, t.runID, res); err != nil {
		return fmt.Errorf("resource observer: %w", err)
	}
	return nil
}

// Reset empties the tracker without notifying the observer.
func (t *Tracker) Reset() {
	t.resources = nil
}

// Clear empties the tracker and notifies the observer.
func (t *Tracker) Clear(ctx context.Context) error {
	t.resources = nil
	if err := t.observer.TrackerCleared(ctx, t.runID); err != nil {
		return fmt.Errorf("resource observer: %w", err)
	}
	return nil
}
