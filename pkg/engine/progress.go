package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Step totals for the progress counters.
const (
	// FullPipelineSteps covers classification (1), database (2),
	// compute (4), frontend (4) and the terminal event (1).
	FullPipelineSteps = 12

	// SingleStepsDatabase, SingleStepsCompute and SingleStepsFrontend are
	// the totals for single-platform runs: classification, the stage and
	// the terminal event.
	SingleStepsDatabase = 4
	SingleStepsCompute  = 6
	SingleStepsFrontend = 6
)

// RollbackSteps returns the rollback counter total for n resources.
func RollbackSteps(n int) int {
	return 2*n + 2
}

// Emitter numbers and publishes progress events for a single run.
type Emitter struct {
	sink  ProgressSink
	total int
	step  int
	now   func() time.Time
}

// NewEmitter creates an emitter with its own counter. A nil sink drops events.
func NewEmitter(sink ProgressSink, total int) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{
		sink:  sink,
		total: total,
		now:   time.Now,
	}
}

// Sub returns an emitter on the same sink with an independent counter.
func (e *Emitter) Sub(total int) *Emitter {
	return &Emitter{
		sink:  e.sink,
		total: total,
		now:   e.now,
	}
}

// Step returns the number of events emitted so far.
func (e *Emitter) Step() int {
	return e.step
}

// Total returns the expected number of steps.
func (e *Emitter) Total() int {
	return e.total
}

// Emit increments the counter and publishes one event.
func (e *Emitter) Emit(platform Platform, level EventLevel, completed bool, message string) {
	e.step++
	e.publish(e.step, platform, level, completed, message)
}

// Info emits an informational event.
func (e *Emitter) Info(platform Platform, format string, args ...any) {
	e.Emit(platform, EventLevelInfo, false, fmt.Sprintf(format, args...))
}

// Done emits a stage completion event.
func (e *Emitter) Done(platform Platform, format string, args ...any) {
	e.Emit(platform, EventLevelInfo, true, fmt.Sprintf(format, args...))
}

// Warn emits a warning event.
func (e *Emitter) Warn(platform Platform, format string, args ...any) {
	e.Emit(platform, EventLevelWarning, false, fmt.Sprintf(format, args...))
}

// Error emits an error event.
func (e *Emitter) Error(platform Platform, format string, args ...any) {
	e.Emit(platform, EventLevelError, false, fmt.Sprintf(format, args...))
}

// Finish emits the terminal system event. On a run that followed its
// cadence this is the event where Step reaches Total.
func (e *Emitter) Finish(message string) {
	e.Emit(PlatformSystem, EventLevelInfo, true, message)
}

func (e *Emitter) publish(step int, platform Platform, level EventLevel, completed bool, message string) {
	e.sink.Publish(ProgressEvent{
		Step:      step,
		Total:     e.total,
		Message:   message,
		Platform:  platform,
		Level:     level,
		Timestamp: e.now().UTC(),
		Completed: completed,
	})
}

// NopSink discards every event.
type NopSink struct{}

// Publish implements ProgressSink.
func (NopSink) Publish(ProgressEvent) {}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

// Publish implements ProgressSink.
func (s LogSink) Publish(ev ProgressEvent) {
	var evt *zerolog.Event
	switch ev.Level {
	case EventLevelError:
		evt = s.Logger.Error()
	case EventLevelWarning:
		evt = s.Logger.Warn()
	default:
		evt = s.Logger.Info()
	}
	evt.Str("platform", string(ev.Platform)).
		Int("step", ev.Step).
		Int("total", ev.Total).
		Bool("completed", ev.Completed).
		Msg(ev.Message)
}

// FuncSink adapts a function to ProgressSink.
type FuncSink func(ProgressEvent)

// Publish implements ProgressSink.
func (f FuncSink) Publish(ev ProgressEvent) {
	f(ev)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []ProgressSink

// Publish implements ProgressSink.
func (m MultiSink) Publish(ev ProgressEvent) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// ChannelSink forwards events to a buffered channel. When the buffer is
// full or the sink is closed, events are dropped rather than blocking the run.
type ChannelSink struct {
	mu      sync.Mutex
	ch      chan ProgressEvent
	closed  bool
	dropped int
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan ProgressEvent, buffer)}
}

// Events returns the receive side of the channel.
func (c *ChannelSink) Events() <-chan ProgressEvent {
	return c.ch
}

// Publish implements ProgressSink.
func (c *ChannelSink) Publish(ev ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.dropped++
		return
	}
	select {
	case c.ch <- ev:
	default:
		c.dropped++
	}
}

// Close closes the channel. Later publishes are dropped.
func (c *ChannelSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Dropped returns the number of events that were not delivered.
func (c *ChannelSink) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
