package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/pkg/tracing"
)

// Context is handed to a Workflow. It is owned by the run's goroutine and is
// not safe for concurrent use.
type Context struct {
	ctx    context.Context
	engine *Engine
	runID  string
	logger *slog.Logger
	nextID int64
}

// Context returns the run context. It is done when the run times out or the
// engine aborts.
func (c *Context) Context() context.Context { return c.ctx }

// RunID returns the ID of the run.
func (c *Context) RunID() string { return c.runID }

// Logger returns a logger tagged with the run ID.
func (c *Context) Logger() *slog.Logger { return c.logger }

// append assigns the next event ID and stores the event. History writes use
// a context detached from the run deadline so a timed-out step is still
// recorded.
func (c *Context) append(event domain.HistoryEvent) (int64, error) {
	c.nextID++
	event.EventID = c.nextID
	event.Timestamp = c.engine.now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), 5*time.Second)
	defer cancel()
	if err := c.engine.history.Append(ctx, c.runID, event); err != nil {
		c.logger.ErrorContext(c.ctx, "failed to append history event",
			slog.String("kind", string(event.Kind)),
			slog.String("step", event.StepName),
			slog.String("error", err.Error()),
		)
		return event.EventID, err
	}
	return event.EventID, nil
}

// StepError reports a failed step. It unwraps to the step's error, so
// errors.Is(err, context.DeadlineExceeded) identifies timeouts.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a step that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// ExecuteStep runs fn as the named step with the engine's step deadline.
// The step runs on the caller's goroutine, so fn must honour ctx. A result
// returned after the deadline is kept: fn decided to apply its effect.
func ExecuteStep[I, O any](wctx *Context, name string, fn func(ctx context.Context, in I) (O, error), in I) (O, error) {
	var zero O
	e := wctx.engine

	scheduledID, err := wctx.append(domain.HistoryEvent{Kind: domain.EventActivityScheduled, StepName: name})
	if err != nil {
		return zero, &StepError{Step: name, Err: fmt.Errorf("record schedule: %w", err)}
	}

	ctx, cancel := context.WithTimeout(wctx.ctx, e.cfg.StepTimeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "step."+name,
		trace.WithAttributes(
			attribute.String("run.id", wctx.runID),
			attribute.String("step.name", name),
		),
	)

	start := time.Now()
	out, err := callStep(ctx, fn, in)
	elapsed := time.Since(start)
	tracing.End(span, err)

	result := "completed"
	switch {
	case err != nil && IsTimeout(err):
		result = "timeout"
	case err != nil:
		result = "failed"
	}
	stepDuration.WithLabelValues(name, result).Observe(elapsed.Seconds())

	if err != nil {
		_, _ = wctx.append(domain.HistoryEvent{
			Kind:             domain.EventActivityFailed,
			StepName:         name,
			ScheduledEventID: scheduledID,
			Failure:          err.Error(),
		})
		wctx.logger.WarnContext(wctx.ctx, "step failed",
			slog.String("step", name),
			slog.String("result", result),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return zero, &StepError{Step: name, Err: err}
	}

	payload, merr := json.Marshal(out)
	if merr != nil {
		payload = nil
	}
	_, _ = wctx.append(domain.HistoryEvent{
		Kind:             domain.EventActivityCompleted,
		StepName:         name,
		ScheduledEventID: scheduledID,
		Result:           payload,
	})
	wctx.logger.DebugContext(wctx.ctx, "step completed",
		slog.String("step", name),
		slog.Duration("duration", elapsed),
	)
	return out, nil
}

func callStep[I, O any](ctx context.Context, fn func(ctx context.Context, in I) (O, error), in I) (out O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panic: %v", r)
		}
	}()
	return fn(ctx, in)
}
