// Package engine runs order sagas in-process. Each run executes on its own
// goroutine; steps run sequentially with a deadline and are recorded as
// schedule/complete/fail events in the run's history.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/repository"
	apperrors "github.com/utafrali/ordersaga/pkg/errors"
	"github.com/utafrali/ordersaga/pkg/logger"
	"github.com/utafrali/ordersaga/pkg/tracing"
)

const tracerName = "github.com/utafrali/ordersaga/internal/engine"

var (
	// ErrRunExists is returned by Start when the run ID is already taken.
	ErrRunExists = errors.New("run already exists")

	// ErrEngineClosed is returned by Start after Shutdown.
	ErrEngineClosed = errors.New("engine is shut down")
)

// Workflow is the body of a run. A returned error marks the run FAILED.
type Workflow func(wctx *Context, input domain.OrderInput) (domain.OrderOutcome, error)

// CloseHook is called once a run has been closed and saved.
type CloseHook func(ctx context.Context, run *domain.Run)

// defaultAbortGrace covers the closed-run save timeout in execute.
const defaultAbortGrace = 10 * time.Second

// Config holds the engine timeouts.
type Config struct {
	StepTimeout time.Duration
	RunTimeout  time.Duration
}

// DefaultConfig returns a 10s step timeout and a 30s run timeout.
func DefaultConfig() Config {
	return Config{StepTimeout: 10 * time.Second, RunTimeout: 30 * time.Second}
}

// Option configures an Engine.
type Option func(*Engine)

// WithCloseHook registers fn to run after every run closes.
func WithCloseHook(fn CloseHook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, fn) }
}

// WithAbortGrace bounds how long Shutdown waits for cancelled runs to close
// once its own deadline has passed.
func WithAbortGrace(d time.Duration) Option {
	return func(e *Engine) { e.abortGrace = d }
}

// WithClock overrides the clock used for run and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine starts runs and serves their records and histories.
type Engine struct {
	runs    repository.RunStore
	history repository.HistoryStore
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	hooks   []CloseHook
	now     func() time.Time

	abortGrace time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	base   context.Context
	abort  context.CancelFunc
}

// New creates an engine on top of the given stores.
func New(runs repository.RunStore, history repository.HistoryStore, cfg Config, l *slog.Logger, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaults.StepTimeout
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaults.RunTimeout
	}

	base, abort := context.WithCancel(context.Background())
	e := &Engine{
		runs:    runs,
		history: history,
		cfg:     cfg,
		logger:  l,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
		base:    base,
		abort:   abort,

		abortGrace: defaultAbortGrace,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start records a new run and executes wf on its own goroutine. The run
// outlives ctx but keeps its values (logger fields, trace).
func (e *Engine) Start(ctx context.Context, runID string, input domain.OrderInput, wf Workflow) (*domain.Run, error) {
	run := &domain.Run{
		ID:        runID,
		Input:     input,
		Status:    domain.RunStatusRunning,
		StartedAt: e.now(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	if err := e.runs.Create(ctx, run); err != nil {
		e.wg.Done()
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
		}
		return nil, fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RunTimeout)
	stop := context.AfterFunc(e.base, cancel)
	runCtx = logger.WithRunID(runCtx, runID)

	snapshot := *run
	runsInFlight.Inc()
	go func() {
		defer e.wg.Done()
		defer runsInFlight.Dec()
		defer cancel()
		defer stop()
		e.execute(runCtx, run, wf)
	}()

	return &snapshot, nil
}

func (e *Engine) execute(ctx context.Context, run *domain.Run, wf Workflow) {
	ctx, span := e.tracer.Start(ctx, "run.order",
		trace.WithAttributes(attribute.String("run.id", run.ID)),
	)
	l := logger.WithContext(ctx, e.logger)
	wctx := &Context{ctx: ctx, engine: e, runID: run.ID, logger: l}

	input, _ := json.Marshal(run.Input)
	wctx.append(domain.HistoryEvent{Kind: domain.EventWorkflowStarted, Result: input})

	outcome, err := runWorkflow(wf, wctx, run.Input)
	if err == nil {
		err = outcome.Validate()
	}

	closedAt := e.now()
	run.ClosedAt = &closedAt
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		wctx.append(domain.HistoryEvent{Kind: domain.EventWorkflowFailed, Failure: err.Error()})
		l.ErrorContext(ctx, "run failed", slog.String("error", err.Error()))
	} else {
		run.Status = domain.RunStatusCompleted
		run.Outcome = &outcome
		result, _ := json.Marshal(outcome)
		wctx.append(domain.HistoryEvent{Kind: domain.EventWorkflowCompleted, Result: result})
		l.InfoContext(ctx, "run completed", slog.String("outcome", string(outcome.Status)))
	}
	tracing.End(span, err)
	runsClosed.WithLabelValues(string(run.Status)).Inc()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.runs.Save(saveCtx, run); err != nil {
		l.ErrorContext(ctx, "failed to save closed run", slog.String("error", err.Error()))
	}

	for _, hook := range e.hooks {
		hook(saveCtx, run)
	}
}

func runWorkflow(wf Workflow, wctx *Context, input domain.OrderInput) (outcome domain.OrderOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow panic: %v", r)
		}
	}()
	return wf(wctx, input)
}

// Describe returns the run record.
func (e *Engine) Describe(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("describe run: %w", err)
	}
	return run, nil
}

// History returns the run's events in order. An unknown run is ErrNotFound.
func (e *Engine) History(ctx context.Context, runID string) ([]domain.HistoryEvent, error) {
	if _, err := e.runs.Get(ctx, runID); err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	events, err := e.history.List(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	return events, nil
}

// List returns runs newest first with the total count.
func (e *Engine) List(ctx context.Context, offset, limit int) ([]domain.Run, int, error) {
	runs, total, err := e.runs.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return runs, total, nil
}

// Ping checks the run store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.runs.Ping(ctx)
}

// Shutdown stops accepting runs and waits for running ones. If ctx ends
// first, in-flight runs are cancelled and given the abort grace period to
// record their failure and run close hooks before ctx's error is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.abort()
		return nil
	case <-ctx.Done():
		e.abort()
		select {
		case <-done:
		case <-time.After(e.abortGrace):
			e.logger.Warn("runs still closing after abort", slog.Duration("grace", e.abortGrace))
		}
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}
