package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sicko7947/reelflow"
)

// Engine orchestrates workflows over one pipeline. It sequences stages, picks
// the resume point from the last checkpoint and decides terminal status.
type Engine struct {
	store    reelflow.CheckpointStore
	pipeline *reelflow.Pipeline
	logger   zerolog.Logger
	clock    reelflow.Clock
	sleep    reelflow.Sleeper
	newID    func() string

	// baseCtx parents asynchronous runs; cancel it to shut the engine down
	baseCtx context.Context

	chains chains

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// EngineOption configures the workflow engine
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the engine
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the time source for persisted timestamps
func WithClock(clock reelflow.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithSleeper replaces retry backoff and unit spacing sleeps
func WithSleeper(sleep reelflow.Sleeper) EngineOption {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithBaseContext sets the context asynchronous runs derive from
func WithBaseContext(ctx context.Context) EngineOption {
	return func(e *Engine) {
		e.baseCtx = ctx
	}
}

// WithIDGenerator sets how new workflow ids are minted
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates a new workflow engine with optional configuration
// If no logger is provided, a default stdout logger with Info level is used
func NewEngine(store reelflow.CheckpointStore, pipeline *reelflow.Pipeline, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if err := pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}

	// Default logger: pretty console output, Info level
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	eng := &Engine{
		store:    store,
		pipeline: pipeline,
		logger:   defaultLogger,
		clock:    reelflow.UTCNow,
		sleep:    reelflow.SleepContext,
		newID:    func() string { return uuid.New().String() },
		baseCtx:  context.Background(),
		active:   make(map[string]struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(eng)
	}

	eng.chains = eng.buildChains()
	return eng, nil
}

// Pipeline returns the pipeline the engine runs
func (e *Engine) Pipeline() *reelflow.Pipeline {
	return e.pipeline
}

// RunOption configures a Start or Resume call
type RunOption func(*runOptions)

type runOptions struct {
	async bool
	reset bool
}

// WithAsync returns as soon as the workflow is RUNNING; stages execute in the
// background under the engine's base context
func WithAsync() RunOption {
	return func(o *runOptions) {
		o.async = true
	}
}

// WithReset lets Resume re-enter a FAILED workflow at its current stage
func WithReset() RunOption {
	return func(o *runOptions) {
		o.reset = true
	}
}

// Create persists a new PENDING workflow for job without running it
func (e *Engine) Create(ctx context.Context, job reelflow.JobSpec) (*reelflow.WorkflowState, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	now := e.clock()
	state := &reelflow.WorkflowState{
		WorkflowID:      e.newID(),
		Status:          reelflow.WorkflowStatusPending,
		CurrentStage:    e.pipeline.Stages()[0],
		CompletedStages: []reelflow.StageName{},
		UnitResults:     make(map[string]*reelflow.UnitResult),
		Job:             job,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	reelflow.LogWorkflowCreated(e.logger, state.WorkflowID, job.Title)
	return state, nil
}

// Start creates a workflow for job and runs it. Without WithAsync it blocks
// until the workflow completes or halts and returns the halt error, if any.
func (e *Engine) Start(ctx context.Context, job reelflow.JobSpec, opts ...RunOption) (string, error) {
	state, err := e.Create(ctx, job)
	if err != nil {
		return "", err
	}
	return state.WorkflowID, e.run(ctx, state.WorkflowID, false, opts...)
}

// Resume re-enters a workflow from its last checkpoint. COMPLETED workflows
// are a no-op. FAILED workflows are rejected with ErrWorkflowFailed unless
// WithReset is given.
func (e *Engine) Resume(ctx context.Context, workflowID string, opts ...RunOption) error {
	return e.run(ctx, workflowID, true, opts...)
}

// Status returns the last persisted state of a workflow
func (e *Engine) Status(ctx context.Context, workflowID string) (*reelflow.WorkflowState, error) {
	return e.store.Load(ctx, workflowID)
}

// List returns workflow summaries from the store
func (e *Engine) List(ctx context.Context, filter reelflow.ListFilter) ([]reelflow.WorkflowSummary, error) {
	return e.store.List(ctx, filter)
}

// IsActive reports whether this engine is currently running workflowID
func (e *Engine) IsActive(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[workflowID]
	return ok
}

// Wait blocks until every asynchronous run has returned
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, workflowID string, resuming bool, opts ...RunOption) error {
	options := &runOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if !e.claim(workflowID) {
		return fmt.Errorf("%w: %s", reelflow.ErrAlreadyRunning, workflowID)
	}

	cp, err := e.prepare(ctx, workflowID, resuming, options.reset)
	if err != nil || cp == nil {
		e.release(workflowID)
		return err
	}

	if !options.async {
		defer e.release(workflowID)
		return e.drive(ctx, cp)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(workflowID)
		_ = e.drive(e.baseCtx, cp)
	}()
	return nil
}

// prepare loads the checkpoint and moves it to RUNNING. A nil checkpointer
// with a nil error means there is nothing to do.
func (e *Engine) prepare(ctx context.Context, workflowID string, resuming, reset bool) (*checkpointer, error) {
	state, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	logger := reelflow.WorkflowLogger(e.logger, workflowID)

	switch state.Status {
	case reelflow.WorkflowStatusCompleted:
		logger.Debug().Msg("Workflow already completed, nothing to resume")
		return nil, nil
	case reelflow.WorkflowStatusFailed:
		if !reset {
			return nil, fmt.Errorf("%w: %s", reelflow.ErrWorkflowFailed, workflowID)
		}
	}

	cp := newCheckpointer(e.store, state, e.clock)

	if state.CurrentStage == "" {
		state.CurrentStage = e.pipeline.Stages()[0]
	}
	if e.pipeline.StageIndex(state.CurrentStage) < 0 {
		werr := reelflow.NewWorkflowError(reelflow.ErrCodeInvalidState,
			fmt.Sprintf("unknown stage %q", state.CurrentStage), state.CurrentStage, e.clock())
		e.halt(ctx, cp, logger, reelflow.WorkflowStatusFailed, werr)
		return nil, werr
	}

	if err := cp.Update(ctx, func(s *reelflow.WorkflowState) {
		s.Status = reelflow.WorkflowStatusRunning
		s.Error = nil
	}); err != nil {
		reelflow.LogCheckpointError(logger, workflowID, "start", err)
		return nil, fmt.Errorf("failed to mark workflow running: %w", err)
	}

	if resuming {
		reelflow.LogWorkflowResumed(logger, workflowID, state.CurrentStage, reset)
	} else {
		reelflow.LogWorkflowStarted(logger, workflowID, state.CurrentStage)
	}
	return cp, nil
}

// drive executes stages from the checkpoint's current stage until the
// workflow completes, halts or ctx is cancelled
func (e *Engine) drive(ctx context.Context, cp *checkpointer) error {
	start := time.Now()
	state := cp.Snapshot()
	workflowID := state.WorkflowID
	logger := reelflow.WorkflowLogger(e.logger, workflowID)
	executor := newStageExecutor(cp, logger, e.sleep, e.clock)

	for {
		stage := cp.Snapshot().CurrentStage

		def, err := e.definition(stage)
		if err != nil {
			werr := reelflow.NewWorkflowError(reelflow.ErrCodeInvalidState, err.Error(), stage, e.clock())
			e.halt(ctx, cp, logger, reelflow.WorkflowStatusFailed, werr)
			return werr
		}

		report, err := executor.Execute(ctx, def)
		if err != nil {
			var cpErr *checkpointError
			if errors.As(err, &cpErr) {
				werr := reelflow.NewWorkflowError(reelflow.ErrCodeCheckpointFailed, cpErr.Error(), stage, e.clock())
				e.halt(ctx, cp, logger, reelflow.WorkflowStatusFailed, werr)
				return werr
			}
			// Interrupted: the workflow stays RUNNING for a later resume
			logger.Warn().Str("stage", stage.String()).Err(err).Msg("Workflow interrupted")
			return err
		}

		switch report.Outcome {
		case reelflow.StageSucceeded:
			next, ok := e.pipeline.NextStage(stage)
			if err := cp.Update(ctx, func(s *reelflow.WorkflowState) {
				if !s.HasCompleted(stage) {
					s.CompletedStages = append(s.CompletedStages, stage)
				}
				if ok {
					s.CurrentStage = next
				} else {
					s.Status = reelflow.WorkflowStatusCompleted
				}
			}); err != nil {
				reelflow.LogCheckpointError(logger, workflowID, "advance_stage", err)
				werr := reelflow.NewWorkflowError(reelflow.ErrCodeCheckpointFailed, err.Error(), stage, e.clock())
				e.halt(ctx, cp, logger, reelflow.WorkflowStatusFailed, werr)
				return werr
			}
			if !ok {
				reelflow.LogWorkflowCompleted(logger, workflowID, time.Since(start))
				return nil
			}

		case reelflow.StagePartiallyFailed:
			werr := reelflow.NewWorkflowError(reelflow.ErrCodeStagePartiallyFailed,
				stageMessage(report), stage, e.clock())
			e.halt(ctx, cp, logger, reelflow.WorkflowStatusPartiallyFailed, werr)
			return werr

		default:
			werr := reelflow.NewWorkflowError(reelflow.ErrCodeStageFailed,
				stageMessage(report), stage, e.clock())
			e.halt(ctx, cp, logger, reelflow.WorkflowStatusFailed, werr)
			return werr
		}
	}
}

// halt records a terminal-for-now status. The write is best effort: when it
// fails the checkpoint keeps its previous status and the error is logged.
func (e *Engine) halt(ctx context.Context, cp *checkpointer, logger zerolog.Logger, status reelflow.WorkflowStatus, werr *reelflow.WorkflowError) {
	if err := cp.Update(ctx, func(s *reelflow.WorkflowState) {
		s.Status = status
		s.Error = werr
	}); err != nil {
		reelflow.LogCheckpointError(logger, cp.Snapshot().WorkflowID, "halt", err)
	}
	reelflow.LogWorkflowHalted(logger, cp.Snapshot().WorkflowID, status, werr)
}

func stageMessage(report StageReport) string {
	msg := fmt.Sprintf("stage %s: %d of %d units succeeded", report.Stage, report.Succeeded, report.Total)
	if report.Aborted {
		msg += " (aborted on fatal error)"
	}
	if report.Cause != "" {
		msg += "; first failure: " + report.Cause
	}
	return msg
}

func (e *Engine) claim(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[workflowID]; ok {
		return false
	}
	e.active[workflowID] = struct{}{}
	return true
}

func (e *Engine) release(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, workflowID)
}
