package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/provider"
)

// UnitOutput is what a unit's work produced
type UnitOutput struct {
	Artifact reelflow.ArtifactRef
	Result   provider.Result

	// Apply records extra state (e.g. the generated script) in the same
	// checkpoint write that marks the unit SUCCEEDED
	Apply func(state *reelflow.WorkflowState)
}

// UnitWork runs one unit against the stage's provider chain. input is the
// state as it was when the stage was entered.
type UnitWork func(ctx context.Context, input *reelflow.WorkflowState, unit Unit) (UnitOutput, error)

// StageDefinition binds a stage name to its configuration, unit set and work
type StageDefinition struct {
	Name   reelflow.StageName
	Config reelflow.StageConfig

	// Units lists every required unit of the stage, derived from upstream state
	Units func(input *reelflow.WorkflowState) ([]Unit, error)

	Work UnitWork
}

// StageReport is the outcome of one Execute call
type StageReport struct {
	Stage     reelflow.StageName
	Outcome   reelflow.StageOutcome
	Total     int
	Succeeded int
	Failed    int
	Pending   int
	Attempted int
	Aborted   bool

	// Cause explains a non-successful outcome
	Cause string
}

// errAbort stops the controller after a fatal unit under abort-on-first-fatal
var errAbort = errors.New("stage aborted on fatal unit error")

// checkpointError marks a failed checkpoint write; it is fatal to the stage
type checkpointError struct {
	err error
}

func (e *checkpointError) Error() string { return fmt.Sprintf("failed to persist unit result: %v", e.err) }
func (e *checkpointError) Unwrap() error { return e.err }

// StageExecutor runs a single stage, persisting each unit outcome as it lands
type StageExecutor struct {
	checkpoint *checkpointer
	logger     zerolog.Logger
	sleep      reelflow.Sleeper
	clock      reelflow.Clock
}

func newStageExecutor(cp *checkpointer, logger zerolog.Logger, sleep reelflow.Sleeper, clock reelflow.Clock) *StageExecutor {
	return &StageExecutor{checkpoint: cp, logger: logger, sleep: sleep, clock: clock}
}

// Execute drives def from NOT_STARTED to a final outcome. Units already
// SUCCEEDED in the checkpoint are skipped. The returned error is non-nil only
// for cancellation or a failed checkpoint write; unit failures are reported
// through the outcome.
func (x *StageExecutor) Execute(ctx context.Context, def StageDefinition) (StageReport, error) {
	report := StageReport{Stage: def.Name, Outcome: reelflow.StageNotStarted}
	logger := reelflow.StageLogger(x.logger, def.Name)

	input := x.checkpoint.Snapshot()
	units, err := def.Units(input)
	if err != nil {
		report.Outcome = reelflow.StageFailed
		report.Cause = err.Error()
		return report, nil
	}
	report.Total = len(units)

	if err := x.checkpoint.Update(ctx, func(s *reelflow.WorkflowState) {
		s.CurrentStage = def.Name
		s.TotalUnits = len(units)
	}); err != nil {
		report.Outcome = reelflow.StageFailed
		return report, &checkpointError{err: err}
	}

	var remaining []Unit
	for _, u := range units {
		if !input.UnitResults[u.Key].Succeeded() {
			remaining = append(remaining, u)
		}
	}

	report.Outcome = reelflow.StageInProgress
	reelflow.LogStageStarted(logger, def.Name, len(units), len(remaining))

	var (
		mu         sync.Mutex
		firstCause string
	)

	controller := NewController(def.Config.Concurrency, x.sleep)
	runErr := controller.Run(ctx, remaining, func(ctx context.Context, unit Unit) error {
		start := time.Now()
		out, workErr := def.Work(ctx, input, unit)

		// An abandoned call is not an outcome; the unit stays as last persisted
		if workErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		result := &reelflow.UnitResult{
			Stage:          def.Name,
			Index:          unit.Index,
			Attempts:       out.Result.TotalAttempts(),
			ProvidersTried: out.Result.Providers(),
			UpdatedAt:      x.clock(),
		}
		if prev := input.UnitResults[unit.Key]; prev != nil {
			result.Attempts += prev.Attempts
		}

		if workErr == nil {
			ref := out.Artifact
			result.Status = reelflow.UnitStatusSucceeded
			result.ArtifactRef = &ref
			result.Provider = out.Result.ServedBy
		} else {
			result.Status = reelflow.UnitStatusFailed
			result.LastError = workErr.Error()
		}

		if err := x.checkpoint.Update(ctx, func(s *reelflow.WorkflowState) {
			s.UnitResults[unit.Key] = result
			if workErr == nil && out.Apply != nil {
				out.Apply(s)
			}
		}); err != nil {
			reelflow.LogCheckpointError(logger, input.WorkflowID, "save_unit", err)
			return &checkpointError{err: err}
		}

		mu.Lock()
		report.Attempted++
		mu.Unlock()

		if workErr == nil {
			reelflow.LogUnitSucceeded(logger, unit.Key, result.Provider, result.Attempts, time.Since(start).Milliseconds())
			return nil
		}

		reelflow.LogUnitFailed(logger, unit.Key, workErr, result.Attempts)
		mu.Lock()
		if firstCause == "" {
			firstCause = fmt.Sprintf("unit %s: %v", unit.Key, workErr)
		}
		mu.Unlock()

		if def.Config.AbortOnFatal && reelflow.IsFatalRequest(workErr) {
			return fmt.Errorf("%w: %s", errAbort, unit.Key)
		}
		return nil
	})

	var cpErr *checkpointError
	switch {
	case errors.As(runErr, &cpErr):
		report.Outcome = reelflow.StageFailed
		report.Cause = cpErr.Error()
		return report, cpErr
	case errors.Is(runErr, errAbort):
		report.Aborted = true
	case runErr != nil:
		x.tally(&report, units)
		report.Outcome = reelflow.StageInProgress
		return report, fmt.Errorf("stage %s interrupted: %w", def.Name, runErr)
	}

	x.tally(&report, units)
	report.Cause = firstCause
	report.Outcome = decideOutcome(def.Config.FailurePolicy, report)

	reelflow.LogStageFinished(logger, def.Name, report.Outcome, report.Succeeded, report.Failed)
	return report, nil
}

// tally counts unit statuses from the last persisted state
func (x *StageExecutor) tally(report *StageReport, units []Unit) {
	state := x.checkpoint.Snapshot()
	report.Succeeded, report.Failed, report.Pending = 0, 0, 0
	for _, u := range units {
		r := state.UnitResults[u.Key]
		switch {
		case r.Succeeded():
			report.Succeeded++
		case r != nil && r.Status == reelflow.UnitStatusFailed:
			report.Failed++
		default:
			report.Pending++
		}
	}
}

func decideOutcome(policy reelflow.FailurePolicy, report StageReport) reelflow.StageOutcome {
	if report.Succeeded == report.Total {
		return reelflow.StageSucceeded
	}
	if report.Aborted || policy != reelflow.FailureBestEffort {
		return reelflow.StageFailed
	}
	if report.Succeeded > 0 {
		return reelflow.StagePartiallyFailed
	}
	return reelflow.StageFailed
}
