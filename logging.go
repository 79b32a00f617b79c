package reelflow

import (
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Workflow-level events
	EventWorkflowCreated         = "workflow_created"
	EventWorkflowStarted         = "workflow_started"
	EventWorkflowResumed         = "workflow_resumed"
	EventWorkflowCompleted       = "workflow_completed"
	EventWorkflowFailed          = "workflow_failed"
	EventWorkflowPartiallyFailed = "workflow_partially_failed"

	// Stage-level events
	EventStageStarted  = "stage_started"
	EventStageFinished = "stage_finished"

	// Unit-level events
	EventUnitSucceeded    = "unit_succeeded"
	EventUnitFailed       = "unit_failed"
	EventUnitRetrying     = "unit_retrying"
	EventProviderFallback = "provider_fallback"

	// Persistence events
	EventCheckpointError = "checkpoint_error"
)

// LogWorkflowCreated logs when a workflow record is first persisted
func LogWorkflowCreated(logger zerolog.Logger, workflowID, title string) {
	logger.Info().
		Str("event", EventWorkflowCreated).
		Str("workflow_id", workflowID).
		Str("title", title).
		Msg("Workflow created")
}

// LogWorkflowStarted logs when a workflow begins running
func LogWorkflowStarted(logger zerolog.Logger, workflowID string, stage StageName) {
	logger.Info().
		Str("event", EventWorkflowStarted).
		Str("workflow_id", workflowID).
		Str("stage", stage.String()).
		Msg("Workflow started")
}

// LogWorkflowResumed logs when a workflow is re-entered from its checkpoint
func LogWorkflowResumed(logger zerolog.Logger, workflowID string, stage StageName, reset bool) {
	logger.Info().
		Str("event", EventWorkflowResumed).
		Str("workflow_id", workflowID).
		Str("stage", stage.String()).
		Bool("reset", reset).
		Msg("Workflow resumed")
}

// LogWorkflowCompleted logs successful workflow completion
func LogWorkflowCompleted(logger zerolog.Logger, workflowID string, duration time.Duration) {
	logger.Info().
		Str("event", EventWorkflowCompleted).
		Str("workflow_id", workflowID).
		Dur("duration", duration).
		Msg("Workflow completed")
}

// LogWorkflowHalted logs a FAILED or PARTIALLY_FAILED halt
func LogWorkflowHalted(logger zerolog.Logger, workflowID string, status WorkflowStatus, werr *WorkflowError) {
	event := EventWorkflowFailed
	if status == WorkflowStatusPartiallyFailed {
		event = EventWorkflowPartiallyFailed
	}
	e := logger.Error().
		Str("event", event).
		Str("workflow_id", workflowID).
		Str("status", status.String())
	if werr != nil {
		e = e.Str("code", werr.Code).Str("stage", werr.Stage.String()).Str("error", werr.Message)
	}
	e.Msg("Workflow halted")
}

// LogStageStarted logs stage entry with the remaining unit count
func LogStageStarted(logger zerolog.Logger, stage StageName, total, remaining int) {
	logger.Info().
		Str("event", EventStageStarted).
		Str("stage", stage.String()).
		Int("total_units", total).
		Int("remaining_units", remaining).
		Msg("Stage started")
}

// LogStageFinished logs the stage outcome
func LogStageFinished(logger zerolog.Logger, stage StageName, outcome StageOutcome, succeeded, failed int) {
	logger.Info().
		Str("event", EventStageFinished).
		Str("stage", stage.String()).
		Str("outcome", outcome.String()).
		Int("succeeded_units", succeeded).
		Int("failed_units", failed).
		Msg("Stage finished")
}

// LogUnitSucceeded logs a unit persisted as SUCCEEDED
func LogUnitSucceeded(logger zerolog.Logger, unit, provider string, attempts int, durationMs int64) {
	logger.Info().
		Str("event", EventUnitSucceeded).
		Str("unit", unit).
		Str("provider", provider).
		Int("attempts", attempts).
		Int64("duration_ms", durationMs).
		Msg("Unit succeeded")
}

// LogUnitFailed logs a unit persisted as FAILED
func LogUnitFailed(logger zerolog.Logger, unit string, err error, attempts int) {
	logger.Error().
		Str("event", EventUnitFailed).
		Str("unit", unit).
		Err(err).
		Int("attempts", attempts).
		Msg("Unit failed")
}

// LogUnitRetrying logs a retry about to back off
func LogUnitRetrying(logger zerolog.Logger, provider string, attempt int, delay time.Duration, err error) {
	logger.Warn().
		Str("event", EventUnitRetrying).
		Str("provider", provider).
		Int("attempt", attempt).
		Dur("delay", delay).
		Err(err).
		Msg("Unit retrying")
}

// LogProviderFallback logs a fall-through to the next backend
func LogProviderFallback(logger zerolog.Logger, from, to string, err error) {
	logger.Warn().
		Str("event", EventProviderFallback).
		Str("provider", from).
		Str("next_provider", to).
		Err(err).
		Msg("Falling back to next provider")
}

// LogCheckpointError logs errors during checkpoint writes or reads
func LogCheckpointError(logger zerolog.Logger, workflowID, operation string, err error) {
	logger.Error().
		Str("event", EventCheckpointError).
		Str("workflow_id", workflowID).
		Str("operation", operation).
		Err(err).
		Msg("Checkpoint error")
}

// WorkflowLogger creates a logger enriched with workflow context
func WorkflowLogger(baseLogger zerolog.Logger, workflowID string) zerolog.Logger {
	return baseLogger.With().
		Str("workflow_id", workflowID).
		Logger()
}

// StageLogger creates a logger enriched with stage context
func StageLogger(workflowLogger zerolog.Logger, stage StageName) zerolog.Logger {
	return workflowLogger.With().
		Str("stage", stage.String()).
		Logger()
}
