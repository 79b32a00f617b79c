package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/engine"
)

// handleCreate creates a workflow and starts it in the background
func (s *Server) handleCreate(c fiber.Ctx) error {
	var job reelflow.JobSpec
	if err := c.Bind().JSON(&job); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	workflowID, err := s.engine.Start(c.Context(), job, engine.WithAsync())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to start workflow")
		return s.errorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflowId": workflowID,
		"status":     reelflow.WorkflowStatusRunning,
		"message":    "Workflow started",
	})
}

// handleResume re-enters a workflow from its last checkpoint
func (s *Server) handleResume(c fiber.Ctx) error {
	workflowID := c.Params("id")

	opts := []engine.RunOption{engine.WithAsync()}
	if reset, _ := strconv.ParseBool(c.Query("reset")); reset {
		opts = append(opts, engine.WithReset())
	}

	if err := s.engine.Resume(c.Context(), workflowID, opts...); err != nil {
		s.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Failed to resume workflow")
		return s.errorResponse(c, err)
	}

	state, err := s.engine.Status(c.Context(), workflowID)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflowId": workflowID,
		"status":     state.Status,
	})
}

// handleStatus returns the last persisted state of a workflow
func (s *Server) handleStatus(c fiber.Ctx) error {
	workflowID := c.Params("id")

	state, err := s.engine.Status(c.Context(), workflowID)
	if err != nil {
		s.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Failed to get workflow")
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"summary": state.Summary(),
		"state":   state,
	})
}

// handleList returns workflow summaries, optionally filtered by status
func (s *Server) handleList(c fiber.Ctx) error {
	var filter reelflow.ListFilter

	if raw := c.Query("status"); raw != "" {
		status := reelflow.WorkflowStatus(raw)
		if !status.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown status " + raw,
			})
		}
		filter.Status = &status
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a non-negative integer",
			})
		}
		filter.Limit = limit
	}

	summaries, err := s.engine.List(c.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list workflows")
		return s.errorResponse(c, err)
	}
	if summaries == nil {
		summaries = []reelflow.WorkflowSummary{}
	}

	return c.JSON(fiber.Map{
		"workflows": summaries,
		"count":     len(summaries),
	})
}

// errorResponse maps engine and store errors onto HTTP status codes
func (s *Server) errorResponse(c fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, reelflow.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, reelflow.ErrInvalidJob):
		return fiber.StatusBadRequest
	case errors.Is(err, reelflow.ErrWorkflowFailed), errors.Is(err, reelflow.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errors.Is(err, reelflow.ErrCorrupt):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
