package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
	"github.com/VenkataVardineni/flowforge-automations/common/models"
	"github.com/VenkataVardineni/flowforge-automations/common/repository"
)

// StepHandler handles step run lookups
type StepHandler struct {
	runs  RunStore
	steps StepStore
	log   *logger.Logger
}

// NewStepHandler creates a new step handler
func NewStepHandler(runs RunStore, steps StepStore, log *logger.Logger) *StepHandler {
	return &StepHandler{
		runs:  runs,
		steps: steps,
		log:   log.WithComponent("handlers"),
	}
}

// ListSteps lists all step runs for a run, ordered by started_at
// GET /runs/:id/steps
func (h *StepHandler) ListSteps(c echo.Context) error {
	ctx := c.Request().Context()

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "run id must be a valid uuid",
		})
	}

	if _, err := h.runs.GetByID(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "Run not found",
			})
		}
		h.log.Error("failed to fetch run", "run_id", runID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch run",
		})
	}

	steps, err := h.steps.ListByRun(ctx, runID)
	if err != nil {
		h.log.Error("failed to list steps", "run_id", runID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list steps",
		})
	}
	if steps == nil {
		steps = []*models.StepRun{}
	}

	return c.JSON(http.StatusOK, steps)
}

// GetStep retrieves one step run scoped to its run
// GET /runs/:id/steps/:step_id
func (h *StepHandler) GetStep(c echo.Context) error {
	ctx := c.Request().Context()

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "run id must be a valid uuid",
		})
	}
	stepID, err := uuid.Parse(c.Param("step_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "step id must be a valid uuid",
		})
	}

	step, err := h.steps.GetByID(ctx, runID, stepID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Step run not found",
		})
	}
	if err != nil {
		h.log.Error("failed to fetch step", "run_id", runID.String(), "step_id", stepID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch step",
		})
	}

	return c.JSON(http.StatusOK, step)
}
