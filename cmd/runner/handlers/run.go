package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/dispatch"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/engine"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/middleware"
	"github.com/VenkataVardineni/flowforge-automations/common/logger"
	"github.com/VenkataVardineni/flowforge-automations/common/models"
	"github.com/VenkataVardineni/flowforge-automations/common/repository"
)

// RunStore is the run repository surface the handlers consume
type RunStore interface {
	Create(ctx context.Context, workflowID uuid.UUID, orgID, triggeredBy *uuid.UUID) (*models.Run, error)
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	List(ctx context.Context, workflowID *uuid.UUID, limit int) ([]*models.Run, error)
}

// StepStore is the step repository surface the handlers consume
type StepStore interface {
	GetByID(ctx context.Context, runID, stepID uuid.UUID) (*models.StepRun, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.StepRun, error)
}

// RunHandler handles run intake and lookups
type RunHandler struct {
	runs       RunStore
	dispatcher dispatch.Dispatcher
	cancels    *engine.CancelRegistry
	log        *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs RunStore, dispatcher dispatch.Dispatcher, cancels *engine.CancelRegistry, log *logger.Logger) *RunHandler {
	return &RunHandler{
		runs:       runs,
		dispatcher: dispatcher,
		cancels:    cancels,
		log:        log.WithComponent("handlers"),
	}
}

type createRunRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// CreateRun persists a pending run and hands it to the worker pool
// POST /runs
func (h *RunHandler) CreateRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req createRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	workflowID, err := uuid.Parse(req.WorkflowID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "workflow_id must be a valid uuid",
		})
	}

	// Identity headers are forwarded by the gateway; a malformed org or
	// user id is treated as absent rather than rejected.
	orgID := parseOptionalUUID(middleware.GetOrgID(c))
	triggeredBy := parseOptionalUUID(middleware.GetUserID(c))

	run, err := h.runs.Create(ctx, workflowID, orgID, triggeredBy)
	if err != nil {
		h.log.Error("failed to create run", "workflow_id", workflowID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to create run",
		})
	}

	if err := h.dispatcher.Submit(ctx, run.ID); err != nil {
		h.log.Error("failed to submit run", "run_id", run.ID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to submit run for execution",
		})
	}

	h.log.Info("created run", "run_id", run.ID.String(), "workflow_id", workflowID.String())
	return c.JSON(http.StatusCreated, run)
}

// GetRun retrieves a run by id
// GET /runs/:id
func (h *RunHandler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "run id must be a valid uuid",
		})
	}

	run, err := h.runs.GetByID(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Run not found",
		})
	}
	if err != nil {
		h.log.Error("failed to fetch run", "run_id", runID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch run",
		})
	}

	return c.JSON(http.StatusOK, run)
}

// ListRuns lists runs, optionally filtered by workflow
// GET /runs?workflow_id=&limit=
func (h *RunHandler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	var workflowID *uuid.UUID
	if raw := c.QueryParam("workflow_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "workflow_id must be a valid uuid",
			})
		}
		workflowID = &parsed
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "limit must be an integer",
			})
		}
		limit = parsed
	}

	runs, err := h.runs.List(ctx, workflowID, limit)
	if err != nil {
		h.log.Error("failed to list runs", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list runs",
		})
	}
	if runs == nil {
		runs = []*models.Run{}
	}

	return c.JSON(http.StatusOK, runs)
}

// CancelRun flags a run for cancellation at its next node boundary
// POST /runs/:id/cancel
func (h *RunHandler) CancelRun(c echo.Context) error {
	ctx := c.Request().Context()

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "run id must be a valid uuid",
		})
	}

	run, err := h.runs.GetByID(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Run not found",
		})
	}
	if err != nil {
		h.log.Error("failed to fetch run", "run_id", runID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch run",
		})
	}

	if run.Status.Terminal() {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": fmt.Sprintf("run is already %s", run.Status),
		})
	}

	h.cancels.Request(runID)
	h.log.Info("cancellation requested", "run_id", runID.String())

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"run_id": runID.String(),
		"status": "cancelling",
	})
}

func parseOptionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &parsed
}
