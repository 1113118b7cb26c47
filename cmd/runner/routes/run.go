package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/container"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/handlers"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/middleware"
	commonmw "github.com/VenkataVardineni/flowforge-automations/common/middleware"
)

// RegisterRunRoutes registers run intake, lookup, streaming and cancel routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	log := c.Components.Logger

	runHandler := handlers.NewRunHandler(c.RunRepo, c.Dispatcher, c.Cancels, log)
	stepHandler := handlers.NewStepHandler(c.RunRepo, c.StepRepo, log)
	streamHandler := handlers.NewStreamHandler(c.RunRepo, c.StepRepo, c.Bus, log)

	// Writes are role gated; intake is additionally rate limited per org
	// when a limiter is configured
	requireRole := middleware.RequireRole(middleware.RoleOwner, middleware.RoleAdmin, middleware.RoleMember)
	intake := []echo.MiddlewareFunc{requireRole}
	if c.RateLimiter != nil {
		intake = append(intake, commonmw.RunIntakeRateLimit(c.RateLimiter, c.RatePolicy))
	}

	runs := e.Group("/runs")
	runs.Use(middleware.ExtractIdentity())
	{
		runs.POST("", runHandler.CreateRun, intake...)              // POST /runs
		runs.GET("", runHandler.ListRuns)                           // GET /runs?workflow_id=&limit=
		runs.GET("/:id", runHandler.GetRun)                         // GET /runs/{run_id}
		runs.POST("/:id/cancel", runHandler.CancelRun, requireRole) // POST /runs/{run_id}/cancel
		runs.GET("/:id/steps", stepHandler.ListSteps)               // GET /runs/{run_id}/steps
		runs.GET("/:id/steps/:step_id", stepHandler.GetStep)        // GET /runs/{run_id}/steps/{step_id}
		runs.GET("/:id/events", streamHandler.StreamEvents)         // GET /runs/{run_id}/events (SSE)
	}
}
