package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/container"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/routes"
	"github.com/VenkataVardineni/flowforge-automations/common/bootstrap"
	"github.com/VenkataVardineni/flowforge-automations/common/repository"
	"github.com/VenkataVardineni/flowforge-automations/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap common components (config, logger, DB, telemetry)
	components, err := bootstrap.Setup(ctx, "runner",
		bootstrap.WithDBInitHook(repository.EnsureSchema),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap runner: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (all services created once)
	c, err := container.New(ctx, components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		components.Shutdown(context.Background())
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	routes.RegisterRunRoutes(e, c)

	// Workers pull submitted runs off the queue and drive them through
	// the engine
	if err := c.Dispatcher.Start(ctx, c.Engine.ExecuteRun); err != nil {
		components.Logger.Error("failed to start run dispatcher", "error", err)
		components.Shutdown(context.Background())
		os.Exit(1)
	}

	components.Logger.Info("runner started",
		"port", components.Config.Service.Port,
		"queue_provider", components.Config.Queue.Provider,
		"workers", components.Config.Queue.Workers,
	)

	// Blocks until a fatal listener error or a shutdown signal
	serveErr := server.New(
		components.Config.Service.Name,
		components.Config.Service.Port,
		e,
		components.Logger,
	).Start()

	// Stop pulling new runs, then wait for in-flight runs to finish
	cancel()
	if err := c.Close(); err != nil {
		components.Logger.Error("container close failed", "error", err)
	}

	if serveErr != nil {
		components.Logger.Error("server stopped with error", "error", serveErr)
		components.Shutdown(context.Background())
		os.Exit(1)
	}

	components.Logger.Info("runner shutting down gracefully")
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": components.Config.Service.Name,
		})
	})
}
