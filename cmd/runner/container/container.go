package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/dispatch"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/engine"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/events"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/executor"
	"github.com/VenkataVardineni/flowforge-automations/cmd/runner/security"
	"github.com/VenkataVardineni/flowforge-automations/common/bootstrap"
	"github.com/VenkataVardineni/flowforge-automations/common/cache"
	"github.com/VenkataVardineni/flowforge-automations/common/clients"
	"github.com/VenkataVardineni/flowforge-automations/common/ratelimit"
	rediscommon "github.com/VenkataVardineni/flowforge-automations/common/redis"
	"github.com/VenkataVardineni/flowforge-automations/common/repository"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components
	Redis      *rediscommon.Client
	RedisRaw   *redis.Client

	// Repositories
	RunRepo  *repository.RunRepository
	StepRepo *repository.StepRunRepository

	// Services
	WorkflowClient *clients.WorkflowClient
	Bus            *events.Bus
	Registry       *executor.Registry
	Cancels        *engine.CancelRegistry
	Engine         *engine.Engine
	Dispatcher     dispatch.Dispatcher
	RateLimiter    *ratelimit.RateLimiter
	RatePolicy     ratelimit.Policy

	defCache cache.Cache
}

// New initializes all services and repositories once
func New(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	redisRaw := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisRaw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info("connected to redis", "addr", cfg.RedisAddr())

	redisClient := rediscommon.NewClient(redisRaw, log)

	// Repositories
	runRepo := repository.NewRunRepository(components.DB)
	stepRepo := repository.NewStepRunRepository(components.DB)

	// Workflow definition client, optionally backed by an in-memory cache
	var defCache cache.Cache
	if cfg.Workflow.CacheEnabled {
		defCache = cache.NewMemoryCache(log)
	}
	workflowClient := clients.NewWorkflowClient(cfg.Workflow.ServiceURL, cfg.Workflow.FetchTimeout, log, defCache, cfg.Workflow.CacheTTL)

	// Node executors. The URL guard applies to the httpRequest executor
	// and blocks private and loopback targets when enabled.
	var guard *security.URLValidator
	if cfg.Executors.BlockPrivateNetworks {
		guard = security.NewURLValidator()
	}
	registry := executor.NewRegistry(log, guard)

	bus := events.NewBus(log)
	cancels := engine.NewCancelRegistry()

	eng := engine.New(engine.Opts{
		Runs:     runRepo,
		Steps:    stepRepo,
		Fetcher:  workflowClient,
		Registry: registry,
		Bus:      bus,
		Cancels:  cancels,
		Logger:   log,
	})

	var dispatcher dispatch.Dispatcher
	switch cfg.Queue.Provider {
	case "redis":
		dispatcher = dispatch.NewRedisDispatcher(redisClient, cfg.Queue.Workers, log)
	default:
		dispatcher = dispatch.NewMemoryDispatcher(cfg.Queue.Workers, log)
	}
	log.Info("initialized run dispatcher",
		"provider", cfg.Queue.Provider,
		"workers", cfg.Queue.Workers,
	)

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRateLimiter(redisRaw, log)
	}

	return &Container{
		Components:     components,
		Redis:          redisClient,
		RedisRaw:       redisRaw,
		RunRepo:        runRepo,
		StepRepo:       stepRepo,
		WorkflowClient: workflowClient,
		Bus:            bus,
		Registry:       registry,
		Cancels:        cancels,
		Engine:         eng,
		Dispatcher:     dispatcher,
		RateLimiter:    limiter,
		RatePolicy: ratelimit.Policy{
			PerOrg:        cfg.RateLimit.PerOrg,
			Global:        cfg.RateLimit.Global,
			WindowSeconds: cfg.RateLimit.WindowSecs,
		},
		defCache: defCache,
	}, nil
}

// Close stops the dispatcher, waits for in-flight runs, then releases
// the remaining connections
func (c *Container) Close() error {
	var errs []error

	if err := c.Dispatcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close dispatcher: %w", err))
	}
	if c.defCache != nil {
		if err := c.defCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close definition cache: %w", err))
		}
	}
	if err := c.RedisRaw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("container close errors: %v", errs)
	}
	return nil
}
