package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Workflow  WorkflowConfig
	Executors ExecutorConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig holds run-submission queue settings
type QueueConfig struct {
	Provider string // "memory" or "redis"
	Workers  int
}

// WorkflowConfig holds workflow definition service settings
type WorkflowConfig struct {
	ServiceURL   string
	FetchTimeout time.Duration
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ExecutorConfig holds node executor settings
type ExecutorConfig struct {
	BlockPrivateNetworks bool
}

// RateLimitConfig holds intake rate limiting settings
type RateLimitConfig struct {
	Enabled    bool
	PerOrg     int64
	Global     int64
	WindowSecs int
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8090),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			MaxConns:    getEnvInt("DB_MAX_CONNS", 20),
			MinConns:    getEnvInt("DB_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("DB_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Provider: getEnv("QUEUE_PROVIDER", "memory"),
			Workers:  getEnvInt("QUEUE_WORKERS", 4),
		},
		Workflow: WorkflowConfig{
			ServiceURL:   getEnv("WORKFLOW_SERVICE_URL", "http://workflow-service:8080"),
			FetchTimeout: getEnvDuration("WORKFLOW_FETCH_TIMEOUT", 10*time.Second),
			CacheEnabled: getEnvBool("WORKFLOW_CACHE_ENABLED", false),
			CacheTTL:     getEnvDuration("WORKFLOW_CACHE_TTL", 30*time.Second),
		},
		Executors: ExecutorConfig{
			BlockPrivateNetworks: getEnvBool("HTTP_BLOCK_PRIVATE_NETWORKS", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getEnvBool("RATE_LIMIT_ENABLED", false),
			PerOrg:     int64(getEnvInt("RATE_LIMIT_PER_ORG", 60)),
			Global:     int64(getEnvInt("RATE_LIMIT_GLOBAL", 600)),
			WindowSecs: getEnvInt("RATE_LIMIT_WINDOW_SECS", 60),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("TELEMETRY_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Workflow.ServiceURL == "" {
		return fmt.Errorf("WORKFLOW_SERVICE_URL is required")
	}

	switch c.Queue.Provider {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue provider: %s", c.Queue.Provider)
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be >= 1")
	}

	return nil
}

// RedisAddr returns the host:port address for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
