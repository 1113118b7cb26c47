package middleware

import (
	"context"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/VenkataVardineni/flowforge-automations/common/ratelimit"
)

// Limiter is the subset of the rate limiter the middleware depends on
type Limiter interface {
	CheckGlobalLimit(ctx context.Context, limit int64, windowSec int) (*ratelimit.Result, error)
	CheckOrgLimit(ctx context.Context, orgID string, limit int64, windowSec int) (*ratelimit.Result, error)
}

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service to a shared secret to bypass
// rate limits; with no secret configured the bypass is disabled.
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		return false
	}

	return internalHeader == expectedSecret
}

// RunIntakeRateLimit enforces the per-org and global run submission limits.
// Redis trouble fails open: availability of intake wins over strict
// accounting.
func RunIntakeRateLimit(limiter Limiter, policy ratelimit.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			ctx := c.Request().Context()
			window := policy.Window()

			if policy.PerOrg > 0 {
				result, err := limiter.CheckOrgLimit(ctx, intakeKey(c), policy.PerOrg, window)
				if err == nil && !result.Allowed {
					return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
						"error":               "rate_limit_exceeded",
						"retry_after_seconds": result.RetryAfterSeconds,
					})
				}
			}

			if policy.Global > 0 {
				result, err := limiter.CheckGlobalLimit(ctx, policy.Global, window)
				if err == nil && !result.Allowed {
					return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
						"error":               "global_rate_limit_exceeded",
						"retry_after_seconds": result.RetryAfterSeconds,
					})
				}
			}

			return next(c)
		}
	}
}

// intakeKey picks the accounting key for a request: the org when known,
// the user otherwise, one shared anonymous bucket as the last resort.
func intakeKey(c echo.Context) string {
	if orgID, ok := c.Get("org_id").(string); ok && orgID != "" {
		return orgID
	}
	if userID, ok := c.Get("user_id").(string); ok && userID != "" {
		return "user:" + userID
	}
	return "anonymous"
}
