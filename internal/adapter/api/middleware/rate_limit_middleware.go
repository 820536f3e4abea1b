package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"servicehub/internal/infrastructure/ratelimit"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

// RateLimit throttles requests per client IP.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			allowed, wait := limiter.Allow(ip, ratelimit.ActionRequest)
			if !allowed {
				logger.Warn("Rate limit hit by %s on %s", ip, c.Path())
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return errors.TooManyRequests("Rate limit exceeded", wait.String())
			}
			return next(c)
		}
	}
}
