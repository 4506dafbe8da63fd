package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/gymledger/internal/adminkey"
	"github.com/smallbiznis/gymledger/internal/observability/logger"
	"go.uber.org/zap"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKeyRequired gates a route group behind the admin key, configured
// either in plain text or as an Argon2id hash. With no key configured the
// admin surface answers 404.
func (s *Server) AdminKeyRequired() gin.HandlerFunc {
	expected := strings.TrimSpace(s.cfg.AdminAPIKey)
	return func(c *gin.Context) {
		if expected == "" {
			AbortWithError(c, ErrNotFound)
			return
		}

		provided := strings.TrimSpace(c.GetHeader(adminKeyHeader))
		if !adminkey.Matches(provided, expected) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}

// RegistrationRateLimit throttles the public signup endpoints per client IP.
// A limiter failure lets the request through.
func (s *Server) RegistrationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.signupLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.signupLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("registration rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			s.obsMetrics.RecordRateLimited(ctx, normalizeRateLimitEndpoint(c))
			logger.FromContext(ctx).Warn("registration rate limit exceeded",
				zap.String("endpoint", normalizeRateLimitEndpoint(c)),
			)
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
