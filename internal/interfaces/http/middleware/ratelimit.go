// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ell-intel-api/internal/interfaces/http/dto"
	"ell-intel-api/pkg/errors"
	"ell-intel-api/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// RequestsPerSecond 每个窗口允许的请求数
	RequestsPerSecond int
	// Window 滑动窗口长度，默认 1s
	Window time.Duration
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	BuildRateLimitKey(caller, endpoint string) string
}

// RateLimit 限流中间件；按 user_id 分桶，无身份时按客户端 IP
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}

	return func(c *gin.Context) {
		caller := c.GetString("user_id")
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		allowed, err := limiter.Allow(c.Request.Context(), limiter.BuildRateLimitKey(caller, endpoint), cfg.RequestsPerSecond, cfg.Window)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable, allowing request", "error", err.Error())
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "rate limit exceeded",
				Error:   &dto.ErrorDetail{ErrorCode: string(errors.CodeTooManyRequests)},
				TraceID: c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
