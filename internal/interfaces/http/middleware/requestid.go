// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ell-intel-api/pkg/logger"
)

const (
	// RequestIDHeader 请求 ID 头；同一 ID 会随记忆回写消息进入 memory-writer 日志
	RequestIDHeader = "X-Request-ID"
	// UserIDHeader 调用方声明的用户身份，仅用于记忆召回与限流分桶
	UserIDHeader = "X-User-ID"

	maxRequestIDLen = 64
	maxUserIDLen    = 128
)

// RequestContext 注入 request_id 与 user_id（gin 上下文与日志上下文）。不做认证
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !validHeaderID(requestID, maxRequestIDLen) {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		ctx := logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID)

		if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); validHeaderID(userID, maxUserIDLen) {
			c.Set("user_id", userID)
			ctx = logger.WithContext(ctx, logger.UserIDKey, userID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// validHeaderID 只接受可打印 ASCII，避免换行等字符进入日志与 Redis 消息
func validHeaderID(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
