package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"ell-intel-api/internal/interfaces/http/dto"
	"ell-intel-api/pkg/errors"
	"ell-intel-api/pkg/logger"
	"ell-intel-api/pkg/metrics"
)

// Recovery 捕获处理器 panic，记录堆栈并返回 500 错误体。
// http.ErrAbortHandler 原样抛出，由 net/http 中断连接
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if ok && stderrors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			if !ok {
				err = fmt.Errorf("%v", rec)
			}

			path := c.FullPath()
			if path == "" {
				path = "unmatched"
			}
			metrics.HTTPPanicsTotal.WithLabelValues(path).Inc()
			logger.Error(c.Request.Context(), "panic recovered", err,
				"stack", string(debug.Stack()),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			// 已开始写响应时只能中止
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
				Code:    http.StatusInternalServerError,
				Message: "internal server error",
				Error:   &dto.ErrorDetail{ErrorCode: string(errors.CodeInternalError)},
				TraceID: c.GetString("trace_id"),
			})
		}()

		c.Next()
	}
}
