package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ell-intel-api/pkg/metrics"
)

// Metrics 按路由模板记录请求数、耗时与响应大小；skipPaths（如 /metrics 自身）不计
func Metrics(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		// 未匹配路由统一归到一个标签，防止扫描请求撑爆基数
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		metrics.HTTPRequestsInFlight.Inc()
		start := time.Now()
		c.Next()
		metrics.HTTPRequestsInFlight.Dec()

		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
