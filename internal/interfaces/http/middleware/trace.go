package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/pkg/logger"
)

// untracedPaths 探活与指标抓取不产生 span
var untracedPaths = map[string]struct{}{
	"/health":  {},
	"/live":    {},
	"/ready":   {},
	"/metrics": {},
}

// Trace otelgin 追踪，跳过探活路径
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			_, skip := untracedPaths[r.URL.Path]
			return !skip
		}),
	)
}

// TraceContext 把 trace_id 写入日志上下文与 X-Trace-ID，并给 span 补充请求 ID 与用户
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if !sc.IsValid() {
			c.Next()
			return
		}

		traceID := sc.TraceID().String()
		c.Set("trace_id", traceID)
		c.Header(TraceIDHeader, traceID)

		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String())
		c.Request = c.Request.WithContext(ctx)

		if id := c.GetString("request_id"); id != "" {
			span.SetAttributes(attribute.String("http.request_id", id))
		}
		if user := c.GetString("user_id"); user != "" {
			span.SetAttributes(attribute.String("enduser.id", user))
		}

		c.Next()

		if cacheOutcome := c.Writer.Header().Get(CacheHeader); cacheOutcome != "" {
			span.SetAttributes(attribute.String("fusion.cache", cacheOutcome))
		}
	}
}
