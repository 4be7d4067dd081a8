package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	// TraceIDHeader 响应中的 trace id
	TraceIDHeader = "X-Trace-ID"
	// CacheHeader 融合查询的缓存结果 hit|miss|shared|refresh
	CacheHeader = "X-Cache"
)

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// CORS 跨域中间件。浏览器端看板需要读取 X-Cache 与 X-Trace-ID；
// 允许任意来源时不携带凭据
func CORS(cfg CORSConfig) gin.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", "Authorization"}
	}
	for _, h := range []string{RequestIDHeader, UserIDHeader} {
		if !slices.Contains(headers, h) {
			headers = append(headers, h)
		}
	}

	anyOrigin := slices.Contains(origins, "*")
	c := cors.Config{
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    []string{RequestIDHeader, TraceIDHeader, CacheHeader},
		AllowCredentials: !anyOrigin,
		MaxAge:           12 * time.Hour,
	}
	if anyOrigin {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}
