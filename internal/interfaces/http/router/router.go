// Package router 提供 HTTP 路由配置
package router

import (
	"ell-intel-api/internal/config"
	"ell-intel-api/internal/interfaces/http/handler"
	"ell-intel-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Health   *handler.HealthHandler
	Fusion   *handler.FusionHandler
	Document *handler.DocumentHandler
	Memory   *handler.MemoryHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestContext())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.metricsPath()))
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点不限流
	if h.Health != nil {
		r.engine.GET("/health", h.Health.Health)
		r.engine.GET("/ready", h.Health.Ready)
		r.engine.GET("/live", h.Health.Live)
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
		Window:            r.cfg.Security.RateLimit.Window,
	}, r.limiter))

	if h.Fusion != nil {
		fusion := v1.Group("/fusion")
		{
			fusion.POST("/query", h.Fusion.Query)
			fusion.POST("/retrieve", h.Fusion.Retrieve)
			fusion.DELETE("/cache", h.Fusion.PurgeCache)
		}
	}

	if h.Document != nil {
		documents := v1.Group("/documents")
		{
			documents.POST("", h.Document.Add)
			documents.GET("", h.Document.List)
			documents.DELETE("", h.Document.Delete)
			documents.POST("/search", h.Document.Search)
		}
	}

	if h.Memory != nil {
		memories := v1.Group("/memories")
		{
			memories.POST("", h.Memory.Add)
			memories.POST("/search", h.Memory.Search)
			memories.GET("/health", h.Memory.Health)
		}
	}
}

func (r *Router) metricsPath() string {
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}
