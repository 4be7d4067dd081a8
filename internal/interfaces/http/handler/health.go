package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck 一项就绪检查
type HealthCheck struct {
	Name string
	// Required 为 false 时失败只标记 degraded，不影响就绪
	Required bool
	Check    func(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	checks  []HealthCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Live 存活检查接口
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready 就绪检查接口
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := true
	degraded := false
	checks := make(map[string]*readinessCheck, len(h.checks))

	for _, hc := range h.checks {
		rc := &readinessCheck{Status: "ok"}
		checks[hc.Name] = rc

		if hc.Check == nil {
			rc.Status = "missing"
			rc.Error = hc.Name + " not configured"
			if hc.Required {
				ready = false
			} else {
				rc.Status = "disabled"
				rc.Error = ""
			}
			continue
		}

		start := time.Now()
		err := hc.Check(ctx)
		rc.LatencyMs = time.Since(start).Milliseconds()
		if err == nil {
			continue
		}
		rc.Error = err.Error()
		if hc.Required {
			rc.Status = "error"
			ready = false
		} else {
			rc.Status = "degraded"
			degraded = true
		}
	}

	resp := readinessResponse{Status: "ok", Checks: checks}
	switch {
	case !ready:
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	case degraded:
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}
