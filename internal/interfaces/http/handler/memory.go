package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ell-intel-api/internal/interfaces/http/dto"
	"ell-intel-api/pkg/errors"
)

const defaultMemoryLimit = 5

// MemoryClient MemMachine 客户端能力
type MemoryClient interface {
	Search(ctx context.Context, userID, query string, limit int) (any, error)
	Add(ctx context.Context, userID, content string) (any, error)
	HealthCheck(ctx context.Context) error
	Endpoint() string
}

// MemoryHandler 长期记忆处理器；client 为 nil 表示未启用
type MemoryHandler struct {
	client MemoryClient
}

// NewMemoryHandler 创建记忆处理器
func NewMemoryHandler(client MemoryClient) *MemoryHandler {
	return &MemoryHandler{client: client}
}

func (h *MemoryHandler) available(c *gin.Context) bool {
	if h.client == nil {
		writeError(c, errors.ErrMemoryUnavailable.WithDetail("memmachine is not enabled"))
		return false
	}
	return true
}

// Add 写入记忆
// @Router /v1/memories [post]
func (h *MemoryHandler) Add(c *gin.Context) {
	var req dto.AddMemoryRequest
	if !bindJSON(c, &req) || !h.available(c) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(c, errors.ErrInvalidParam.WithDetail("content is empty"))
		return
	}

	result, err := h.client.Add(c.Request.Context(), resolveUserID(c, req.UserID), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.MemoryResult{Success: true, Result: result})
}

// Search 检索记忆
// @Router /v1/memories/search [post]
func (h *MemoryHandler) Search(c *gin.Context) {
	var req dto.SearchMemoryRequest
	if !bindJSON(c, &req) || !h.available(c) {
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultMemoryLimit
	}

	result, err := h.client.Search(c.Request.Context(), resolveUserID(c, req.UserID), req.Query, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.MemoryResult{Success: true, Result: result})
}

// Health MemMachine 连通性，总是 200
// @Router /v1/memories/health [get]
func (h *MemoryHandler) Health(c *gin.Context) {
	if h.client == nil {
		c.JSON(http.StatusOK, dto.MemoryHealthResponse{Status: "disabled", Message: "memmachine is not enabled"})
		return
	}

	resp := dto.MemoryHealthResponse{MCPEndpoint: h.client.Endpoint()}
	if err := h.client.HealthCheck(c.Request.Context()); err != nil {
		resp.Status = "disconnected"
		resp.Message = "failed to reach the MemMachine MCP server"
		resp.Error = err.Error()
	} else {
		resp.Status = "connected"
		resp.Message = "MemMachine MCP server is running"
	}
	c.JSON(http.StatusOK, resp)
}
