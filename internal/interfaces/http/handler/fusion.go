package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"ell-intel-api/internal/application/fusion"
	"ell-intel-api/internal/infrastructure/cache"
	"ell-intel-api/internal/interfaces/http/dto"
)

// CacheHeader 响应缓存来源
const CacheHeader = "X-Cache"

// FusionService 融合查询服务
type FusionService interface {
	Query(ctx context.Context, req fusion.QueryRequest) (*fusion.FusedResponse, cache.Outcome, error)
	Retrieve(ctx context.Context, req fusion.QueryRequest) (*fusion.FusedResponse, error)
	PurgeCache() int
}

// FusionHandler 融合查询处理器
type FusionHandler struct {
	svc FusionService
}

// NewFusionHandler 创建融合查询处理器
func NewFusionHandler(svc FusionService) *FusionHandler {
	return &FusionHandler{svc: svc}
}

func toQueryRequest(c *gin.Context, req *dto.FusionQueryRequest) fusion.QueryRequest {
	return fusion.QueryRequest{
		Query:           req.Query,
		K:               req.K,
		IncludeMemories: req.WantsMemories(),
		UserID:          resolveUserID(c, req.UserID),
		ForceRefresh:    req.ForceRefresh,
	}
}

// Query 融合查询（带响应缓存）
// @Summary 融合查询
// @Tags Fusion
// @Accept json
// @Produce json
// @Param body body dto.FusionQueryRequest true "查询"
// @Success 200 {object} dto.Response[fusion.FusedResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/fusion/query [post]
func (h *FusionHandler) Query(c *gin.Context) {
	var req dto.FusionQueryRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, outcome, err := h.svc.Query(c.Request.Context(), toQueryRequest(c, &req))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(CacheHeader, string(outcome))
	dto.SuccessWithMeta(c, dto.ForDisplay(resp), dto.NewFusionMeta(resp, string(outcome)))
}

// Retrieve 只返回合并后的记录与片段，不生成回答
// @Router /v1/fusion/retrieve [post]
func (h *FusionHandler) Retrieve(c *gin.Context) {
	var req dto.FusionQueryRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Retrieve(c.Request.Context(), toQueryRequest(c, &req))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.SuccessWithMeta(c, dto.ForDisplay(resp), dto.NewFusionMeta(resp, ""))
}

// PurgeCache 清空进程内响应缓存
// @Router /v1/fusion/cache [delete]
func (h *FusionHandler) PurgeCache(c *gin.Context) {
	dto.Success(c, dto.PurgeResponse{Purged: h.svc.PurgeCache()})
}
