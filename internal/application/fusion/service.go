package fusion

import (
	"context"
	"strings"
	"time"

	"ell-intel-api/internal/infrastructure/cache"
	"ell-intel-api/pkg/errors"
	"ell-intel-api/pkg/logger"
)

// QueryRequest 对外查询参数
type QueryRequest struct {
	Query           string
	K               int
	IncludeMemories bool
	UserID          string
	ForceRefresh    bool
}

// Service 带缓存的融合查询
type Service struct {
	engine *Engine
	cache  *cache.ResponseCache[*FusedResponse]
	ttl    time.Duration
	turns  TurnRecorder
}

// NewService 创建查询服务；turns 为 nil 时不回写记忆
func NewService(engine *Engine, responses *cache.ResponseCache[*FusedResponse], ttl time.Duration, turns TurnRecorder) *Service {
	return &Service{engine: engine, cache: responses, ttl: ttl, turns: turns}
}

// Query 先查缓存，未命中或强制刷新时执行融合
func (s *Service) Query(ctx context.Context, req QueryRequest) (*FusedResponse, cache.Outcome, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, "", errors.ErrInvalidParam.WithDetail("query is required")
	}
	k := s.engine.ClampK(req.K)
	identity := strings.TrimSpace(req.UserID)
	// 不召回记忆时身份不影响结果
	includeMemories := req.IncludeMemories && identity != ""
	if !includeMemories {
		identity = ""
	}

	in := FuseInput{Query: query, K: k, IncludeMemories: includeMemories, Identity: identity}
	compute := func(ctx context.Context) (*FusedResponse, error) {
		resp, err := s.engine.Fuse(ctx, in)
		if err != nil {
			return nil, err
		}
		s.recordTurn(ctx, identity, resp)
		return resp, nil
	}

	if s.cache == nil {
		resp, err := compute(ctx)
		return resp, cache.OutcomeMiss, err
	}

	key := CacheKey(query, k, includeMemories, identity)
	resp, outcome, err := s.cache.GetOrCompute(ctx, key, s.ttl, req.ForceRefresh, compute)
	if err != nil {
		return nil, outcome, err
	}
	logger.Debug(ctx, "fusion query served", "cache", string(outcome), "records", resp.RecordCount())
	return resp, outcome, nil
}

// Retrieve 只检索与合并，不生成回答，不走缓存
func (s *Service) Retrieve(ctx context.Context, req QueryRequest) (*FusedResponse, error) {
	return s.engine.Fuse(ctx, FuseInput{
		Query:           req.Query,
		K:               req.K,
		IncludeMemories: req.IncludeMemories,
		Identity:        req.UserID,
		SkipGeneration:  true,
	})
}

// PurgeCache 清空响应缓存
func (s *Service) PurgeCache() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Purge()
}

// recordTurn 回写失败只记日志，不影响查询
func (s *Service) recordTurn(ctx context.Context, userID string, resp *FusedResponse) {
	if s.turns == nil || userID == "" {
		return
	}
	if resp.Answer == FallbackAnswer || resp.Answer == NoContextAnswer || resp.Answer == "" {
		return
	}
	if err := s.turns.RecordTurn(ctx, userID, resp.Query, resp.Answer); err != nil {
		logger.Warn(ctx, "failed to record conversation turn", "error", err.Error())
	}
}
