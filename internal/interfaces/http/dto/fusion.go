package dto

import (
	"ell-intel-api/internal/application/fusion"
)

// FusionQueryRequest 融合查询请求
type FusionQueryRequest struct {
	Query string `json:"query" binding:"required,max=5000"`
	// K 超过上限时截断，<=0 取默认值
	K int `json:"k"`
	// IncludeMemories 缺省为 true
	IncludeMemories *bool  `json:"include_memories,omitempty"`
	UserID          string `json:"user_id,omitempty" binding:"max=128"`
	ForceRefresh    bool   `json:"force_refresh,omitempty"`
}

// WantsMemories include_memories 缺省视为 true
func (r *FusionQueryRequest) WantsMemories() bool {
	return r.IncludeMemories == nil || *r.IncludeMemories
}

// FusionMeta 面向前端的派生信息
type FusionMeta struct {
	Cache     string                   `json:"cache,omitempty"`
	Customers []fusion.CustomerSummary `json:"customers"`
	Sources   []string                 `json:"sources"`
}

// NewFusionMeta 由融合结果派生客户摘要与来源列表
func NewFusionMeta(resp *fusion.FusedResponse, cache string) *FusionMeta {
	return &FusionMeta{
		Cache:     cache,
		Customers: fusion.Customers(resp.Records),
		Sources:   SourcesOf(resp.RawChunks),
	}
}

// SourcesOf 片段来源去重，保持首次出现顺序
func SourcesOf(chunks []fusion.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		s := c.SourceLabel()
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ForDisplay 返回记录字段规范化后的副本；缓存中的原值不变
func ForDisplay(resp *fusion.FusedResponse) *fusion.FusedResponse {
	cp := *resp
	cp.Records = fusion.NormalizeRecords(resp.Records)
	return &cp
}

// PurgeResponse 缓存清理结果
type PurgeResponse struct {
	Purged int `json:"purged"`
}
