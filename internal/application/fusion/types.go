// Package fusion 实现上下文融合：并发召回文档与长期记忆，按实体合并、构建回答上下文
package fusion

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// SourceKind 片段来源
type SourceKind string

const (
	SourceDocument SourceKind = "DOCUMENT"
	SourceMemory   SourceKind = "MEMORY"
)

// Chunk 一条召回片段
// Content 总是存在（可为空串），Metadata 可为空但不为 nil
type Chunk struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	SourceKind SourceKind     `json:"source_kind"`

	// 以下仅用于诊断与上下文标注
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// NewChunk 创建片段，nil metadata 归一为空 map
func NewChunk(kind SourceKind, content string, metadata map[string]any) Chunk {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Chunk{Content: content, Metadata: metadata, SourceKind: kind}
}

// MarshalJSON 非有限浮点数无法编码为 JSON，输出时置为 null
func (c Chunk) MarshalJSON() ([]byte, error) {
	type alias Chunk
	out := alias(c)
	out.Metadata = sanitizeMetadata(c.Metadata)
	if math.IsNaN(out.Score) || math.IsInf(out.Score, 0) {
		out.Score = 0
	}
	return json.Marshal(out)
}

func sanitizeMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = sanitizeAny(v)
	}
	return out
}

func sanitizeAny(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case map[string]any:
		return sanitizeMetadata(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = sanitizeAny(x[i])
		}
		return out
	}
	return v
}

// SourceLabel 片段出处：优先 Source，其次 metadata.source
func (c Chunk) SourceLabel() string {
	if s := strings.TrimSpace(c.Source); s != "" {
		return s
	}
	if s, ok := c.Metadata["source"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// EntityRecord 同一实体（客户）的合并视图
type EntityRecord struct {
	EntityID           string           `json:"entity_id"`
	Fields             map[string]Value `json:"fields"`
	ContributingChunks int              `json:"contributing_chunks"`
}

// Field 读取字段，不存在时返回 Absent
func (r EntityRecord) Field(name string) Value {
	return r.Fields[name]
}

// FusedResponse 一次融合的结果；写入缓存后视为只读
type FusedResponse struct {
	Query     string         `json:"query"`
	Answer    string         `json:"answer"`
	Records   []EntityRecord `json:"records"`
	RawChunks []Chunk        `json:"raw_chunks"`
	Degraded  bool           `json:"degraded"`
}

// RecordCount 合并后的实体数
func (r *FusedResponse) RecordCount() int { return len(r.Records) }

// ChunkCount 原始片段数
func (r *FusedResponse) ChunkCount() int { return len(r.RawChunks) }

// MarshalJSON 计数字段在编码时由切片长度算出，不单独存储
func (r FusedResponse) MarshalJSON() ([]byte, error) {
	records := r.Records
	if records == nil {
		records = []EntityRecord{}
	}
	chunks := r.RawChunks
	if chunks == nil {
		chunks = []Chunk{}
	}
	return json.Marshal(struct {
		Query       string         `json:"query"`
		Answer      string         `json:"answer"`
		Records     []EntityRecord `json:"records"`
		RawChunks   []Chunk        `json:"raw_chunks"`
		Degraded    bool           `json:"degraded"`
		RecordCount int            `json:"record_count"`
		ChunkCount  int            `json:"chunk_count"`
	}{
		Query:       r.Query,
		Answer:      r.Answer,
		Records:     records,
		RawChunks:   chunks,
		Degraded:    r.Degraded,
		RecordCount: len(records),
		ChunkCount:  len(chunks),
	})
}

// String 便于日志输出
func (r *FusedResponse) String() string {
	return fmt.Sprintf("FusedResponse{records=%d chunks=%d degraded=%t}", r.RecordCount(), r.ChunkCount(), r.Degraded)
}
