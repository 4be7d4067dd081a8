package retrieval

import "context"

// VectorStore 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（Milvus / MongoDB Atlas / chromem）。
type VectorStore interface {
	// Backend 后端名称，用于指标标签
	Backend() string
	EnsureCollection(ctx context.Context) error
	// Search 按相似度降序返回至多 topK 条；Score 越大越相似
	Search(ctx context.Context, vector []float32, topK int) ([]*StoredChunk, error)
	Insert(ctx context.Context, chunks []*StoredChunk) error
	DeleteBySource(ctx context.Context, source string) error
	// List 返回至多 limit 条切片（不含向量），顺序由后端决定
	List(ctx context.Context, limit int) ([]*StoredChunk, error)
	HealthCheck(ctx context.Context) error
}

// StoredChunk 向量库中的一条文档切片
type StoredChunk struct {
	ID       string
	Source   string
	EntityID string
	Content  string
	Metadata map[string]any
	Vector   []float32
	Score    float32
}
