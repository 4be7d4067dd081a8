package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel/attribute"

	"ell-intel-api/internal/application/fusion"
	"ell-intel-api/pkg/metrics"
	"ell-intel-api/pkg/tracer"
)

const defaultEntityIDField = "customer_id"

// Retriever 文档向量检索：查询向量化 → 向量库 TopK → 解码为融合片段
type Retriever struct {
	embedder embedding.Embedder
	store    VectorStore

	entityIDField string
}

var _ fusion.VectorRetriever = (*Retriever)(nil)

// NewRetriever 创建检索器；entityIDField 为空时使用 customer_id
func NewRetriever(embedder embedding.Embedder, store VectorStore, entityIDField string) *Retriever {
	f := strings.TrimSpace(entityIDField)
	if f == "" {
		f = defaultEntityIDField
	}
	return &Retriever{embedder: embedder, store: store, entityIDField: f}
}

func (r *Retriever) Enabled() bool {
	return r != nil && r.embedder != nil && r.store != nil
}

// Search 返回按相似度降序的文档片段，长度不超过 k
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]fusion.Chunk, error) {
	if !r.Enabled() {
		return nil, ErrVectorDisabled
	}
	if k <= 0 {
		return []fusion.Chunk{}, nil
	}

	backend := r.store.Backend()
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer span.End()
	span.SetAttributes(attribute.String("vector.backend", backend), attribute.Int("top_k", k))

	start := time.Now()
	results, err := r.search(ctx, query, k)
	metrics.VectorSearchDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VectorSearchTotal.WithLabelValues(backend, "error").Inc()
		tracer.RecordError(span, err)
		return nil, err
	}
	metrics.VectorSearchTotal.WithLabelValues(backend, "success").Inc()

	out := make([]fusion.Chunk, 0, len(results))
	for _, sc := range results {
		if sc == nil {
			continue
		}
		out = append(out, r.toChunk(sc))
		if len(out) == k {
			break
		}
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func (r *Retriever) search(ctx context.Context, query string, k int) ([]*StoredChunk, error) {
	emb, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrVectorUnavailable, err)
	}
	results, err := r.store.Search(ctx, emb, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %s search: %w", ErrVectorUnavailable, r.store.Backend(), err)
	}
	return results, nil
}

// List 浏览已索引的切片，供文档管理接口使用
func (r *Retriever) List(ctx context.Context, limit int) ([]fusion.Chunk, error) {
	if r == nil || r.store == nil {
		return nil, ErrVectorDisabled
	}
	stored, err := r.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s list: %w", ErrVectorUnavailable, r.store.Backend(), err)
	}
	out := make([]fusion.Chunk, 0, len(stored))
	for _, sc := range stored {
		if sc != nil {
			out = append(out, r.toChunk(sc))
		}
	}
	return out, nil
}

// HealthCheck 检查向量库连通性
func (r *Retriever) HealthCheck(ctx context.Context) error {
	if r == nil || r.store == nil {
		return ErrVectorDisabled
	}
	return r.store.HealthCheck(ctx)
}

func (r *Retriever) toChunk(sc *StoredChunk) fusion.Chunk {
	meta := make(map[string]any, len(sc.Metadata)+1)
	for k, v := range sc.Metadata {
		meta[k] = v
	}
	// 兼容：元信息缺少实体 ID 时回退使用独立字段
	if _, ok := meta[r.entityIDField]; !ok && strings.TrimSpace(sc.EntityID) != "" {
		meta[r.entityIDField] = sc.EntityID
	}

	c := fusion.NewChunk(fusion.SourceDocument, strings.TrimSpace(sc.Content), meta)
	c.Source = strings.TrimSpace(sc.Source)
	c.Score = float64(sc.Score)
	return c
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("query is empty")
	}
	v64, err := r.embedder.EmbedStrings(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 || len(v64[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return toFloat32(v64[0]), nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, 0, len(vec))
	for _, x := range vec {
		out = append(out, float32(x))
	}
	return out
}
