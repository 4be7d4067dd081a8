// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/internal/application/retrieval"
)

// Repository 客户切片向量仓储，实现 retrieval.VectorStore
type Repository struct {
	client *Client
	dim    int
}

var _ retrieval.VectorStore = (*Repository)(nil)

// NewRepository 创建向量检索仓储
func NewRepository(client *Client, dim int) *Repository {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &Repository{client: client, dim: dim}
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return retrieval.ErrVectorDisabled
	}
	return nil
}

// Backend 后端名称
func (r *Repository) Backend() string { return "milvus" }

// HealthCheck 健康检查
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.client.HealthCheck(ctx)
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, fieldVector, idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// EnsureCollection 确保 customer_chunks 集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}

	exists, err := r.client.HasCollection(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, CustomerChunksSchema(r.dim)); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.CreateIndex(ctx, CollectionCustomerChunks)
	}

	// 尝试确保集合已加载（若已加载，Milvus 会返回成功）
	return r.client.LoadCollection(ctx)
}

// Search 检索客户切片。COSINE 度量下 Milvus 返回的分数即相似度。
func (r *Repository) Search(ctx context.Context, vector []float32, topK int) ([]*retrieval.StoredChunk, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	if topK <= 0 {
		return []*retrieval.StoredChunk{}, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(r.client.searchEf())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		r.client.chunks(),
		nil,
		"",
		[]string{fieldID, fieldSource, fieldEntityID, fieldText},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*retrieval.StoredChunk
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sc := decodeRow(result.Fields, i)
			sc.Score = result.Scores[i]
			out = append(out, sc)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// List 按主键非空条件浏览切片
func (r *Repository) List(ctx context.Context, limit int) ([]*retrieval.StoredChunk, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.List",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if limit <= 0 {
		return []*retrieval.StoredChunk{}, nil
	}

	rs, err := r.client.milvus.Query(ctx,
		r.client.chunks(),
		nil,
		fmt.Sprintf(`%s != ""`, fieldID),
		[]string{fieldID, fieldSource, fieldEntityID, fieldText},
		client.WithLimit(int64(limit)),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	n := 0
	if col := rs.GetColumn(fieldID); col != nil {
		n = col.Len()
	}
	out := make([]*retrieval.StoredChunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, decodeRow(rs, i))
	}
	return out, nil
}

// Insert 写入切片
func (r *Repository) Insert(ctx context.Context, chunks []*retrieval.StoredChunk) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Insert",
		trace.WithAttributes(attribute.Int("count", len(chunks))))
	defer span.End()

	cols := buildColumns(chunks, r.dim)
	if cols == nil {
		return nil
	}

	_, err := r.client.milvus.Insert(ctx, r.client.chunks(), "", cols...)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// DeleteBySource 删除某一来源的全部切片
func (r *Repository) DeleteBySource(ctx context.Context, source string) error {
	if err := r.ready(); err != nil {
		return err
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteBySource",
		trace.WithAttributes(attribute.String("source", source)))
	defer span.End()

	if err := r.client.milvus.Delete(ctx, r.client.chunks(), "", sourceFilter(source)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// RebuildIndex 重建索引
func (r *Repository) RebuildIndex(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.RebuildIndex")
	defer span.End()

	collName := r.client.chunks()

	// 1. 释放集合
	if err := r.client.milvus.ReleaseCollection(ctx, collName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release collection: %w", err)
	}

	// 2. 删除旧索引（不存在时忽略）
	_ = r.client.milvus.DropIndex(ctx, collName, fieldVector)

	// 3. 创建新索引
	if err := r.CreateIndex(ctx, CollectionCustomerChunks); err != nil {
		return err
	}

	// 4. 重新加载集合
	return r.client.LoadCollection(ctx)
}

type columnGetter interface {
	GetColumn(fieldName string) entity.Column
}

func decodeRow(cols columnGetter, i int) *retrieval.StoredChunk {
	sc := &retrieval.StoredChunk{}
	if col, ok := cols.GetColumn(fieldID).(*entity.ColumnVarChar); ok {
		sc.ID = col.Data()[i]
	}
	if col, ok := cols.GetColumn(fieldSource).(*entity.ColumnVarChar); ok {
		sc.Source = col.Data()[i]
	}
	if col, ok := cols.GetColumn(fieldEntityID).(*entity.ColumnVarChar); ok {
		sc.EntityID = col.Data()[i]
	}
	if col, ok := cols.GetColumn(fieldText).(*entity.ColumnVarChar); ok {
		meta, body := retrieval.DecodeChunkText(col.Data()[i])
		sc.Content = body
		sc.Metadata = meta.Fields
		// 兼容：历史数据可能没有独立列，回退使用 meta 头部
		if sc.Source == "" {
			sc.Source = meta.Source
		}
		if sc.EntityID == "" {
			sc.EntityID = meta.EntityID
		}
	}
	return sc
}

func buildColumns(chunks []*retrieval.StoredChunk, dim int) []entity.Column {
	ids := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	sources := make([]string, 0, len(chunks))
	entityIDs := make([]string, 0, len(chunks))
	texts := make([]string, 0, len(chunks))

	for _, c := range chunks {
		if c == nil {
			continue
		}
		ids = append(ids, c.ID)
		vectors = append(vectors, c.Vector)
		sources = append(sources, c.Source)
		entityIDs = append(entityIDs, c.EntityID)
		texts = append(texts, retrieval.EncodeChunkText(retrieval.ChunkMeta{
			Source:   c.Source,
			EntityID: c.EntityID,
			Fields:   c.Metadata,
		}, c.Content))
	}
	if len(ids) == 0 {
		return nil
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnVarChar(fieldEntityID, entityIDs),
		entity.NewColumnVarChar(fieldText, texts),
	}
}

func sourceFilter(source string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(source)
	return fmt.Sprintf(`%s == "%s"`, fieldSource, escaped)
}
