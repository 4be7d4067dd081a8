// Package chromem 提供内嵌向量库实现，用于本地开发与单机部署
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/internal/application/retrieval"
	"ell-intel-api/internal/config"
)

var tracer = otel.Tracer("chromem")

const (
	defaultCollection = "customer_chunks"

	metaSource   = "source"
	metaEntityID = "entity_id"
	metaFields   = "fields"
)

// Store chromem-go 集合封装，实现 retrieval.VectorStore。
// 向量总由调用方提供，集合不配置 embedding 函数。
type Store struct {
	db   *chromem.DB
	coll *chromem.Collection

	// dim 最近一次见到的向量维度，List 需要用它构造探测向量
	dim atomic.Int64
}

var _ retrieval.VectorStore = (*Store)(nil)

// NewStore PersistPath 为空时仅内存
func NewStore(cfg *config.ChromemConfig) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	name := defaultCollection
	if cfg != nil && strings.TrimSpace(cfg.Collection) != "" {
		name = strings.TrimSpace(cfg.Collection)
	}
	if cfg != nil && strings.TrimSpace(cfg.PersistPath) != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	coll, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{db: db, coll: coll}, nil
}

func (s *Store) Backend() string { return "chromem" }

func (s *Store) ready() error {
	if s == nil || s.coll == nil {
		return retrieval.ErrVectorDisabled
	}
	return nil
}

func (s *Store) EnsureCollection(context.Context) error { return s.ready() }

func (s *Store) HealthCheck(context.Context) error { return s.ready() }

// Count 当前切片数
func (s *Store) Count() int {
	if s.ready() != nil {
		return 0
	}
	return s.coll.Count()
}

// Search chromem 要求 nResults 不超过文档数，这里先截断
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]*retrieval.StoredChunk, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "chromem.Search",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	n := min(topK, s.coll.Count())
	if n <= 0 {
		return []*retrieval.StoredChunk{}, nil
	}
	s.dim.Store(int64(len(vector)))

	results, err := s.coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]*retrieval.StoredChunk, 0, len(results))
	for _, res := range results {
		out = append(out, fromResult(res))
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// List chromem 没有遍历接口，用全 1 向量做一次查询；维度未知时返回空
func (s *Store) List(ctx context.Context, limit int) ([]*retrieval.StoredChunk, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	dim := int(s.dim.Load())
	n := min(limit, s.coll.Count())
	if n <= 0 || dim <= 0 {
		return []*retrieval.StoredChunk{}, nil
	}

	ones := make([]float32, dim)
	for i := range ones {
		ones[i] = 1
	}
	results, err := s.coll.QueryEmbedding(ctx, ones, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem list: %w", err)
	}
	out := make([]*retrieval.StoredChunk, 0, len(results))
	for _, res := range results {
		sc := fromResult(res)
		sc.Score = 0
		out = append(out, sc)
	}
	return out, nil
}

func fromResult(res chromem.Result) *retrieval.StoredChunk {
	return &retrieval.StoredChunk{
		ID:       res.ID,
		Source:   res.Metadata[metaSource],
		EntityID: res.Metadata[metaEntityID],
		Content:  res.Content,
		Metadata: decodeFields(res.Metadata[metaFields]),
		Score:    res.Similarity,
	}
}

func (s *Store) Insert(ctx context.Context, chunks []*retrieval.StoredChunk) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "chromem.Insert",
		trace.WithAttributes(attribute.Int("count", len(chunks))))
	defer span.End()

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		fields, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata of %s: %w", c.ID, err)
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Embedding: c.Vector,
			Metadata: map[string]string{
				metaSource:   c.Source,
				metaEntityID: c.EntityID,
				metaFields:   string(fields),
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}
	s.dim.Store(int64(len(docs[0].Embedding)))
	if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	if err := s.ready(); err != nil {
		return err
	}
	source = strings.TrimSpace(source)
	if source == "" || s.coll.Count() == 0 {
		return nil
	}
	if err := s.coll.Delete(ctx, map[string]string{metaSource: source}, nil); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

func decodeFields(raw string) map[string]any {
	if raw == "" || raw == "null" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}
