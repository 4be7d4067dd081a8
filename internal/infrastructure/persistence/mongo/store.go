package mongo

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/internal/application/retrieval"
)

const (
	fieldID       = "_id"
	fieldSource   = "source"
	fieldEntityID = "entity_id"
	fieldScore    = "score"

	defaultTextKey      = "content"
	defaultEmbeddingKey = "embedding"
	defaultIndex        = "vector_index"
	defaultCandidates   = 10
)

// Store 基于 $vectorSearch 的切片存储，实现 retrieval.VectorStore。
// 元信息平铺在文档顶层；向量索引需在 Atlas 侧预先创建。
type Store struct {
	client *Client

	index         string
	textKey       string
	embeddingKey  string
	candidatesMul int
}

var _ retrieval.VectorStore = (*Store)(nil)

func NewStore(client *Client) *Store {
	s := &Store{
		client:        client,
		index:         defaultIndex,
		textKey:       defaultTextKey,
		embeddingKey:  defaultEmbeddingKey,
		candidatesMul: defaultCandidates,
	}
	if client != nil && client.config != nil {
		cfg := client.config
		if cfg.Index != "" {
			s.index = cfg.Index
		}
		if cfg.TextKey != "" {
			s.textKey = cfg.TextKey
		}
		if cfg.EmbeddingKey != "" {
			s.embeddingKey = cfg.EmbeddingKey
		}
		if cfg.NumCandidatesFactor > 0 {
			s.candidatesMul = cfg.NumCandidatesFactor
		}
	}
	return s
}

func (s *Store) coll() (*mongo.Collection, error) {
	if s == nil || s.client == nil || s.client.mongo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	return s.client.Collection(), nil
}

func (s *Store) Backend() string { return "mongo" }

func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.coll(); err != nil {
		return err
	}
	return s.client.HealthCheck(ctx)
}

// EnsureCollection 为 source 建普通索引，删除旧切片时使用
func (s *Store) EnsureCollection(ctx context.Context) error {
	coll, err := s.coll()
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: fieldSource, Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create source index: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]*retrieval.StoredChunk, error) {
	coll, err := s.coll()
	if err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "mongo.Search",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	if topK <= 0 {
		return []*retrieval.StoredChunk{}, nil
	}

	cur, err := coll.Aggregate(ctx, s.searchPipeline(vector, topK))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	out := make([]*retrieval.StoredChunk, 0, len(docs))
	for _, d := range docs {
		out = append(out, s.decode(d))
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func (s *Store) searchPipeline(vector []float32, topK int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.index},
			{Key: "path", Value: s.embeddingKey},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: topK * s.candidatesMul},
			{Key: "limit", Value: topK},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: s.embeddingKey, Value: 0},
			{Key: fieldScore, Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func (s *Store) reserved(key string) bool {
	switch key {
	case fieldID, fieldSource, fieldEntityID, fieldScore, s.textKey, s.embeddingKey:
		return true
	}
	return false
}

func (s *Store) decode(d bson.M) *retrieval.StoredChunk {
	sc := &retrieval.StoredChunk{
		ID:       stringOf(d[fieldID]),
		Source:   stringOf(d[fieldSource]),
		EntityID: stringOf(d[fieldEntityID]),
		Content:  stringOf(d[s.textKey]),
		Metadata: make(map[string]any, len(d)),
	}
	for k, v := range d {
		if !s.reserved(k) {
			sc.Metadata[k] = v
		}
	}
	switch v := d[fieldScore].(type) {
	case float64:
		sc.Score = float32(v)
	case float32:
		sc.Score = v
	}
	return sc
}

func (s *Store) Insert(ctx context.Context, chunks []*retrieval.StoredChunk) error {
	coll, err := s.coll()
	if err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "mongo.Insert",
		trace.WithAttributes(attribute.Int("count", len(chunks))))
	defer span.End()

	docs := s.encode(chunks)
	if len(docs) == 0 {
		return nil
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

func (s *Store) encode(chunks []*retrieval.StoredChunk) []any {
	docs := make([]any, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		doc := bson.M{
			fieldID:        c.ID,
			fieldSource:    c.Source,
			fieldEntityID:  c.EntityID,
			s.textKey:      c.Content,
			s.embeddingKey: c.Vector,
		}
		for k, v := range c.Metadata {
			if !s.reserved(k) {
				doc[k] = v
			}
		}
		docs = append(docs, doc)
	}
	return docs
}

func (s *Store) List(ctx context.Context, limit int) ([]*retrieval.StoredChunk, error) {
	coll, err := s.coll()
	if err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "mongo.List",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if limit <= 0 {
		return []*retrieval.StoredChunk{}, nil
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetProjection(bson.D{{Key: s.embeddingKey, Value: 0}})
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}
	out := make([]*retrieval.StoredChunk, 0, len(docs))
	for _, d := range docs {
		out = append(out, s.decode(d))
	}
	return out, nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	coll, err := s.coll()
	if err != nil {
		return err
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "mongo.DeleteBySource",
		trace.WithAttributes(attribute.String("source", source)))
	defer span.End()

	if _, err := coll.DeleteMany(ctx, bson.M{fieldSource: source}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
