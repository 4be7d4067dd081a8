package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ell-intel-api/pkg/logger"
)

const (
	defaultEmbeddingBatch = 32
	maxEmbedConcurrency   = 4
)

// Indexer 文档切分、向量化并写入向量库
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorStore

	entityIDField      string
	embeddingBatchSize int
	chunkSizeRunes     int
	chunkOverlapRunes  int
}

func NewIndexer(embedder embedding.Embedder, store VectorStore, entityIDField string, embeddingBatchSize int) *Indexer {
	bs := embeddingBatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}
	f := strings.TrimSpace(entityIDField)
	if f == "" {
		f = defaultEntityIDField
	}
	return &Indexer{
		embedder:           embedder,
		vector:             store,
		entityIDField:      f,
		embeddingBatchSize: bs,
		chunkSizeRunes:     defaultChunkSizeRunes,
		chunkOverlapRunes:  defaultChunkOverlapRunes,
	}
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

func (i *Indexer) ensureReady(ctx context.Context) error {
	if !i.Enabled() {
		return ErrVectorDisabled
	}
	return i.vector.EnsureCollection(ctx)
}

// Index 写入一批文档。同一 Source 先删除旧切片，空正文只删除不写入。
func (i *Indexer) Index(ctx context.Context, docs []Document) (IndexStats, error) {
	var stats IndexStats
	if err := i.ensureReady(ctx); err != nil {
		return stats, err
	}

	embedInputs := make([]string, 0, len(docs))
	chunks := make([]*StoredChunk, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))

	for _, doc := range docs {
		source := strings.TrimSpace(doc.Source)
		if source == "" {
			source = uuid.NewString()
		}
		if _, dup := seen[source]; !dup {
			seen[source] = struct{}{}
			if err := i.vector.DeleteBySource(ctx, source); err != nil {
				return stats, fmt.Errorf("delete stale chunks of %q: %w", source, err)
			}
		}

		parts := splitText(doc.Content, i.chunkSizeRunes, i.chunkOverlapRunes)
		if len(parts) == 0 {
			stats.Skipped++
			continue
		}
		stats.Documents++

		entityID := entityIDOf(doc.Metadata, i.entityIDField)
		for _, part := range parts {
			embedInputs = append(embedInputs, part)
			chunks = append(chunks, &StoredChunk{
				ID:       uuid.NewString(),
				Source:   source,
				EntityID: entityID,
				Content:  part,
				Metadata: doc.Metadata,
			})
		}
	}
	if len(chunks) == 0 {
		return stats, nil
	}

	vectors, err := i.embedBatch(ctx, embedInputs)
	if err != nil {
		return stats, err
	}
	if len(vectors) != len(chunks) {
		return stats, fmt.Errorf("%w: want %d vectors, got %d", ErrEmptyEmbedding, len(chunks), len(vectors))
	}
	for idx := range chunks {
		chunks[idx].Vector = vectors[idx]
	}
	if err := i.vector.Insert(ctx, chunks); err != nil {
		return stats, err
	}
	stats.Chunks = len(chunks)
	stats.IDs = make([]string, 0, len(chunks))
	for _, c := range chunks {
		stats.IDs = append(stats.IDs, c.ID)
	}

	logger.Info(ctx, "documents indexed",
		"backend", i.vector.Backend(),
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// DeleteSource 删除某一来源的全部切片
func (i *Indexer) DeleteSource(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return fmt.Errorf("source is required")
	}
	if err := i.ensureReady(ctx); err != nil {
		return err
	}
	return i.vector.DeleteBySource(ctx, source)
}

// embedBatch 按批并发向量化，结果保持输入顺序
func (i *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedConcurrency)
	for start := 0; start < len(texts); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			v64, err := i.embedder.EmbedStrings(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(v64) != end-start {
				return fmt.Errorf("%w: want %d vectors, got %d", ErrEmptyEmbedding, end-start, len(v64))
			}
			for j, vec := range v64 {
				out[start+j] = toFloat32(vec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func entityIDOf(meta map[string]any, field string) string {
	v, ok := meta[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
