package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ell-intel-api/internal/application/fusion"
)

type fakeEmbedder struct {
	err   error
	calls atomic.Int32
}

// 按关键词给出固定维度向量，便于断言排序
func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		t = strings.ToLower(t)
		v := []float64{0.1, 0.1, 0.1}
		if strings.Contains(t, "loyal") {
			v[0] = 1
		}
		if strings.Contains(t, "churn") {
			v[1] = 1
		}
		if strings.Contains(t, "email") {
			v[2] = 1
		}
		out = append(out, v)
	}
	return out, nil
}

type memStore struct {
	mu       sync.Mutex
	chunks   []*StoredChunk
	ensured  int
	searchEr error
}

func (m *memStore) Backend() string { return "mem" }

func (m *memStore) EnsureCollection(context.Context) error {
	m.ensured++
	return nil
}

func (m *memStore) Search(_ context.Context, vector []float32, topK int) ([]*StoredChunk, error) {
	if m.searchEr != nil {
		return nil, m.searchEr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*StoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		cp := *c
		var dot float32
		for i := range vector {
			dot += vector[i] * c.Vector[i]
		}
		cp.Score = dot
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, chunks []*StoredChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) DeleteBySource(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.Source != source {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *memStore) List(_ context.Context, limit int) ([]*StoredChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.chunks))
	return append([]*StoredChunk(nil), m.chunks[:n]...), nil
}

func (m *memStore) HealthCheck(context.Context) error { return nil }

func seed(t *testing.T, store *memStore, emb *fakeEmbedder) {
	t.Helper()
	idx := NewIndexer(emb, store, "", 2)
	stats, err := idx.Index(context.Background(), []Document{
		{Source: "row-1", Content: "Customer: Ana. Loyal member since 2020.", Metadata: map[string]any{"customer_id": "C1", "loyalty_member": true}},
		{Source: "row-2", Content: "Customer: Bo. High churn risk.", Metadata: map[string]any{"customer_id": "C2", "churn_risk": 0.8}},
		{Source: "row-3", Content: "Customer: Cy. Prefers email campaigns.", Metadata: map[string]any{"customer_id": "C3"}},
		{Source: "row-4", Content: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 1, stats.Skipped)
	assert.Len(t, stats.IDs, 3)
}

func TestRetrieverSearchOrdersBySimilarity(t *testing.T) {
	store := &memStore{}
	emb := &fakeEmbedder{}
	seed(t, store, emb)

	r := NewRetriever(emb, store, "customer_id")
	chunks, err := r.Search(context.Background(), "who is likely to churn?", 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	first := chunks[0]
	assert.Equal(t, fusion.SourceDocument, first.SourceKind)
	assert.Equal(t, "row-2", first.Source)
	assert.Equal(t, "C2", first.Metadata["customer_id"])
	assert.Contains(t, first.Content, "churn")
	assert.GreaterOrEqual(t, chunks[0].Score, chunks[1].Score)
}

func TestRetrieverFillsEntityIDFromStoredField(t *testing.T) {
	store := &memStore{chunks: []*StoredChunk{{
		ID: "x", Source: "legacy", EntityID: "C9", Content: "legacy row", Vector: []float32{1, 1, 1},
	}}}
	r := NewRetriever(&fakeEmbedder{}, store, "")

	chunks, err := r.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "C9", chunks[0].Metadata["customer_id"])
}

func TestRetrieverErrors(t *testing.T) {
	ctx := context.Background()

	var nilRetriever *Retriever
	_, err := nilRetriever.Search(ctx, "q", 3)
	assert.ErrorIs(t, err, ErrVectorDisabled)

	boom := errors.New("embedder down")
	r := NewRetriever(&fakeEmbedder{err: boom}, &memStore{}, "")
	_, err = r.Search(ctx, "q", 3)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrVectorUnavailable)

	storeErr := errors.New("connection refused")
	r = NewRetriever(&fakeEmbedder{}, &memStore{searchEr: storeErr}, "")
	_, err = r.Search(ctx, "q", 3)
	assert.ErrorIs(t, err, storeErr)
}

func TestRetrieverZeroK(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewRetriever(emb, &memStore{}, "")
	chunks, err := r.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, emb.calls.Load())
}

func TestIndexerReplacesSameSource(t *testing.T) {
	store := &memStore{}
	emb := &fakeEmbedder{}
	idx := NewIndexer(emb, store, "customer_id", 0)
	ctx := context.Background()

	_, err := idx.Index(ctx, []Document{{Source: "row-1", Content: "old text", Metadata: map[string]any{"customer_id": "C1"}}})
	require.NoError(t, err)
	_, err = idx.Index(ctx, []Document{{Source: "row-1", Content: "new text", Metadata: map[string]any{"customer_id": "C1"}}})
	require.NoError(t, err)

	require.Len(t, store.chunks, 1)
	assert.Equal(t, "new text", store.chunks[0].Content)
	assert.Equal(t, "C1", store.chunks[0].EntityID)
	assert.Equal(t, 2, store.ensured)

	require.NoError(t, idx.DeleteSource(ctx, "row-1"))
	assert.Empty(t, store.chunks)
	assert.Error(t, idx.DeleteSource(ctx, "  "))
}

func TestIndexerSplitsLongDocuments(t *testing.T) {
	store := &memStore{}
	idx := NewIndexer(&fakeEmbedder{}, store, "", 3)
	long := strings.Repeat("a", 2000)

	stats, err := idx.Index(context.Background(), []Document{{Source: "long", Content: long}})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	for _, c := range store.chunks {
		assert.LessOrEqual(t, len([]rune(c.Content)), defaultChunkSizeRunes)
		assert.Len(t, c.Vector, 3)
	}
}

func TestRetrieverList(t *testing.T) {
	store := &memStore{}
	emb := &fakeEmbedder{}
	seed(t, store, emb)

	r := NewRetriever(emb, store, "")
	chunks, err := r.List(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.NoError(t, r.HealthCheck(context.Background()))
}

func TestIndexerDisabled(t *testing.T) {
	idx := NewIndexer(nil, &memStore{}, "", 0)
	_, err := idx.Index(context.Background(), []Document{{Content: "x"}})
	assert.ErrorIs(t, err, ErrVectorDisabled)
}
