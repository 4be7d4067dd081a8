package chromem

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ell-intel-api/internal/application/retrieval"
	"ell-intel-api/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(&config.ChromemConfig{Collection: "test_chunks"})
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureCollection(ctx))

	require.NoError(t, s.Insert(ctx, []*retrieval.StoredChunk{
		{ID: "a", Source: "row-1", EntityID: "C1", Content: "loyal", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"customer_id": "C1", "total_spend": 10.5}},
		{ID: "b", Source: "row-2", EntityID: "C2", Content: "churn", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"customer_id": "C2"}},
	}))
	assert.Equal(t, 2, s.Count())

	// topK 超过文档数时截断
	got, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "row-1", got[0].Source)
	assert.Equal(t, "C1", got[0].EntityID)
	assert.Equal(t, json.Number("10.5"), got[0].Metadata["total_spend"])
	assert.Greater(t, got[0].Score, got[1].Score)

	listed, err := s.List(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	require.NoError(t, s.DeleteBySource(ctx, "row-1"))
	assert.Equal(t, 1, s.Count())
}

func TestSearchEmptyCollection(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, s.DeleteBySource(context.Background(), "nothing"))

	listed, err := s.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestStoreWorksBehindRetriever(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	emb := staticEmbedder{}

	idx := retrieval.NewIndexer(emb, s, "customer_id", 0)
	_, err := idx.Index(ctx, []retrieval.Document{
		{Source: "row-7", Content: "Customer: Gil", Metadata: map[string]any{"customer_id": "C7"}},
	})
	require.NoError(t, err)

	r := retrieval.NewRetriever(emb, s, "customer_id")
	chunks, err := r.Search(ctx, "Gil", 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "C7", chunks[0].Metadata["customer_id"])
	assert.Equal(t, "Customer: Gil", chunks[0].Content)
}

func TestDecodeFields(t *testing.T) {
	assert.Nil(t, decodeFields(""))
	assert.Nil(t, decodeFields("null"))
	assert.Nil(t, decodeFields("{bad"))
	assert.Equal(t, map[string]any{"a": "b"}, decodeFields(`{"a":"b"}`))
}
