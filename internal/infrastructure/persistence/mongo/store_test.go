package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"ell-intel-api/internal/application/retrieval"
	"ell-intel-api/internal/config"
)

func TestSearchPipeline(t *testing.T) {
	s := NewStore(&Client{config: &config.MongoConfig{Index: "idx", EmbeddingKey: "vec", NumCandidatesFactor: 4}})
	p := s.searchPipeline([]float32{0.1, 0.2}, 5)
	require.Len(t, p, 2)

	stage := p[0][0]
	assert.Equal(t, "$vectorSearch", stage.Key)
	params := stage.Value.(bson.D).Map()
	assert.Equal(t, "idx", params["index"])
	assert.Equal(t, "vec", params["path"])
	assert.Equal(t, 20, params["numCandidates"])
	assert.Equal(t, 5, params["limit"])
}

func TestDecodeResult(t *testing.T) {
	s := NewStore(nil)
	sc := s.decode(bson.M{
		"_id":         "c-1",
		"source":      "customers.csv#1",
		"entity_id":   "C1",
		"content":     "Customer: Ana",
		"customer_id": "C1",
		"age":         int32(41),
		"score":       0.92,
	})
	assert.Equal(t, "c-1", sc.ID)
	assert.Equal(t, "C1", sc.EntityID)
	assert.Equal(t, "Customer: Ana", sc.Content)
	assert.Equal(t, int32(41), sc.Metadata["age"])
	assert.Equal(t, "C1", sc.Metadata["customer_id"])
	assert.NotContains(t, sc.Metadata, "score")
	assert.NotContains(t, sc.Metadata, "content")
	assert.InDelta(t, 0.92, sc.Score, 1e-6)
}

func TestEncodeSkipsNil(t *testing.T) {
	s := NewStore(nil)
	docs := s.encode([]*retrieval.StoredChunk{nil, {ID: "a", Content: "x", Metadata: map[string]any{"tier": "gold", "content": "shadowed"}}})
	require.Len(t, docs, 1)
	d := docs[0].(bson.M)
	assert.Equal(t, "x", d["content"])
	assert.Equal(t, "gold", d["tier"])
	assert.Equal(t, "a", d["_id"])
}

func TestNilStoreIsDisabled(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Search(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, retrieval.ErrVectorDisabled)
}
