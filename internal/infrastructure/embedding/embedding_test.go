package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/embedding"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ell-intel-api/internal/config"
	"ell-intel-api/internal/infrastructure/persistence/redis"
)

type countingEmbedder struct {
	seen [][]string
}

func (c *countingEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	c.seen = append(c.seen, append([]string(nil), texts...))
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func newCache(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewCache(redis.NewClientWith(rdb, &config.RedisConfig{KeyPrefix: "test"})), mr
}

func TestCachedEmbedderOnlyEmbedsMisses(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t)
	next := &countingEmbedder{}
	ce := NewCachedEmbedder(next, cache, "m1", time.Hour)

	first, err := ce.EmbedStrings(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1}, {2, 1}}, first)

	second, err := ce.EmbedStrings(ctx, []string{"bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 1}, {3, 1}}, second)

	require.Len(t, next.seen, 2)
	assert.Equal(t, []string{"ccc"}, next.seen[1])

	n, err := PurgeCache(ctx, cache, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCachedEmbedderFailsOpen(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t)
	mr.Close()

	next := &countingEmbedder{}
	ce := NewCachedEmbedder(next, cache, "m1", 0)
	got, err := ce.EmbedStrings(ctx, []string{"xy"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 1}}, got)
}

func TestHTTPEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float32{0.5, 0.25})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "http", Endpoint: srv.URL, BatchSize: 2})
	require.NoError(t, err)
	got, err := e.EmbedStrings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{0.5, 0.25}, got[2])
}

func TestNewEmbedderRejectsUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "nope"})
	assert.Error(t, err)
	_, err = NewEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "http"})
	assert.Error(t, err)
}

func TestHTTPEmbedderKeepsCustomPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(&config.EmbeddingConfig{Endpoint: srv.URL + "/v2/vectors/"})
	require.NoError(t, err)
	_, err = e.EmbedStrings(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "/v2/vectors", gotPath)
}

func TestHTTPEmbedderRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(&config.EmbeddingConfig{Endpoint: srv.URL, Dimension: 4})
	require.NoError(t, err)
	_, err = e.EmbedStrings(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestHTTPEmbedderReportsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(&config.EmbeddingConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = e.EmbedStrings(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestNewHTTPEmbedderRejectsBadEndpoint(t *testing.T) {
	_, err := NewHTTPEmbedder(&config.EmbeddingConfig{Endpoint: "not a url"})
	assert.Error(t, err)
	_, err = NewHTTPEmbedder(&config.EmbeddingConfig{Endpoint: "  "})
	assert.Error(t, err)
}
