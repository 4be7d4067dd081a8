package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"ell-intel-api/internal/infrastructure/persistence/redis"
	"ell-intel-api/pkg/logger"
	"ell-intel-api/pkg/metrics"
)

const defaultCacheTTL = 24 * time.Hour

// CachedEmbedder 以 Redis 缓存文本向量；Redis 故障时直接回源
type CachedEmbedder struct {
	next  embedding.Embedder
	cache *redis.Cache
	model string
	ttl   time.Duration
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(next embedding.Embedder, cache *redis.Cache, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedEmbedder{next: next, cache: cache, model: model, ttl: ttl}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.cache.Key("emb", c.model, hex.EncodeToString(sum[:]))
}

// EmbedStrings 批量读缓存，只对未命中的文本调用下游
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float64, len(texts))
	cached, err := c.cache.MGet(ctx, keys...)
	if err != nil {
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "embedding cache unavailable", "error", err)
		cached = nil
	}

	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(cached) && cached[i] != nil {
			var vec []float64
			if json.Unmarshal(cached[i], &vec) == nil && len(vec) > 0 {
				out[i] = vec
				metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Add(float64(len(missTexts)))

	fresh, err := c.next.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		if j >= len(fresh) {
			break
		}
		out[idx] = fresh[j]
		if err := c.cache.Set(ctx, keys[idx], fresh[j], c.ttl); err != nil {
			logger.Warn(ctx, "embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

// PurgeCache 清空指定模型的向量缓存，返回删除数量
func PurgeCache(ctx context.Context, cache *redis.Cache, model string) (int, error) {
	return cache.InvalidatePattern(ctx, cache.Key("emb", model, "*"))
}
