// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/wire"

	"ell-intel-api/internal/application/fusion"
	"ell-intel-api/internal/application/retrieval"
	"ell-intel-api/internal/config"
	"ell-intel-api/internal/infrastructure/cache"
	infraembedding "ell-intel-api/internal/infrastructure/embedding"
	"ell-intel-api/internal/infrastructure/llm"
	"ell-intel-api/internal/infrastructure/memory/memmachine"
	"ell-intel-api/internal/infrastructure/messaging"
	"ell-intel-api/internal/infrastructure/persistence/chromem"
	"ell-intel-api/internal/infrastructure/persistence/milvus"
	"ell-intel-api/internal/infrastructure/persistence/mongo"
	"ell-intel-api/internal/infrastructure/persistence/redis"
	"ell-intel-api/internal/interfaces/http/handler"
	"ell-intel-api/internal/interfaces/http/middleware"
	"ell-intel-api/internal/interfaces/http/router"
	"ell-intel-api/pkg/logger"
)

const (
	BackendMilvus  = "milvus"
	BackendMongo   = "mongo"
	BackendChromem = "chromem"

	responseCacheName = "fusion"
	defaultMaxLen     = 100000
)

// RedisSet API 侧可选 Redis（不可达时禁用限流、向量缓存与记忆回写）
var RedisSet = wire.NewSet(
	ProvideRedisClientOptional,
	ProvideRedisCacheOptional,
	ProvideRateLimiterOptional,
)

// VectorAppSet API 侧可选向量库与 Embedder（不可用时检索返回 503）
var VectorAppSet = wire.NewSet(
	ProvideVectorStoreOptional,
	ProvideEmbedderOptional,
)

// VectorSet 离线导入必须可用的向量库与 Embedder
var VectorSet = wire.NewSet(
	ProvideVectorStore,
	ProvideEmbedder,
)

// RetrievalSet 文档检索与索引
var RetrievalSet = wire.NewSet(
	ProvideRetriever,
	ProvideIndexer,
)

// MemorySet 长期记忆
var MemorySet = wire.NewSet(
	ProvideMemMachineClientOptional,
	ProvideMemoryRecaller,
)

// FusionSet 融合引擎与带缓存的查询服务
var FusionSet = wire.NewSet(
	ProvideGeneratorOptional,
	ProvideFusionEngine,
	ProvideResponseCache,
	ProvideTurnRecorder,
	ProvideFusionService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideFusionHandler,
	ProvideDocumentHandler,
	ProvideMemoryHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// WriterSet 记忆回写消费者
var WriterSet = wire.NewSet(
	ProvideRedisClient,
	ProvideMemMachineClient,
	ProvideTurnConsumer,
)

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		logger.Info(ctx, "redis disabled by config")
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, rate limit and writeback disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideRedisCacheOptional(client *redis.Client) *redis.Cache {
	if client == nil {
		return nil
	}
	return redis.NewCache(client)
}

// ProvideRateLimiterOptional Redis 不可用或限流关闭时返回 nil 接口
func ProvideRateLimiterOptional(cfg *config.Config, client *redis.Client) middleware.RateLimiter {
	if client == nil || !cfg.Security.RateLimit.Enabled {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideVectorStore 按 vector.backend 创建向量存储
func ProvideVectorStore(ctx context.Context, cfg *config.Config) (retrieval.VectorStore, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Vector.Backend)) {
	case BackendMilvus:
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Close()
		}
		return milvus.NewRepository(client, cfg.Embedding.Dimension), cleanup, nil
	case BackendMongo:
		client, err := mongo.NewClient(ctx, &cfg.Vector.Mongo)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Close(context.Background())
		}
		return mongo.NewStore(client), cleanup, nil
	case "", BackendChromem:
		store, err := chromem.NewStore(&cfg.Vector.Chromem)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}
}

func ProvideVectorStoreOptional(ctx context.Context, cfg *config.Config) (retrieval.VectorStore, func(), error) {
	store, cleanup, err := ProvideVectorStore(ctx, cfg)
	if err != nil {
		logger.Warn(ctx, "vector store not available, retrieval disabled",
			"backend", cfg.Vector.Backend, "error", err.Error())
		return nil, func() {}, nil
	}
	return store, cleanup, nil
}

// ProvideEmbedder 提供 Embedder（不带缓存）
func ProvideEmbedder(ctx context.Context, cfg *config.Config) (einoembedding.Embedder, error) {
	return infraembedding.NewEmbedder(ctx, &cfg.Embedding)
}

// ProvideEmbedderOptional 查询向量缓存开启且 Redis 可用时包一层缓存
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config, kv *redis.Cache) (einoembedding.Embedder, error) {
	embedder, err := infraembedding.NewEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, retrieval disabled", "error", err.Error())
		return nil, nil
	}
	if kv != nil && cfg.Features.EmbeddingCache.Enabled {
		return infraembedding.NewCachedEmbedder(embedder, kv, cfg.Embedding.Model, cfg.Features.EmbeddingCache.TTL), nil
	}
	return embedder, nil
}

func ProvideRetriever(cfg *config.Config, embedder einoembedding.Embedder, store retrieval.VectorStore) *retrieval.Retriever {
	return retrieval.NewRetriever(embedder, store, cfg.Fusion.EntityIDField)
}

func ProvideIndexer(cfg *config.Config, embedder einoembedding.Embedder, store retrieval.VectorStore) *retrieval.Indexer {
	return retrieval.NewIndexer(embedder, store, cfg.Fusion.EntityIDField, cfg.Embedding.BatchSize)
}

// ProvideMemMachineClient 提供 MemMachine 客户端（懒连接）
func ProvideMemMachineClient(cfg *config.Config) (*memmachine.Client, func(), error) {
	client := memmachine.NewClient(&cfg.Memory.MemMachine)
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideMemMachineClientOptional(ctx context.Context, cfg *config.Config) (*memmachine.Client, func(), error) {
	if !cfg.Memory.MemMachine.Enabled {
		logger.Info(ctx, "memmachine disabled by config, memory recall off")
		return nil, func() {}, nil
	}
	return ProvideMemMachineClient(cfg)
}

func ProvideMemoryRecaller(cfg *config.Config, client *memmachine.Client) fusion.MemoryRecaller {
	if client == nil {
		return nil
	}
	return memmachine.NewRecaller(client, cfg.Fusion.MemoryLimit)
}

// ProvideGeneratorOptional 生成器不可用时融合仍返回固定回答
func ProvideGeneratorOptional(ctx context.Context, cfg *config.Config) fusion.AnswerGenerator {
	gen, err := llm.NewGenerator(ctx, &cfg.LLM)
	if err != nil {
		logger.Warn(ctx, "answer generator not available, using fallback answer", "error", err.Error())
		return nil
	}
	return gen
}

func ProvideFusionEngine(cfg *config.Config, retriever *retrieval.Retriever, memory fusion.MemoryRecaller, generator fusion.AnswerGenerator) *fusion.Engine {
	return fusion.NewEngine(retriever, memory, generator, fusion.Options{
		DefaultK:           cfg.Fusion.DefaultK,
		MaxK:               cfg.Fusion.MaxK,
		VectorTimeout:      cfg.Fusion.VectorTimeout,
		MemoryTimeout:      cfg.Fusion.MemoryTimeout,
		GenerationTimeout:  cfg.Fusion.GenerationTimeout,
		ContextBudgetRunes: cfg.Fusion.ContextBudgetRunes,
		EntityIDField:      cfg.Fusion.EntityIDField,
	})
}

func ProvideResponseCache() *cache.ResponseCache[*fusion.FusedResponse] {
	return cache.New[*fusion.FusedResponse](responseCacheName)
}

// ProvideTurnRecorder 回写关闭或 Redis 不可用时返回 nil 接口
func ProvideTurnRecorder(cfg *config.Config, client *redis.Client) fusion.TurnRecorder {
	if client == nil || !cfg.Features.MemoryWriteback.Enabled {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return messaging.NewProducer(client.Redis(), int64(maxLen))
}

func ProvideFusionService(cfg *config.Config, engine *fusion.Engine, responses *cache.ResponseCache[*fusion.FusedResponse], turns fusion.TurnRecorder) *fusion.Service {
	return fusion.NewService(engine, responses, cfg.Fusion.CacheTTL, turns)
}

// ProvideHealthHandler 向量库必需；记忆服务与 Redis 只影响 degraded
func ProvideHealthHandler(cfg *config.Config, retriever *retrieval.Retriever, mem *memmachine.Client, rdb *redis.Client) *handler.HealthHandler {
	checks := []handler.HealthCheck{
		{Name: "vector", Required: true, Check: retriever.HealthCheck},
	}
	if mem != nil {
		checks = append(checks, handler.HealthCheck{Name: "memmachine", Check: mem.HealthCheck})
	}
	if rdb != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: rdb.HealthCheck})
	}
	return handler.NewHealthHandler(cfg.App.Version, checks...)
}

func ProvideFusionHandler(svc *fusion.Service) *handler.FusionHandler {
	return handler.NewFusionHandler(svc)
}

func ProvideDocumentHandler(indexer *retrieval.Indexer, retriever *retrieval.Retriever) *handler.DocumentHandler {
	return handler.NewDocumentHandler(indexer, retriever)
}

// ProvideMemoryHandler 未启用记忆服务时传 nil 接口，接口返回 503
func ProvideMemoryHandler(client *memmachine.Client) *handler.MemoryHandler {
	if client == nil {
		return handler.NewMemoryHandler(nil)
	}
	return handler.NewMemoryHandler(client)
}

// ProvideTurnConsumer 消费对话轮次并写入 MemMachine
func ProvideTurnConsumer(cfg *config.Config, client *redis.Client, mem *memmachine.Client) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamConversationTurn,
		Group:         messaging.ConsumerGroupMemWriter.WithPrefix(rs.ConsumerGroupPrefix),
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler(messaging.TypeConversationTurn, messaging.NewTurnHandler(mem))
	return consumer
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "mem-writer"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
