// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir 默认配置目录
const DefaultDir = "configs"

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	return LoadFrom(DefaultDir)
}

// LoadFrom 从指定目录加载 config.yaml 与 config.$APP_ENV.yaml
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	// 2. 环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 环境变量直接覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
// 未设置且无默认值的变量保留原样，便于排查
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match
	})
}

// Validate 校验跨字段约束
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case "milvus", "mongo", "chromem":
	default:
		return fmt.Errorf("config: unsupported vector.backend %q", c.Vector.Backend)
	}
	if c.Fusion.MaxK <= 0 {
		return fmt.Errorf("config: fusion.max_k must be positive")
	}
	if c.Fusion.DefaultK <= 0 || c.Fusion.DefaultK > c.Fusion.MaxK {
		return fmt.Errorf("config: fusion.default_k must be in [1, %d]", c.Fusion.MaxK)
	}
	if c.Fusion.CacheTTL < 0 {
		return fmt.Errorf("config: fusion.cache_ttl must not be negative")
	}
	if c.LLM.DefaultProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
			return fmt.Errorf("config: llm.default_provider %q has no providers entry", c.LLM.DefaultProvider)
		}
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ell-intel-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8000)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "90s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "30s")

	// Redis
	v.SetDefault("cache.redis.enabled", true)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.redis.key_prefix", "ell")

	// 向量存储
	v.SetDefault("vector.backend", "milvus")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "ell")
	v.SetDefault("vector.milvus.index_type", "HNSW")
	v.SetDefault("vector.milvus.metric_type", "COSINE")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)
	v.SetDefault("vector.mongo.database", "ell")
	v.SetDefault("vector.mongo.collection", "chunks")
	v.SetDefault("vector.mongo.index", "vector_index")
	v.SetDefault("vector.mongo.text_key", "content")
	v.SetDefault("vector.mongo.embedding_key", "embedding")
	v.SetDefault("vector.mongo.num_candidates_factor", 10)
	v.SetDefault("vector.mongo.connect_timeout", "10s")
	v.SetDefault("vector.chromem.collection", "customer_chunks")

	// 记忆服务
	v.SetDefault("memory.memmachine.enabled", true)
	v.SetDefault("memory.memmachine.base_url", "http://localhost:8090")
	v.SetDefault("memory.memmachine.transport", "streamable_http")
	v.SetDefault("memory.memmachine.user_id", "default-user")
	v.SetDefault("memory.memmachine.timeout", "5s")
	v.SetDefault("memory.memmachine.search_limit", 5)
	v.SetDefault("memory.memmachine.circuit_breaker.enabled", true)
	v.SetDefault("memory.memmachine.circuit_breaker.failure_threshold", 5)
	v.SetDefault("memory.memmachine.circuit_breaker.success_threshold", 2)
	v.SetDefault("memory.memmachine.circuit_breaker.open_timeout", "30s")

	// Embedding
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.batch_size", 64)

	// 融合
	v.SetDefault("fusion.default_k", 5)
	v.SetDefault("fusion.max_k", 20)
	v.SetDefault("fusion.vector_timeout", "8s")
	v.SetDefault("fusion.memory_timeout", "3s")
	v.SetDefault("fusion.generation_timeout", "30s")
	v.SetDefault("fusion.context_budget_runes", 12000)
	v.SetDefault("fusion.entity_id_field", "customer_id")
	v.SetDefault("fusion.cache_ttl", "5m")
	v.SetDefault("fusion.memory_limit", 3)

	// Redis Stream
	v.SetDefault("messaging.redis_stream.max_len", 100000)
	v.SetDefault("messaging.redis_stream.consumer_group_prefix", "ell-")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 5)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "60s")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	// 可观测性
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.insecure", true)
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
	v.SetDefault("security.rate_limit.window", "1s")
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-User-ID"})

	// 功能开关
	v.SetDefault("features.memory_writeback.enabled", true)
	v.SetDefault("features.embedding_cache.enabled", true)
	v.SetDefault("features.embedding_cache.ttl", "24h")
}
