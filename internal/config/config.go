// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	Memory        MemoryConfig        `yaml:"memory" mapstructure:"memory"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Fusion        FusionConfig        `yaml:"fusion" mapstructure:"fusion"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Features      FeaturesConfig      `yaml:"features" mapstructure:"features"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// VectorConfig 向量存储配置
type VectorConfig struct {
	// Backend milvus / mongo / chromem
	Backend string        `yaml:"backend" mapstructure:"backend"`
	Milvus  MilvusConfig  `yaml:"milvus" mapstructure:"milvus"`
	Mongo   MongoConfig   `yaml:"mongo" mapstructure:"mongo"`
	Chromem ChromemConfig `yaml:"chromem" mapstructure:"chromem"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	IndexType          string `yaml:"index_type" mapstructure:"index_type"`
	MetricType         string `yaml:"metric_type" mapstructure:"metric_type"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// MongoConfig MongoDB Atlas Vector Search 配置
type MongoConfig struct {
	URI                 string        `yaml:"uri" mapstructure:"uri"`
	Username            string        `yaml:"username" mapstructure:"username"`
	Password            string        `yaml:"password" mapstructure:"password"`
	Database            string        `yaml:"database" mapstructure:"database"`
	Collection          string        `yaml:"collection" mapstructure:"collection"`
	Index               string        `yaml:"index" mapstructure:"index"`
	TextKey             string        `yaml:"text_key" mapstructure:"text_key"`
	EmbeddingKey        string        `yaml:"embedding_key" mapstructure:"embedding_key"`
	NumCandidatesFactor int           `yaml:"num_candidates_factor" mapstructure:"num_candidates_factor"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// ChromemConfig 内嵌向量库配置
type ChromemConfig struct {
	// PersistPath 为空时仅内存
	PersistPath string `yaml:"persist_path" mapstructure:"persist_path"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	Compress    bool   `yaml:"compress" mapstructure:"compress"`
}

// MemoryConfig 长期记忆服务配置
type MemoryConfig struct {
	MemMachine MemMachineConfig `yaml:"memmachine" mapstructure:"memmachine"`
}

// MemMachineConfig MemMachine MCP 配置
type MemMachineConfig struct {
	Enabled        bool                 `yaml:"enabled" mapstructure:"enabled"`
	BaseURL        string               `yaml:"base_url" mapstructure:"base_url"`
	Transport      string               `yaml:"transport" mapstructure:"transport"` // streamable_http / sse
	UserID         string               `yaml:"user_id" mapstructure:"user_id"`
	Timeout        time.Duration        `yaml:"timeout" mapstructure:"timeout"`
	SearchLimit    int                  `yaml:"search_limit" mapstructure:"search_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig 熔断配置
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold" mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	// Type openai（任意 OpenAI 兼容端点）/ anthropic
	Type        string        `yaml:"type" mapstructure:"type"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
}

// FusionConfig 上下文融合配置
type FusionConfig struct {
	DefaultK           int           `yaml:"default_k" mapstructure:"default_k"`
	MaxK               int           `yaml:"max_k" mapstructure:"max_k"`
	VectorTimeout      time.Duration `yaml:"vector_timeout" mapstructure:"vector_timeout"`
	MemoryTimeout      time.Duration `yaml:"memory_timeout" mapstructure:"memory_timeout"`
	GenerationTimeout  time.Duration `yaml:"generation_timeout" mapstructure:"generation_timeout"`
	ContextBudgetRunes int           `yaml:"context_budget_runes" mapstructure:"context_budget_runes"`
	EntityIDField      string        `yaml:"entity_id_field" mapstructure:"entity_id_field"`
	CacheTTL           time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	MemoryLimit        int           `yaml:"memory_limit" mapstructure:"memory_limit"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool              `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string            `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool              `yaml:"insecure" mapstructure:"insecure"`
	Headers    map[string]string `yaml:"headers" mapstructure:"headers"`
	SampleRate float64           `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int           `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Window            time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// FeaturesConfig 功能开关配置
type FeaturesConfig struct {
	MemoryWriteback MemoryWritebackFeature `yaml:"memory_writeback" mapstructure:"memory_writeback"`
	EmbeddingCache  EmbeddingCacheFeature  `yaml:"embedding_cache" mapstructure:"embedding_cache"`
}

// MemoryWritebackFeature 记忆回写功能开关
type MemoryWritebackFeature struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// EmbeddingCacheFeature 查询向量缓存开关（依赖 Redis）
type EmbeddingCacheFeature struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}
