package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"ell-intel-api/internal/config"
)

// NewEmbedder 按 provider 创建 Embedder：openai（默认，任意 OpenAI 兼容端点）或 http（自建服务）
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedding config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewEinoEmbedder(ctx, cfg)
	case "http":
		return NewHTTPEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// NewEinoEmbedder 创建基于 Eino 的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding api_key or endpoint is required")
	}

	ecfg := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	}
	if cfg.Dimension > 0 {
		dim := cfg.Dimension
		ecfg.Dimensions = &dim
	}

	// 使用 Eino 的 OpenAI 适配器
	embedder, err := openai.NewEmbedder(ctx, ecfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return embedder, nil
}
