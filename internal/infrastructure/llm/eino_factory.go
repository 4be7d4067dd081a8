package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ell-intel-api/internal/config"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

const (
	ProviderTypeOpenAI    = "openai"
	ProviderTypeAnthropic = "anthropic"
)

// EinoFactory 管理多个 Eino ChatModel 客户端实例（OpenAI 兼容端点）
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.LLMConfig) *EinoFactory {
	return &EinoFactory{
		config: cfg,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定名称的 ChatModel，未指定则用默认提供商
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}
	if t := providerType(providerCfg); t != ProviderTypeOpenAI {
		return nil, fmt.Errorf("provider %s has type %s, not an eino chat model", name, t)
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   ptrInt(providerCfg.MaxTokens),
		Temperature: ptrFloat32(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// Default 返回默认 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}

func providerType(p config.ProviderConfig) string {
	t := strings.ToLower(strings.TrimSpace(p.Type))
	if t == "" {
		return ProviderTypeOpenAI
	}
	return t
}

func ptrFloat32(f float32) *float32 {
	return &f
}

func ptrInt(i int) *int {
	if i <= 0 {
		return nil
	}
	return &i
}
