// Package llm 提供回答生成：OpenAI 兼容模型走 eino，Anthropic 走官方 SDK
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"ell-intel-api/internal/application/fusion"
	"ell-intel-api/internal/config"
	obseino "ell-intel-api/internal/observability/eino"
	"ell-intel-api/pkg/logger"
)

// ErrGenerationUnavailable 模型调用失败或返回空回答
var ErrGenerationUnavailable = errors.New("generation unavailable")

const (
	systemPrompt = "Use the following context to answer the question. If you don't know the answer, say so."
	userPrompt   = "Context:\n{context}\n\nQuestion: {question}\n\nAnswer:"
)

func newAnswerTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	)
}

// renderAnswerPrompt 渲染问答模板
func renderAnswerPrompt(ctx context.Context, tpl prompt.ChatTemplate, query, contextText string) ([]*schema.Message, error) {
	msgs, err := tpl.Format(ctx, map[string]any{
		"context":  contextText,
		"question": query,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render prompt: %w", ErrGenerationUnavailable, err)
	}
	return msgs, nil
}

// EinoGenerator 基于 eino ChatModel 的回答生成器
type EinoGenerator struct {
	model    model.BaseChatModel
	provider string
	tpl      prompt.ChatTemplate
}

// NewEinoGenerator 创建生成器；provider 仅用于指标标签
func NewEinoGenerator(m model.BaseChatModel, provider string) *EinoGenerator {
	return &EinoGenerator{model: m, provider: provider, tpl: newAnswerTemplate()}
}

// Generate 实现 fusion.AnswerGenerator
func (g *EinoGenerator) Generate(ctx context.Context, query, contextText string) (string, error) {
	if g == nil || g.model == nil {
		return "", fmt.Errorf("%w: no chat model", ErrGenerationUnavailable)
	}
	ctx = obseino.WithProvider(ctx, g.provider)

	msgs, err := renderAnswerPrompt(ctx, g.tpl, query, contextText)
	if err != nil {
		return "", err
	}

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: empty answer", ErrGenerationUnavailable)
	}
	return strings.TrimSpace(resp.Content), nil
}

// NewGenerator 按默认提供商的类型构造回答生成器
func NewGenerator(ctx context.Context, cfg *config.LLMConfig) (fusion.AnswerGenerator, error) {
	if cfg == nil || cfg.DefaultProvider == "" {
		return nil, errors.New("llm default_provider is not configured")
	}
	name := cfg.DefaultProvider
	providerCfg, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	switch t := providerType(providerCfg); t {
	case ProviderTypeAnthropic:
		logger.Info(ctx, "answer generator ready", "provider", name, "type", t, "model", providerCfg.Model)
		return NewAnthropicGenerator(name, providerCfg), nil
	case ProviderTypeOpenAI:
		m, err := NewEinoFactory(cfg).Get(ctx, name)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "answer generator ready", "provider", name, "type", t, "model", providerCfg.Model)
		return NewEinoGenerator(m, name), nil
	default:
		return nil, fmt.Errorf("provider %s has unsupported type %q", name, t)
	}
}
