package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/internal/config"
	"ell-intel-api/pkg/metrics"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicGenerator 通过 Messages API 生成回答，不经过 eino 回调，指标在此处直接上报
type AnthropicGenerator struct {
	client      anthropic.Client
	provider    string
	model       string
	maxTokens   int64
	temperature float64
	tpl         prompt.ChatTemplate
}

// NewAnthropicGenerator 创建 Anthropic 生成器
func NewAnthropicGenerator(provider string, cfg config.ProviderConfig, opts ...option.RequestOption) *AnthropicGenerator {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	reqOpts = append(reqOpts, opts...)

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicGenerator{
		client:      anthropic.NewClient(reqOpts...),
		provider:    provider,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		tpl:         newAnswerTemplate(),
	}
}

// Generate 实现 fusion.AnswerGenerator
func (g *AnthropicGenerator) Generate(ctx context.Context, query, contextText string) (string, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", g.provider),
		attribute.String("llm.model", g.model),
	))
	defer span.End()

	start := time.Now()
	answer, usage, err := g.call(ctx, query, contextText)
	metrics.LLMCallDuration.WithLabelValues(g.provider, g.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	metrics.LLMCallTotal.WithLabelValues(g.provider, g.model, "success").Inc()
	metrics.LLMTokensUsed.WithLabelValues(g.provider, g.model, "prompt").Add(float64(usage.InputTokens))
	metrics.LLMTokensUsed.WithLabelValues(g.provider, g.model, "completion").Add(float64(usage.OutputTokens))
	span.SetAttributes(
		attribute.Int64("llm.prompt_tokens", usage.InputTokens),
		attribute.Int64("llm.completion_tokens", usage.OutputTokens),
	)
	return answer, nil
}

func (g *AnthropicGenerator) call(ctx context.Context, query, contextText string) (string, anthropic.Usage, error) {
	msgs, err := renderAnswerPrompt(ctx, g.tpl, query, contextText)
	if err != nil {
		return "", anthropic.Usage{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(g.temperature),
	}
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case schema.User:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", anthropic.Usage{}, fmt.Errorf("%w: anthropic: %w", ErrGenerationUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", resp.Usage, fmt.Errorf("%w: empty answer", ErrGenerationUnavailable)
	}
	return answer, resp.Usage, nil
}
