package eino

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/pkg/metrics"
)

// newEmbeddingCallbackHandler 记录查询与导入时的向量化调用；缓存命中不会走到这里
func newEmbeddingCallbackHandler() *cbtemplate.EmbeddingCallbackHandler {
	return &cbtemplate.EmbeddingCallbackHandler{
		OnStart: func(ctx context.Context, _ *einocb.RunInfo, input *embedding.CallbackInput) context.Context {
			modelName := ""
			texts := 0
			if input != nil {
				texts = len(input.Texts)
				if input.Config != nil {
					modelName = input.Config.Model
				}
			}
			ctx = context.WithValue(ctx, modelNameKey{}, modelName)
			metrics.EmbeddingTexts.WithLabelValues(modelName).Add(float64(texts))

			ctx, _ = otel.Tracer("eino").Start(ctx, "embedding.embed", trace.WithAttributes(
				attribute.String("embedding.model", modelName),
				attribute.Int("embedding.texts", texts),
			))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *embedding.CallbackOutput) context.Context {
			metrics.EmbeddingCallTotal.WithLabelValues(modelNameFromContext(ctx), "success").Inc()
			span := trace.SpanFromContext(ctx)
			if output != nil && output.TokenUsage != nil {
				span.SetAttributes(attribute.Int("embedding.prompt_tokens", output.TokenUsage.PromptTokens))
			}
			span.End()
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			metrics.EmbeddingCallTotal.WithLabelValues(modelNameFromContext(ctx), "error").Inc()
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return ctx
		},
	}
}
