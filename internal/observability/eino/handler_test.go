package eino

import (
	"context"
	"errors"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ell-intel-api/pkg/metrics"
)

func TestProviderFromContext(t *testing.T) {
	assert.Equal(t, "unknown", ProviderFromContext(context.Background()))
	assert.Equal(t, "unknown", ProviderFromContext(WithProvider(context.Background(), "  ")))
	assert.Equal(t, "openai", ProviderFromContext(WithProvider(context.Background(), " openai ")))
}

func TestChatModelHandlerSuccess(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := WithProvider(context.Background(), "test-ok")
	info := &einocb.RunInfo{Name: "answer", Type: "OpenAI"}

	before := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("test-ok", "m1", "success"))
	tokensBefore := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("test-ok", "m1", "completion"))

	ctx = h.OnStart(ctx, info, &model.CallbackInput{Config: &model.Config{Model: "m1"}})
	h.OnEnd(ctx, info, &model.CallbackOutput{
		Message:    schema.AssistantMessage("hi", nil),
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("test-ok", "m1", "success")))
	assert.Equal(t, tokensBefore+4, testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("test-ok", "m1", "completion")))
}

func TestChatModelHandlerError(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := WithProvider(context.Background(), "test-err")

	before := testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("test-err", "m2", "error"))
	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "m2"}})
	h.OnError(ctx, nil, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.LLMCallTotal.WithLabelValues("test-err", "m2", "error")))
}

func TestEmbeddingHandlerCountsTextsAndCalls(t *testing.T) {
	h := newEmbeddingCallbackHandler()
	ctx := context.Background()

	texts := testutil.ToFloat64(metrics.EmbeddingTexts.WithLabelValues("emb-1"))
	ok := testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("emb-1", "success"))
	failed := testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("emb-1", "error"))

	in := &embedding.CallbackInput{Texts: []string{"a", "b"}, Config: &embedding.Config{Model: "emb-1"}}
	okCtx := h.OnStart(ctx, nil, in)
	h.OnEnd(okCtx, nil, &embedding.CallbackOutput{Embeddings: [][]float64{{1}, {2}}})

	errCtx := h.OnStart(ctx, nil, in)
	h.OnError(errCtx, nil, errors.New("rate limited"))

	assert.Equal(t, texts+4, testutil.ToFloat64(metrics.EmbeddingTexts.WithLabelValues("emb-1")))
	assert.Equal(t, ok+1, testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("emb-1", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("emb-1", "error")))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotNil(t, globalHandler())
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
