package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ell-intel-api/internal/config"
)

type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestEinoGeneratorRendersPrompt(t *testing.T) {
	m := &fakeChatModel{reply: "  Alice is a loyal customer.\n"}
	g := NewEinoGenerator(m, "openai")

	answer, err := g.Generate(context.Background(), "Who is Alice?", "[Document: crm] Alice {vip}")
	require.NoError(t, err)
	assert.Equal(t, "Alice is a loyal customer.", answer)

	require.Len(t, m.seen, 2)
	assert.Equal(t, schema.System, m.seen[0].Role)
	assert.Equal(t, systemPrompt, m.seen[0].Content)
	assert.Equal(t, schema.User, m.seen[1].Role)
	assert.Equal(t, "Context:\n[Document: crm] Alice {vip}\n\nQuestion: Who is Alice?\n\nAnswer:", m.seen[1].Content)
}

func TestEinoGeneratorErrors(t *testing.T) {
	_, err := NewEinoGenerator(&fakeChatModel{reply: " \n\t"}, "openai").Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)

	_, err = NewEinoGenerator(&fakeChatModel{err: errors.New("429")}, "openai").Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)

	_, err = NewEinoGenerator(nil, "openai").Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestNewGeneratorSelectsProvider(t *testing.T) {
	_, err := NewGenerator(context.Background(), &config.LLMConfig{})
	assert.Error(t, err)

	_, err = NewGenerator(context.Background(), &config.LLMConfig{DefaultProvider: "missing"})
	assert.Error(t, err)

	_, err = NewGenerator(context.Background(), &config.LLMConfig{
		DefaultProvider: "x",
		Providers:       map[string]config.ProviderConfig{"x": {Type: "bedrock"}},
	})
	assert.Error(t, err)

	g, err := NewGenerator(context.Background(), &config.LLMConfig{
		DefaultProvider: "claude",
		Providers:       map[string]config.ProviderConfig{"claude": {Type: "Anthropic", APIKey: "k", Model: "claude-sonnet-4-5"}},
	})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicGenerator{}, g)
}

func TestEinoFactoryRejectsAnthropic(t *testing.T) {
	f := NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "claude",
		Providers:       map[string]config.ProviderConfig{"claude": {Type: "anthropic"}},
	})
	_, err := f.Default(context.Background())
	assert.Error(t, err)
}

func newAnthropicServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicGenerator(t *testing.T) {
	var req map[string]any
	srv := newAnthropicServer(t, http.StatusOK, `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [{"type": "text", "text": "Bob prefers SMS."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 42, "output_tokens": 5}
	}`, &req)

	g := NewAnthropicGenerator("claude", config.ProviderConfig{
		Type:      "anthropic",
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/",
		Model:     "claude-test",
		MaxTokens: 256,
	}, option.WithMaxRetries(0))

	answer, err := g.Generate(context.Background(), "How to reach Bob?", "[Memory] Bob likes texts")
	require.NoError(t, err)
	assert.Equal(t, "Bob prefers SMS.", answer)

	assert.Equal(t, "claude-test", req["model"])
	assert.EqualValues(t, 256, req["max_tokens"])
	system, ok := req["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Equal(t, systemPrompt, system[0].(map[string]any)["text"])
}

func TestAnthropicGeneratorEmptyAndError(t *testing.T) {
	empty := newAnthropicServer(t, http.StatusOK, `{
		"id": "msg_02", "type": "message", "role": "assistant", "model": "m",
		"content": [{"type": "text", "text": "   "}],
		"stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 0}
	}`, nil)
	g := NewAnthropicGenerator("claude", config.ProviderConfig{APIKey: "k", BaseURL: empty.URL + "/", Model: "m"}, option.WithMaxRetries(0))
	_, err := g.Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)

	failing := newAnthropicServer(t, http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, nil)
	g = NewAnthropicGenerator("claude", config.ProviderConfig{APIKey: "k", BaseURL: failing.URL + "/", Model: "m"}, option.WithMaxRetries(0))
	_, err = g.Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}
