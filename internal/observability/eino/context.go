package eino

import (
	"context"
	"strings"
)

type providerCtxKey struct{}

// WithProvider 在 ctx 中标记本次 LLM 调用的提供商名，供回调打标签
func WithProvider(ctx context.Context, provider string) context.Context {
	p := strings.TrimSpace(provider)
	if ctx == nil || p == "" {
		return ctx
	}
	return context.WithValue(ctx, providerCtxKey{}, p)
}

// ProviderFromContext 读取提供商名，缺省 unknown
func ProviderFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(providerCtxKey{}).(string)
	if !ok || s == "" {
		return "unknown"
	}
	return s
}
