package tracer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := Start(context.Background(), "fusion.Fuse")
	defer span.End()
	// 未启用时使用全局 noop provider，span 无效
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", newSampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", newSampler(0).Description())
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased")
}
