package wire

import (
	"context"
	"testing"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ell-intel-api/internal/application/fusion"
	"ell-intel-api/internal/config"
	"ell-intel-api/internal/infrastructure/persistence/chromem"
)

type unitEmbedder struct{}

func (unitEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func TestProvideVectorStoreChromemInMemory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Vector.Backend = BackendChromem

	store, cleanup, err := ProvideVectorStore(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &chromem.Store{}, store)
	assert.Equal(t, "chromem", store.Backend())
}

func TestProvideVectorStoreUnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Vector.Backend = "faiss"

	_, _, err := ProvideVectorStore(context.Background(), cfg)
	assert.Error(t, err)

	store, cleanup, err := ProvideVectorStoreOptional(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, store)
}

func TestOptionalProvidersReturnNilInterfaces(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.RateLimit.Enabled = true
	cfg.Features.MemoryWriteback.Enabled = true

	assert.Nil(t, ProvideRateLimiterOptional(cfg, nil))
	assert.Nil(t, ProvideTurnRecorder(cfg, nil))
	assert.Nil(t, ProvideMemoryRecaller(cfg, nil))
	assert.Nil(t, ProvideRedisCacheOptional(nil))
}

func TestProvideRedisClientOptionalDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.Redis.Enabled = false

	client, cleanup, err := ProvideRedisClientOptional(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, client)
}

func TestProvideMemMachineClientOptional(t *testing.T) {
	cfg := &config.Config{}
	client, cleanup, err := ProvideMemMachineClientOptional(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, client)

	cfg.Memory.MemMachine.Enabled = true
	cfg.Memory.MemMachine.BaseURL = "http://memmachine:8090/"
	client, cleanup, err = ProvideMemMachineClientOptional(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, client)
	assert.Equal(t, "http://memmachine:8090/mcp/", client.Endpoint())
}

func TestMemoryDisabledFusionIsNotDegraded(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.Vector.Backend = BackendChromem

	store, cleanup, err := ProvideVectorStore(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()

	client, memCleanup, err := ProvideMemMachineClientOptional(ctx, cfg)
	require.NoError(t, err)
	defer memCleanup()

	engine := ProvideFusionEngine(cfg,
		ProvideRetriever(cfg, unitEmbedder{}, store),
		ProvideMemoryRecaller(cfg, client),
		nil,
	)
	resp, err := engine.Fuse(ctx, fusion.FuseInput{Query: "who churned", IncludeMemories: true, Identity: "u-1"})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Equal(t, fusion.NoContextAnswer, resp.Answer)
}
