package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ELL_TEST_HOST", "redis.internal")

	assert.Equal(t, "host: redis.internal", expandEnv("host: ${ELL_TEST_HOST}"))
	assert.Equal(t, "port: 6380", expandEnv("port: ${ELL_TEST_UNSET_PORT:6380}"))
	assert.Equal(t, "key: ", expandEnv("key: ${ELL_TEST_UNSET_KEY:}"))
	assert.Equal(t, "raw: ${ELL_TEST_UNSET_RAW}", expandEnv("raw: ${ELL_TEST_UNSET_RAW}"))
}

func TestLoadFromAppliesDefaultsAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("ELL_TEST_MEMMACHINE", "http://memmachine:9000")

	writeConfig(t, dir, "config.yaml", `
vector:
  backend: chromem
memory:
  memmachine:
    base_url: ${ELL_TEST_MEMMACHINE:http://localhost:8090}
fusion:
  max_k: 10
`)
	writeConfig(t, dir, "config.test.yaml", `
fusion:
  cache_ttl: 1m
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.Vector.Backend)
	assert.Equal(t, "http://memmachine:9000", cfg.Memory.MemMachine.BaseURL)
	assert.Equal(t, "default-user", cfg.Memory.MemMachine.UserID)
	assert.Equal(t, 10, cfg.Fusion.MaxK)
	assert.Equal(t, 5, cfg.Fusion.DefaultK)
	assert.Equal(t, time.Minute, cfg.Fusion.CacheTTL)
	assert.Equal(t, 3*time.Second, cfg.Fusion.MemoryTimeout)
	assert.Equal(t, "customer_id", cfg.Fusion.EntityIDField)
	assert.Equal(t, 12000, cfg.Fusion.ContextBudgetRunes)
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Vector: VectorConfig{Backend: "milvus"},
		Fusion: FusionConfig{DefaultK: 5, MaxK: 20},
	}
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Vector.Backend = "pinecone"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Fusion.DefaultK = 50
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.LLM.DefaultProvider = "openai"
	assert.Error(t, bad.Validate())
}
