package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, 1536, cfg.Storage.EmbeddingDimension)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "development", cfg.Security.SecurityMode)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Empty(t, cfg.CRM.BaseURL)
	assert.Empty(t, cfg.Analytics.Neo4jURI)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LANTERN_PORT", "9000")
	t.Setenv("LANTERN_STORAGE_ENGINE", "postgres")
	t.Setenv("LANTERN_POSTGRES_DSN", "postgres://localhost/lantern")
	t.Setenv("LANTERN_PIPELINE_RUN_TIMEOUT", "15m")
	t.Setenv("LANTERN_RATE_LIMIT", "10.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)
	assert.Equal(t, "postgres://localhost/lantern", cfg.Storage.PostgresDSN)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 10.5, cfg.Security.RatePerSec)
}

func TestLoadConfig_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("LANTERN_PORT", "not-a-number")
	t.Setenv("LANTERN_PIPELINE_RUN_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.RunTimeout)
}

func TestValidate(t *testing.T) {
	t.Run("postgres requires DSN", func(t *testing.T) {
		t.Setenv("LANTERN_STORAGE_ENGINE", "postgres")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "LANTERN_POSTGRES_DSN")
	})

	t.Run("unknown engine rejected", func(t *testing.T) {
		t.Setenv("LANTERN_STORAGE_ENGINE", "mongodb")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "unknown storage engine")
	})

	t.Run("openai requires key", func(t *testing.T) {
		t.Setenv("LANTERN_LLM_PROVIDER", "openai")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "LANTERN_OPENAI_API_KEY")
	})

	t.Run("production requires token", func(t *testing.T) {
		t.Setenv("LANTERN_SECURITY_MODE", "production")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "LANTERN_API_TOKEN")
	})
}
