// Package config provides configuration management for Lantern.
// It loads settings from environment variables with the LANTERN_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Lantern application.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	LLM       LLMConfig
	CRM       CRMConfig
	Analytics AnalyticsConfig
	Pipeline  PipelineConfig
	Security  SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 7070)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine      string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath           string // Path to the sqlite data directory (default: ./data)
	PostgresDSN        string // Postgres connection string (required for postgres engine)
	EmbeddingDimension int    // Expected embedding vector dimension (default: 1536)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider             string // LLM provider: ollama, openai (default: ollama)
	OllamaURL            string // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string // Ollama model for completions (default: qwen2.5:7b)
	OllamaEmbeddingModel string // Ollama model for embeddings (default: nomic-embed-text)
	OpenAIAPIKey         string // OpenAI API key
	OpenAIModel          string // OpenAI model for completions (default: gpt-4o-mini)
	OpenAIEmbeddingModel string // OpenAI model for embeddings (default: text-embedding-3-small)
}

// CRMConfig contains the upstream CRM connection settings. An empty BaseURL
// disables the sync stage.
type CRMConfig struct {
	BaseURL  string // CRM API base URL
	Token    string // CRM API bearer token
	PageSize int    // Records per page when walking CRM listings (default: 100)
}

// AnalyticsConfig contains the optional neo4j analytics settings. An empty
// URI disables higher-order centrality metrics; importance falls back to
// degree and curated signals.
type AnalyticsConfig struct {
	Neo4jURI      string // bolt:// or neo4j:// URI
	Neo4jUsername string // default: neo4j
	Neo4jPassword string
}

// PipelineConfig contains enrichment pipeline tuning.
type PipelineConfig struct {
	BatchSize        int           // Items per provider-bound batch (default: 20)
	BatchesPerSecond float64       // Provider batch rate limit (default: 2)
	RunTimeout       time.Duration // Wall-clock budget per run (default: 30m)
	DedupPolicyPath  string        // Optional YAML dedup policy file
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string  // Security mode: development, production (default: development)
	APIToken     string  // API authentication token
	RatePerSec   float64 // Sustained HTTP request rate limit (default: 50)
	RateBurst    int     // Burst size for the HTTP rate limiter (default: 100)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the LANTERN_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("LANTERN_PORT", 7070),
			Host: getEnv("LANTERN_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine:      getEnv("LANTERN_STORAGE_ENGINE", "sqlite"),
			DataPath:           getEnv("LANTERN_DATA_PATH", "./data"),
			PostgresDSN:        getEnv("LANTERN_POSTGRES_DSN", ""),
			EmbeddingDimension: getEnvInt("LANTERN_EMBEDDING_DIMENSION", 1536),
		},
		LLM: LLMConfig{
			Provider:             getEnv("LANTERN_LLM_PROVIDER", "ollama"),
			OllamaURL:            getEnv("LANTERN_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("LANTERN_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("LANTERN_OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:         getEnv("LANTERN_OPENAI_API_KEY", ""),
			OpenAIModel:          getEnv("LANTERN_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbeddingModel: getEnv("LANTERN_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		CRM: CRMConfig{
			BaseURL:  getEnv("LANTERN_CRM_URL", ""),
			Token:    getEnv("LANTERN_CRM_TOKEN", ""),
			PageSize: getEnvInt("LANTERN_CRM_PAGE_SIZE", 100),
		},
		Analytics: AnalyticsConfig{
			Neo4jURI:      getEnv("LANTERN_NEO4J_URI", ""),
			Neo4jUsername: getEnv("LANTERN_NEO4J_USERNAME", "neo4j"),
			Neo4jPassword: getEnv("LANTERN_NEO4J_PASSWORD", ""),
		},
		Pipeline: PipelineConfig{
			BatchSize:        getEnvInt("LANTERN_PIPELINE_BATCH_SIZE", 20),
			BatchesPerSecond: getEnvFloat("LANTERN_PIPELINE_BATCHES_PER_SEC", 2),
			RunTimeout:       getEnvDuration("LANTERN_PIPELINE_RUN_TIMEOUT", 30*time.Minute),
			DedupPolicyPath:  getEnv("LANTERN_DEDUP_POLICY", ""),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("LANTERN_SECURITY_MODE", "development"),
			APIToken:     getEnv("LANTERN_API_TOKEN", ""),
			RatePerSec:   getEnvFloat("LANTERN_RATE_LIMIT", 50),
			RateBurst:    getEnvInt("LANTERN_RATE_BURST", 100),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: LANTERN_POSTGRES_DSN is required for the postgres engine")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}

	switch c.LLM.Provider {
	case "ollama":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("config: LANTERN_OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("config: unknown LLM provider %q", c.LLM.Provider)
	}

	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: LANTERN_API_TOKEN is required in production mode")
	}
	if c.Storage.EmbeddingDimension < 1 {
		return fmt.Errorf("config: embedding dimension must be positive")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, it returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the variable exists but cannot be parsed, it returns the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "15m") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
