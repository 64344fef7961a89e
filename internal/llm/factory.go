package llm

import "fmt"

// ProviderConfig selects and configures a provider pair.
type ProviderConfig struct {
	Provider       string // "openai" or "ollama" (default)
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
}

// NewTextGenerator creates the configured TextGenerator.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the configured EmbeddingGenerator. The
// client's Model is set to the embedding model so GetModel reports the model
// that actually produced the vectors.
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openai":
		c := NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.BaseURL,
		})
		c.cfg.Model = c.cfg.EmbeddingModel
		return c, nil
	case "ollama", "":
		c := NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.BaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
		})
		c.cfg.Model = c.cfg.EmbeddingModel
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
