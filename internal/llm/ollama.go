package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaConfig holds configuration for the local Ollama client.
type OllamaConfig struct {
	BaseURL        string        // default: http://localhost:11434
	Model          string        // default: qwen2.5:7b
	EmbeddingModel string        // default: nomic-embed-text
	Timeout        time.Duration // default: 120s; local models are slow
	MaxRetries     int           // default: 1; retrying a slow local model rarely helps
}

func (c *OllamaConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "qwen2.5:7b"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "nomic-embed-text"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 1
	}
}

// OllamaClient implements TextGenerator and EmbeddingGenerator against a
// local Ollama server. Used for development without API keys.
type OllamaClient struct {
	cfg     OllamaConfig
	client  *http.Client
	breaker *CircuitBreaker
}

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	cfg.applyDefaults()
	return &OllamaClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("ollama"),
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Complete sends a non-streaming generate request and returns the response.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := withRetry(ctx, c.cfg.MaxRetries+1, 2*time.Second, func() error {
		result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			var respData ollamaGenerateResponse
			err := c.postJSON(ctx, "/api/generate", ollamaGenerateRequest{
				Model:  c.cfg.Model,
				Prompt: prompt,
				Stream: false,
			}, &respData)
			if err != nil {
				return nil, err
			}
			if respData.Response == "" {
				return nil, fmt.Errorf("ollama returned empty response")
			}
			return respData.Response, nil
		})
		if err != nil {
			return err
		}
		out = result.(string)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama completion: %w", err)
	}
	return out, nil
}

// Embed generates an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := withRetry(ctx, c.cfg.MaxRetries+1, 2*time.Second, func() error {
		result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			var respData ollamaEmbeddingResponse
			err := c.postJSON(ctx, "/api/embeddings", ollamaEmbeddingRequest{
				Model:  c.cfg.EmbeddingModel,
				Prompt: text,
			}, &respData)
			if err != nil {
				return nil, err
			}
			if len(respData.Embedding) == 0 {
				return nil, fmt.Errorf("ollama returned empty embedding")
			}
			vec := make([]float32, len(respData.Embedding))
			for i, v := range respData.Embedding {
				vec[i] = float32(v)
			}
			return vec, nil
		})
		if err != nil {
			return err
		}
		out = result.([]float32)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	return out, nil
}

func (c *OllamaClient) postJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetModel returns the configured completion model name.
func (c *OllamaClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertions.
var (
	_ TextGenerator      = (*OllamaClient)(nil)
	_ EmbeddingGenerator = (*OllamaClient)(nil)
)
