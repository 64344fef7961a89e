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

// OpenAIConfig holds configuration shared by the OpenAI completion and
// embedding clients.
type OpenAIConfig struct {
	APIKey         string
	Model          string        // default: gpt-4o-mini
	EmbeddingModel string        // default: text-embedding-3-small
	BaseURL        string        // default: https://api.openai.com
	Timeout        time.Duration // default: 60s
	MaxRetries     int           // default: 2
}

func (c *OpenAIConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// OpenAIClient implements TextGenerator and EmbeddingGenerator against the
// OpenAI HTTP API.
type OpenAIClient struct {
	cfg     OpenAIConfig
	client  *http.Client
	breaker *CircuitBreaker
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	cfg.applyDefaults()
	return &OpenAIClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("openai"),
	}
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Complete sends a single-turn, temperature-0 completion and returns the
// response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := withRetry(ctx, c.cfg.MaxRetries+1, time.Second, func() error {
		result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			var respData openAIChatResponse
			err := c.postJSON(ctx, "/v1/chat/completions", openAIChatRequest{
				Model:       c.cfg.Model,
				Messages:    []openAIChatMessage{{Role: "user", Content: prompt}},
				Temperature: 0,
			}, &respData)
			if err != nil {
				return nil, err
			}
			if len(respData.Choices) == 0 {
				return nil, fmt.Errorf("openai returned no choices")
			}
			return respData.Choices[0].Message.Content, nil
		})
		if err != nil {
			return err
		}
		out = result.(string)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	return out, nil
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := withRetry(ctx, c.cfg.MaxRetries+1, time.Second, func() error {
		result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			var respData openAIEmbeddingResponse
			err := c.postJSON(ctx, "/v1/embeddings", openAIEmbeddingRequest{
				Model: c.cfg.EmbeddingModel,
				Input: text,
			}, &respData)
			if err != nil {
				return nil, err
			}
			if len(respData.Data) == 0 || len(respData.Data[0].Embedding) == 0 {
				return nil, fmt.Errorf("openai returned empty embedding")
			}
			raw := respData.Data[0].Embedding
			vec := make([]float32, len(raw))
			for i, v := range raw {
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
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	return out, nil
}

// postJSON sends a JSON request to the OpenAI API and decodes the response.
func (c *OpenAIClient) postJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
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
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetModel returns the configured completion model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

// Compile-time assertions.
var (
	_ TextGenerator      = (*OpenAIClient)(nil)
	_ EmbeddingGenerator = (*OpenAIClient)(nil)
)
