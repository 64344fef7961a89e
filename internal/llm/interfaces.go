// Package llm provides the text-completion and embedding providers used by
// the enrichment pipeline, wrapped in circuit breakers with bounded retry.
// Provider output is never trusted raw: responses pass through the
// schema-checking parsers in this package before anything is written.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All enrichment prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
