// Package embeddings provides embedding generation via multiple providers.
//
// Two providers are supported: "fastembed" runs a local ONNX model and
// requires CGO, "openai" talks to any OpenAI-compatible HTTP endpoint
// (including TEI and Ollama's /v1 API). Providers are deterministic for
// a fixed model: the same text always yields the same vector, and the
// same text preparation must be used at ingestion and query time.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates vector embeddings from text.
//
// Implementations are safe for unlimited concurrent reads once
// constructed; model initialization happens exactly once, in the
// constructor.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is the provider type: "fastembed" or "openai".
	Provider string

	// Model is the embedding model name.
	Model string

	// BaseURL is the API base URL (openai provider only).
	BaseURL string

	// APIKey is the API key (openai provider only, optional for TEI).
	APIKey string

	// CacheDir is the model cache directory (fastembed provider only).
	CacheDir string

	// Dimension is the embedding dimension. Required for the openai
	// provider; for fastembed it is derived from the model.
	Dimension int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
