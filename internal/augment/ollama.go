package augment

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaConfig configures the Ollama-backed LLM.
type OllamaConfig struct {
	// Model is the Ollama model name (default: gpt-oss).
	Model string

	// ServerURL is the Ollama API endpoint (default: http://localhost:11434).
	ServerURL string
}

// ApplyDefaults fills in zero-valued fields.
func (c *OllamaConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-oss"
	}
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:11434"
	}
}

// OllamaLLM is an LLM backed by a local Ollama server.
type OllamaLLM struct {
	llm *ollama.LLM
}

// NewOllamaLLM creates an Ollama-backed LLM.
func NewOllamaLLM(cfg OllamaConfig) (*OllamaLLM, error) {
	cfg.ApplyDefaults()

	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.ServerURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	return &OllamaLLM{llm: llm}, nil
}

// Generate completes the prompt with the configured model.
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o.llm, prompt)
}
