package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_UnknownProvider(t *testing.T) {
	_, err := NewProvider(Config{Provider: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OpenAIConfig
		wantErr bool
	}{
		{"valid", OpenAIConfig{BaseURL: "http://localhost:8080/v1", Model: "BAAI/bge-base-en-v1.5"}, false},
		{"missing base url", OpenAIConfig{Model: "m"}, true},
		{"missing model", OpenAIConfig{BaseURL: "http://localhost:8080/v1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL: "http://localhost:8080/v1",
		Model:   "BAAI/bge-base-en-v1.5",
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 768, p.Dimension())
}

func TestNewOpenAIProvider_ExplicitDimension(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		Dimension: 1536,
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 1536, p.Dimension())
}
