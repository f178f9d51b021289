package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "incidentd", cfg.Telemetry.ServiceName)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "incidents.db", cfg.Store.Path)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "memory", cfg.Index.Provider)
	assert.Equal(t, 5, cfg.Retrieval.MaxSolutions)
	assert.Equal(t, 5, cfg.Retrieval.Overfetch)
	assert.Equal(t, 20, cfg.Retrieval.MaxK)
	assert.InDelta(t, 0.60, cfg.Retrieval.Threshold, 1e-9)
	assert.False(t, cfg.Augment.Enabled)
	assert.Equal(t, "gpt-oss", cfg.Augment.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Augment.ServerURL)
	assert.Equal(t, 8*time.Second, cfg.Augment.Timeout)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
log:
  level: debug
  format: console
retrieval:
  threshold: 0.75
  max_solutions: 3
index:
  provider: chromem
  chromem:
    path: /tmp/chromem
augment:
  enabled: true
  model: llama3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.75, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, 3, cfg.Retrieval.MaxSolutions)
	assert.Equal(t, "chromem", cfg.Index.Provider)
	assert.Equal(t, "/tmp/chromem", cfg.Index.Chromem.Path)
	assert.True(t, cfg.Augment.Enabled)
	assert.Equal(t, "llama3", cfg.Augment.Model)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0600))

	t.Setenv("INCIDENTD_SERVER_PORT", "9100")
	t.Setenv("INCIDENTD_RETRIEVAL_THRESHOLD", "0.8")
	t.Setenv("INCIDENTD_AUGMENT_SERVER_URL", "http://ollama:11434")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.InDelta(t, 0.8, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, "http://ollama:11434", cfg.Augment.ServerURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"bad embeddings provider", func(c *Config) { c.Embeddings.Provider = "word2vec" }, "embeddings provider"},
		{"bad index provider", func(c *Config) { c.Index.Provider = "faiss" }, "index provider"},
		{"threshold above one", func(c *Config) { c.Retrieval.Threshold = 1.1 }, "threshold"},
		{"threshold negative", func(c *Config) { c.Retrieval.Threshold = -0.1 }, "threshold"},
		{"max_k below overfetch", func(c *Config) { c.Retrieval.MaxK = 2 }, "max_k"},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
