// Package config provides configuration loading for incidentd.
//
// Configuration is loaded from an optional YAML file, then overridden
// by environment variables, then backfilled with defaults.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete incidentd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Index      IndexConfig      `koanf:"index"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Augment    AugmentConfig    `koanf:"augment"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export configuration. Telemetry
// is off unless an endpoint is configured and Enabled is set.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// StoreConfig holds knowledge base storage configuration.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `koanf:"path"`

	// Seed loads the built-in starter records into an empty store.
	Seed bool `koanf:"seed"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (default) or "openai".
	Provider string `koanf:"provider"`

	// Model is the provider-specific model name.
	Model string `koanf:"model"`

	// BaseURL points OpenAI-compatible providers at a custom endpoint.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates OpenAI-compatible providers.
	APIKey string `koanf:"api_key"`

	// CacheDir is where fastembed stores downloaded models.
	CacheDir string `koanf:"cache_dir"`

	// Dimension overrides the embedding dimension for providers that
	// cannot report it.
	Dimension int `koanf:"dimension"`
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	// Provider is "memory" (default), "chromem" or "qdrant".
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds chromem backend configuration.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig holds qdrant backend configuration.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
}

// RetrievalConfig holds retrieval engine tuning.
type RetrievalConfig struct {
	MaxSolutions int     `koanf:"max_solutions"`
	Overfetch    int     `koanf:"overfetch"`
	MaxK         int     `koanf:"max_k"`
	Threshold    float64 `koanf:"threshold"`
}

// AugmentConfig holds LLM augmentation configuration. Disabled by
// default; retrieval works fully without it.
type AugmentConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Model     string        `koanf:"model"`
	ServerURL string        `koanf:"server_url"`
	Timeout   time.Duration `koanf:"timeout"`
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "incidentd"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "incidents.db"
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Index.Provider == "" {
		cfg.Index.Provider = "memory"
	}
	if cfg.Retrieval.MaxSolutions == 0 {
		cfg.Retrieval.MaxSolutions = 5
	}
	if cfg.Retrieval.Overfetch == 0 {
		cfg.Retrieval.Overfetch = 5
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 20
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.60
	}
	if cfg.Augment.Model == "" {
		cfg.Augment.Model = "gpt-oss"
	}
	if cfg.Augment.ServerURL == "" {
		cfg.Augment.ServerURL = "http://localhost:11434"
	}
	if cfg.Augment.Timeout == 0 {
		cfg.Augment.Timeout = 8 * time.Second
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1, 65535], got %d", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Log.Format)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "openai":
	default:
		return fmt.Errorf("embeddings provider must be fastembed or openai, got %q", c.Embeddings.Provider)
	}

	switch c.Index.Provider {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("index provider must be memory, chromem or qdrant, got %q", c.Index.Provider)
	}

	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval threshold must be in [0, 1], got %v", c.Retrieval.Threshold)
	}
	if c.Retrieval.MaxSolutions < 1 {
		return fmt.Errorf("retrieval max_solutions must be positive, got %d", c.Retrieval.MaxSolutions)
	}
	if c.Retrieval.MaxK < c.Retrieval.Overfetch {
		return fmt.Errorf("retrieval max_k (%d) must be at least overfetch (%d)", c.Retrieval.MaxK, c.Retrieval.Overfetch)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
	}

	return nil
}
