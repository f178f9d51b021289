package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures an index backend.
type Config struct {
	// Provider is the backend: "memory" (default), "chromem" or "qdrant".
	Provider string

	// Chromem configures the chromem backend.
	Chromem ChromemConfig

	// Qdrant configures the qdrant backend.
	Qdrant QdrantConfig
}

// Builder constructs indexes from entry sets. A single Builder is
// created at startup and reused for every rebuild.
type Builder struct {
	cfg    Config
	logger *zap.Logger
}

// NewBuilder creates a Builder for the configured backend.
func NewBuilder(cfg Config, logger *zap.Logger) (*Builder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "memory", "", "chromem", "qdrant":
	default:
		return nil, fmt.Errorf("%w: unsupported index provider %q (supported: memory, chromem, qdrant)",
			ErrInvalidConfig, cfg.Provider)
	}
	return &Builder{cfg: cfg, logger: logger}, nil
}

// Build constructs a fresh Index over the given entries. The returned
// index fully replaces any prior one; callers publish it atomically.
func (b *Builder) Build(ctx context.Context, entries []Entry) (Index, error) {
	switch b.cfg.Provider {
	case "memory", "":
		return NewMemoryIndex(entries)
	case "chromem":
		return NewChromemIndex(ctx, b.cfg.Chromem, entries, b.logger)
	case "qdrant":
		return NewQdrantIndex(ctx, b.cfg.Qdrant, entries, b.logger)
	default:
		return nil, fmt.Errorf("%w: unsupported index provider %q", ErrInvalidConfig, b.cfg.Provider)
	}
}
