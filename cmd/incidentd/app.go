package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/incidentd/internal/augment"
	"github.com/fyrsmithlabs/incidentd/internal/config"
	"github.com/fyrsmithlabs/incidentd/internal/embeddings"
	"github.com/fyrsmithlabs/incidentd/internal/engine"
	"github.com/fyrsmithlabs/incidentd/internal/index"
	"github.com/fyrsmithlabs/incidentd/internal/knowledge"
	"github.com/fyrsmithlabs/incidentd/internal/logging"
	"github.com/fyrsmithlabs/incidentd/internal/telemetry"
)

// app bundles the wired service graph behind the CLI commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	tel      *telemetry.Telemetry
	store    knowledge.Store
	embedder embeddings.Provider
	engine   *engine.Engine
}

// newApp loads configuration and wires the full retrieval stack: store,
// embedder, index builder, optional augmenter and engine. The engine's
// index is built before newApp returns, so the app is query-ready.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, tel: tel}

	store, err := knowledge.NewSQLiteStore(knowledge.SQLiteConfig{Path: cfg.Store.Path}, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}
	a.store = store

	if cfg.Store.Seed {
		if err := knowledge.Seed(ctx, store, logger); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to seed knowledge store: %w", err)
		}
	}

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey,
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.embedder = embedder

	builder, err := index.NewBuilder(index.Config{
		Provider: cfg.Index.Provider,
		Chromem: index.ChromemConfig{
			Path:       cfg.Index.Chromem.Path,
			Collection: cfg.Index.Chromem.Collection,
			Compress:   cfg.Index.Chromem.Compress,
		},
		Qdrant: index.QdrantConfig{
			Host:       cfg.Index.Qdrant.Host,
			Port:       cfg.Index.Qdrant.Port,
			Collection: cfg.Index.Qdrant.Collection,
			UseTLS:     cfg.Index.Qdrant.UseTLS,
		},
	}, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create index builder: %w", err)
	}

	var augmenter engine.Augmenter
	if cfg.Augment.Enabled {
		llm, err := augment.NewOllamaLLM(augment.OllamaConfig{
			Model:     cfg.Augment.Model,
			ServerURL: cfg.Augment.ServerURL,
		})
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		augmenter, err = augment.New(llm, logger)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to create augmenter: %w", err)
		}
	}

	eng, err := engine.New(&engine.Config{
		MaxSolutions:   cfg.Retrieval.MaxSolutions,
		Overfetch:      cfg.Retrieval.Overfetch,
		MaxK:           cfg.Retrieval.MaxK,
		Threshold:      cfg.Retrieval.Threshold,
		AugmentTimeout: cfg.Augment.Timeout,
	}, store, embedder, builder, augmenter, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	a.engine = eng

	if err := eng.Rebuild(ctx); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	return a, nil
}

// close tears down in reverse construction order.
func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("failed to close engine", zap.Error(err))
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			a.logger.Warn("failed to close embedder", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shut down telemetry", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = logging.Sync(a.logger)
	}
}
