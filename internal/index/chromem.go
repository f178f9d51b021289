package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the
	// index purely in memory.
	Path string

	// Collection is the collection name. Default: "incidents".
	Collection string

	// Compress enables gzip compression for persisted data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "incidents"
	}
}

// ChromemIndex is an Index backed by an embedded chromem-go database.
// Raw scores are cosine similarities.
type ChromemIndex struct {
	collection *chromem.Collection
	count      int
	logger     *zap.Logger
}

// Vectors are supplied pre-computed, so text embedding must never be
// requested from chromem itself.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index: embeddings must be precomputed")
}

// NewChromemIndex builds a chromem-backed index from the given entries.
// Any existing collection with the same name is replaced.
func NewChromemIndex(ctx context.Context, cfg ChromemConfig, entries []Entry, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Full replace: a rebuild must never merge with stale vectors.
	_ = db.DeleteCollection(cfg.Collection)

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	if len(entries) > 0 {
		docs := make([]chromem.Document, len(entries))
		for i, e := range entries {
			id := strconv.FormatInt(e.ID, 10)
			docs[i] = chromem.Document{
				ID:        id,
				Content:   id,
				Embedding: e.Vector,
			}
		}
		if err := collection.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("adding documents: %w", err)
		}
	}

	logger.Debug("chromem index built",
		zap.String("collection", cfg.Collection),
		zap.Int("entries", len(entries)),
	)

	return &ChromemIndex{collection: collection, count: len(entries), logger: logger}, nil
}

// Search returns the k most similar entries by cosine similarity.
func (idx *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if idx.count == 0 {
		return []Hit{}, nil
	}
	// chromem requires nResults <= document count.
	if k > idx.count {
		k = idx.count
	}

	results, err := idx.collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			idx.logger.Warn("skipping result with non-numeric id", zap.String("id", r.ID))
			continue
		}
		hits = append(hits, Hit{ID: id, RawScore: r.Similarity})
	}
	return hits, nil
}

// Metric returns MetricCosine.
func (idx *ChromemIndex) Metric() Metric { return MetricCosine }

// Len returns the number of indexed entries.
func (idx *ChromemIndex) Len() int { return idx.count }

// Close is a no-op; chromem persists writes as they happen.
func (idx *ChromemIndex) Close() error { return nil }
