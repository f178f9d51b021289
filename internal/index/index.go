// Package index provides nearest-neighbor search over incident record
// embeddings.
//
// Three backends are available: "memory" (exact flat search, L2
// distance, fully deterministic), "chromem" (embedded persistent
// chromem-go, cosine similarity) and "qdrant" (external Qdrant server
// over gRPC, cosine similarity). An Index is immutable once built;
// rebuilds construct a fresh Index which the caller publishes with an
// atomic swap, so in-flight searches never observe a partially-built
// index.
package index

import (
	"context"
	"errors"
)

// Metric identifies the similarity metric a backend reports raw scores in.
type Metric string

const (
	// MetricL2 is Euclidean distance: smaller raw score = more similar.
	MetricL2 Metric = "l2"

	// MetricCosine is cosine similarity: larger raw score = more similar.
	MetricCosine Metric = "cosine"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch is returned when a query vector's dimension
	// does not match the indexed vectors.
	ErrDimensionMismatch = errors.New("query dimension does not match index")

	// ErrInvalidK is returned for non-positive k.
	ErrInvalidK = errors.New("k must be positive")
)

// Entry pairs a record identifier with its embedding vector.
type Entry struct {
	ID     int64
	Vector []float32
}

// Hit is a single search result: a record identifier and the raw,
// un-normalized score in the backend's metric.
type Hit struct {
	ID       int64
	RawScore float32
}

// Index is a queryable nearest-neighbor index. Implementations are safe
// for unlimited concurrent searches once built.
type Index interface {
	// Search returns the k nearest entries ordered best-first. Requesting
	// more results than the index holds returns fewer, not an error.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Metric reports the metric raw scores are expressed in.
	Metric() Metric

	// Len returns the number of indexed entries.
	Len() int

	// Close releases backend resources.
	Close() error
}
