package index

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// MemoryIndex is an exact flat index using L2 distance.
//
// Every search scans all entries, which is fast enough for knowledge
// bases in the thousands of records and gives exactly reproducible
// results: ties on distance are broken by the lower record ID.
type MemoryIndex struct {
	entries   []Entry
	dimension int
}

// NewMemoryIndex builds a flat index from the given entries. All vectors
// must share the same dimension.
func NewMemoryIndex(entries []Entry) (*MemoryIndex, error) {
	idx := &MemoryIndex{}
	if len(entries) == 0 {
		return idx, nil
	}

	idx.dimension = len(entries[0].Vector)
	idx.entries = make([]Entry, len(entries))
	copy(idx.entries, entries)

	for _, e := range idx.entries {
		if len(e.Vector) != idx.dimension {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, want %d",
				ErrInvalidConfig, e.ID, len(e.Vector), idx.dimension)
		}
	}
	return idx, nil
}

// Search returns the k entries with the smallest L2 distance to the
// query, ordered by ascending distance, then ascending ID.
func (idx *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(idx.entries) == 0 {
		return []Hit{}, nil
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), idx.dimension)
	}

	hits := make([]Hit, len(idx.entries))
	for i, e := range idx.entries {
		hits[i] = Hit{ID: e.ID, RawScore: l2Distance(query, e.Vector)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].RawScore != hits[j].RawScore {
			return hits[i].RawScore < hits[j].RawScore
		}
		return hits[i].ID < hits[j].ID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Metric returns MetricL2.
func (idx *MemoryIndex) Metric() Metric { return MetricL2 }

// Len returns the number of indexed entries.
func (idx *MemoryIndex) Len() int { return len(idx.entries) }

// Close is a no-op for the in-memory index.
func (idx *MemoryIndex) Close() error { return nil }

func l2Distance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
