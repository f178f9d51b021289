package engine

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/incidentd/internal/index"
	"github.com/fyrsmithlabs/incidentd/internal/knowledge"
)

// IndexBuilder constructs a fresh index over a set of embedded
// records. *index.Builder is the production implementation.
type IndexBuilder interface {
	Build(ctx context.Context, entries []index.Entry) (index.Index, error)
}

var (
	// ErrInvalidQuery indicates an empty or whitespace-only query.
	ErrInvalidQuery = errors.New("query must not be empty")

	// ErrEmbedding indicates the query could not be embedded.
	ErrEmbedding = errors.New("query embedding failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine is closed")
)

// Status describes the outcome of an analysis.
type Status string

const (
	// StatusSuccess means at least one candidate passed the
	// confidence threshold.
	StatusSuccess Status = "success"

	// StatusNoMatch means no candidate passed the threshold, or the
	// knowledge base is empty.
	StatusNoMatch Status = "no_match"
)

// ScoredCandidate is a knowledge record paired with its retrieval
// scores for a particular query.
type ScoredCandidate struct {
	Record knowledge.Record `json:"record"`

	// RawScore is the backend's un-normalized score (a distance or a
	// similarity depending on the index metric).
	RawScore float32 `json:"raw_score"`

	// Confidence is the normalized score in [0,1].
	Confidence float64 `json:"confidence"`

	// Reasoning is an optional model-written justification. Empty when
	// augmentation is disabled or unavailable.
	Reasoning string `json:"reasoning,omitempty"`
}

// Result is the outcome of analyzing one issue description.
type Result struct {
	Status Status `json:"status"`

	// Candidates are the returned matches, best first.
	Candidates []ScoredCandidate `json:"candidates"`

	// TotalMatches counts every candidate that passed the threshold,
	// including those truncated away by the result limit.
	TotalMatches int `json:"total_matches"`
}

// Augmenter refines retrieval candidates, typically by asking a
// language model to re-assess them against the query.
//
// Augmenters are strictly best-effort: any error leaves the original
// candidates in force. Implementations must honor ctx cancellation.
type Augmenter interface {
	Augment(ctx context.Context, query string, candidates []ScoredCandidate) ([]ScoredCandidate, error)
}
