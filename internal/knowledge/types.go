// Package knowledge provides the incident knowledge base: a store of
// failure/root-cause/solution records backed by an embedded SQLite database.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRecord indicates a record with missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Record is a stored incident: an observed failure, its diagnosed root
// cause, and the remediation that resolved it.
//
// The ID is assigned by the store at ingestion time and is immutable.
// Text fields are treated as immutable once the record has been indexed;
// changing them requires re-ingesting and rebuilding the index.
type Record struct {
	// ID is the unique, store-assigned identifier.
	ID int64 `json:"id"`

	// Failure is the free-text description of the observed failure.
	Failure string `json:"failure"`

	// RootCause is the free-text diagnosis.
	RootCause string `json:"root_cause"`

	// Solution is the free-text remediation steps.
	Solution string `json:"solution"`
}

// Validate checks that all required text fields are present.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Failure) == "" {
		return fmt.Errorf("%w: failure is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.RootCause) == "" {
		return fmt.Errorf("%w: root cause is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Solution) == "" {
		return fmt.Errorf("%w: solution is required", ErrInvalidRecord)
	}
	return nil
}

// Document returns the canonical text that is embedded for this record.
//
// The same preparation is applied at ingestion time and at query time;
// any divergence between the two would skew ranking, so all embedding
// input must go through this function or CleanText.
func (r Record) Document() string {
	return fmt.Sprintf("failure: %s, root_cause: %s, solution: %s",
		CleanText(r.Failure), CleanText(r.RootCause), CleanText(r.Solution))
}

// Store is the record store consumed by the retrieval engine.
//
// AllRecords returns the full current set ordered by ascending ID so
// that index builds are deterministic.
type Store interface {
	AllRecords(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Add(ctx context.Context, rec Record) (int64, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
