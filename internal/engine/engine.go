// Package engine implements the retrieval pipeline: embed an issue
// description, search the vector index over known incidents, normalize
// raw scores into confidences, filter by threshold, and optionally let
// a language model refine the survivors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/incidentd/internal/confidence"
	"github.com/fyrsmithlabs/incidentd/internal/embeddings"
	"github.com/fyrsmithlabs/incidentd/internal/index"
	"github.com/fyrsmithlabs/incidentd/internal/knowledge"
)

const instrumentationName = "github.com/fyrsmithlabs/incidentd/internal/engine"

// Config configures the retrieval engine.
type Config struct {
	// MaxSolutions is the default result limit when a request does not
	// specify one (default: 5).
	MaxSolutions int

	// Overfetch is the minimum number of nearest neighbors fetched
	// from the index regardless of the result limit, so the threshold
	// filter has enough candidates to work with (default: 5).
	Overfetch int

	// MaxK caps the neighbor count fetched per query (default: 20).
	MaxK int

	// Threshold is the minimum confidence a candidate needs to be
	// returned (default: 0.60).
	Threshold float64

	// AugmentTimeout bounds a single augmentation call. On expiry the
	// un-augmented candidates are returned (default: 8s).
	AugmentTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxSolutions:   5,
		Overfetch:      5,
		MaxK:           20,
		Threshold:      confidence.DefaultThreshold,
		AugmentTimeout: 8 * time.Second,
	}
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxSolutions <= 0 {
		c.MaxSolutions = d.MaxSolutions
	}
	if c.Overfetch <= 0 {
		c.Overfetch = d.Overfetch
	}
	if c.MaxK <= 0 {
		c.MaxK = d.MaxK
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.AugmentTimeout <= 0 {
		c.AugmentTimeout = d.AugmentTimeout
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Threshold > 1 {
		return fmt.Errorf("threshold must be at most 1, got %v", c.Threshold)
	}
	if c.MaxK < c.Overfetch {
		return fmt.Errorf("max k (%d) must be at least overfetch (%d)", c.MaxK, c.Overfetch)
	}
	return nil
}

// snapshot is an immutable view of the indexed knowledge base. Rebuild
// replaces the whole snapshot atomically so reads never see a
// half-built index.
//
// refs counts in-flight readers plus one for being the current
// snapshot. The index is closed only when refs drops to zero, so a
// rebuild never tears down an index still serving a query. This
// matters for backends whose Close releases a live connection.
type snapshot struct {
	idx     index.Index
	scorer  *confidence.Scorer
	records map[int64]knowledge.Record

	refs int64
}

// acquire registers a reader. It fails when the last reference is
// already gone, meaning the index may be closed; the caller should
// re-load the current snapshot.
func (s *snapshot) acquire() bool {
	for {
		n := atomic.LoadInt64(&s.refs)
		if n == 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.refs, n, n+1) {
			return true
		}
	}
}

// release drops a reference, closing the index with the last one.
func (s *snapshot) release(logger *zap.Logger) {
	if atomic.AddInt64(&s.refs, -1) != 0 {
		return
	}
	if s.idx != nil {
		if err := s.idx.Close(); err != nil {
			logger.Warn("failed to close retired index", zap.Error(err))
		}
	}
}

// Engine embeds queries, searches the incident index, and ranks
// candidates by confidence.
type Engine struct {
	cfg       *Config
	store     knowledge.Store
	embedder  embeddings.Provider
	builder   IndexBuilder
	augmenter Augmenter
	logger    *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	analyzeCounter metric.Int64Counter
	rebuildCounter metric.Int64Counter
	augmentCounter metric.Int64Counter

	snap atomic.Pointer[snapshot]

	mu     sync.Mutex // serializes Rebuild and Close
	closed bool
}

// New creates a retrieval engine. The augmenter may be nil, in which
// case results are returned without reasoning.
func New(cfg *Config, store knowledge.Store, embedder embeddings.Provider, builder IndexBuilder, augmenter Augmenter, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if builder == nil {
		return nil, errors.New("index builder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		store:     store,
		embedder:  embedder,
		builder:   builder,
		augmenter: augmenter,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}

	e.initMetrics()

	return e, nil
}

func (e *Engine) initMetrics() {
	var err error

	e.analyzeCounter, err = e.meter.Int64Counter(
		"incidentd.engine.analyses_total",
		metric.WithDescription("Total number of issue analyses"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		e.logger.Warn("failed to create analyze counter", zap.Error(err))
	}

	e.rebuildCounter, err = e.meter.Int64Counter(
		"incidentd.engine.rebuilds_total",
		metric.WithDescription("Total number of index rebuilds"),
		metric.WithUnit("{rebuild}"),
	)
	if err != nil {
		e.logger.Warn("failed to create rebuild counter", zap.Error(err))
	}

	e.augmentCounter, err = e.meter.Int64Counter(
		"incidentd.engine.augmentations_total",
		metric.WithDescription("Total number of augmentation attempts"),
		metric.WithUnit("{augmentation}"),
	)
	if err != nil {
		e.logger.Warn("failed to create augment counter", zap.Error(err))
	}
}

// Rebuild re-reads the record store, re-embeds every record, and
// atomically swaps in a fresh index. Queries running during a rebuild
// keep using the previous snapshot.
func (e *Engine) Rebuild(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "engine.rebuild")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	start := time.Now()

	records, err := e.store.AllRecords(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to load records: %w", err)
	}

	next := &snapshot{records: make(map[int64]knowledge.Record, len(records)), refs: 1}
	for _, rec := range records {
		next.records[rec.ID] = rec
	}

	if len(records) > 0 {
		docs := make([]string, len(records))
		for i, rec := range records {
			docs[i] = rec.Document()
		}

		vectors, err := e.embedder.EmbedDocuments(ctx, docs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to embed records: %w", err)
		}
		if len(vectors) != len(records) {
			return fmt.Errorf("embedder returned %d vectors for %d records", len(vectors), len(records))
		}

		entries := make([]index.Entry, len(records))
		for i, rec := range records {
			entries[i] = index.Entry{ID: rec.ID, Vector: vectors[i]}
		}

		idx, err := e.builder.Build(ctx, entries)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to build index: %w", err)
		}

		scorer, err := confidence.NewScorer(idx.Metric(), e.cfg.Threshold)
		if err != nil {
			idx.Close()
			return fmt.Errorf("failed to create scorer: %w", err)
		}

		next.idx = idx
		next.scorer = scorer
	}

	prev := e.snap.Swap(next)
	if prev != nil {
		prev.release(e.logger)
	}

	if e.rebuildCounter != nil {
		e.rebuildCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Int("record_count", len(records)),
		))
	}

	e.logger.Info("rebuilt incident index",
		zap.Int("records", len(records)),
		zap.Duration("duration", time.Since(start)),
	)

	span.SetAttributes(attribute.Int("record_count", len(records)))
	return nil
}

// Analyze retrieves the most relevant known incidents for a free-text
// issue description. maxSolutions <= 0 uses the configured default.
func (e *Engine) Analyze(ctx context.Context, query string, maxSolutions int) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.analyze")
	defer span.End()

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}

	if maxSolutions <= 0 {
		maxSolutions = e.cfg.MaxSolutions
	}

	span.SetAttributes(
		attribute.Int("query_length", len(query)),
		attribute.Int("max_solutions", maxSolutions),
	)

	snap := e.currentSnapshot()
	if snap == nil {
		e.recordAnalysis(ctx, StatusNoMatch)
		return &Result{Status: StatusNoMatch, Candidates: []ScoredCandidate{}}, nil
	}
	defer snap.release(e.logger)

	if snap.idx == nil || snap.idx.Len() == 0 {
		e.recordAnalysis(ctx, StatusNoMatch)
		return &Result{Status: StatusNoMatch, Candidates: []ScoredCandidate{}}, nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, knowledge.CleanText(query))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	k := maxSolutions
	if k < e.cfg.Overfetch {
		k = e.cfg.Overfetch
	}
	if k > e.cfg.MaxK {
		k = e.cfg.MaxK
	}

	hits, err := snap.idx.Search(ctx, vector, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	candidates := make([]ScoredCandidate, 0, len(hits))
	for _, hit := range hits {
		rec, ok := snap.records[hit.ID]
		if !ok {
			// The index and the record map come from the same snapshot,
			// so a miss means a bug in Rebuild.
			e.logger.Warn("index returned unknown record id", zap.Int64("id", hit.ID))
			continue
		}
		conf := snap.scorer.Score(hit.RawScore)
		if !snap.scorer.Accept(conf) {
			continue
		}
		candidates = append(candidates, ScoredCandidate{
			Record:     rec,
			RawScore:   hit.RawScore,
			Confidence: conf,
		})
	}

	totalMatches := len(candidates)
	if totalMatches == 0 {
		e.recordAnalysis(ctx, StatusNoMatch)
		span.SetAttributes(attribute.Int("result_count", 0))
		return &Result{Status: StatusNoMatch, Candidates: []ScoredCandidate{}}, nil
	}

	candidates = e.augment(ctx, query, candidates, snap.scorer)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Record.ID < candidates[j].Record.ID
	})

	if len(candidates) > maxSolutions {
		candidates = candidates[:maxSolutions]
	}

	e.recordAnalysis(ctx, StatusSuccess)
	span.SetAttributes(
		attribute.Int("result_count", len(candidates)),
		attribute.Int("total_matches", totalMatches),
	)

	return &Result{
		Status:       StatusSuccess,
		Candidates:   candidates,
		TotalMatches: totalMatches,
	}, nil
}

// augment runs the optional refinement step. Every failure mode keeps
// the original candidates: augmentation can enrich a result, never
// break one.
func (e *Engine) augment(ctx context.Context, query string, candidates []ScoredCandidate, scorer *confidence.Scorer) []ScoredCandidate {
	if e.augmenter == nil {
		return candidates
	}

	ctx, span := e.tracer.Start(ctx, "engine.augment")
	defer span.End()

	actx, cancel := context.WithTimeout(ctx, e.cfg.AugmentTimeout)
	defer cancel()

	refined, err := e.augmenter.Augment(actx, query, candidates)
	outcome := "success"
	if err != nil {
		outcome = "error"
		e.logger.Warn("augmentation failed, returning raw candidates", zap.Error(err))
		span.RecordError(err)
	}
	if e.augmentCounter != nil {
		e.augmentCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
	if err != nil {
		return candidates
	}

	return reconcile(candidates, refined, scorer)
}

// reconcile applies augmenter output against the original candidates.
// A candidate's confidence may be raised freely, but lowered only when
// the augmenter supplied reasoning and the revised confidence still
// clears the threshold: the model explains demotions, and it cannot
// silently discard what retrieval already accepted.
func reconcile(original, refined []ScoredCandidate, scorer *confidence.Scorer) []ScoredCandidate {
	byID := make(map[int64]ScoredCandidate, len(refined))
	for _, c := range refined {
		byID[c.Record.ID] = c
	}

	out := make([]ScoredCandidate, 0, len(original))
	for _, orig := range original {
		rev, ok := byID[orig.Record.ID]
		if !ok {
			out = append(out, orig)
			continue
		}
		merged := orig
		merged.Reasoning = rev.Reasoning
		switch {
		case rev.Confidence > orig.Confidence:
			merged.Confidence = clamp01(rev.Confidence)
		case rev.Reasoning != "" && scorer.Accept(rev.Confidence):
			merged.Confidence = rev.Confidence
		}
		out = append(out, merged)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (e *Engine) recordAnalysis(ctx context.Context, status Status) {
	if e.analyzeCounter == nil {
		return
	}
	e.analyzeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
}

// Threshold reports the active confidence threshold.
func (e *Engine) Threshold() float64 {
	return e.cfg.Threshold
}

// currentSnapshot loads the current snapshot and pins it against
// concurrent rebuilds. The loop handles the window where a rebuild
// swaps in a new snapshot and releases the one just loaded.
func (e *Engine) currentSnapshot() *snapshot {
	for {
		snap := e.snap.Load()
		if snap == nil {
			return nil
		}
		if snap.acquire() {
			return snap
		}
	}
}

// RecordCount reports the number of records in the current snapshot.
func (e *Engine) RecordCount() int {
	snap := e.snap.Load()
	if snap == nil {
		return 0
	}
	return len(snap.records)
}

// Close releases the current index. The record store and embedder are
// owned by the caller and are not closed here.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	snap := e.snap.Swap(nil)
	if snap != nil {
		snap.release(e.logger)
	}
	return nil
}
