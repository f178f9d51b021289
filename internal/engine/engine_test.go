package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/incidentd/internal/confidence"
	"github.com/fyrsmithlabs/incidentd/internal/embeddings"
	"github.com/fyrsmithlabs/incidentd/internal/index"
	"github.com/fyrsmithlabs/incidentd/internal/knowledge"
)

// fakeStore is an in-memory knowledge.Store.
type fakeStore struct {
	records []knowledge.Record
	nextID  int64
}

func newFakeStore(records ...knowledge.Record) *fakeStore {
	s := &fakeStore{nextID: 1}
	for _, rec := range records {
		s.records = append(s.records, rec)
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
	}
	return s
}

func (s *fakeStore) AllRecords(ctx context.Context) ([]knowledge.Record, error) {
	out := make([]knowledge.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (knowledge.Record, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return knowledge.Record{}, knowledge.ErrNotFound
}

func (s *fakeStore) Add(ctx context.Context, rec knowledge.Record) (int64, error) {
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	return rec.ID, nil
}

func (s *fakeStore) Count(ctx context.Context) (int, error) { return len(s.records), nil }
func (s *fakeStore) Close() error                           { return nil }

// fakeEmbedder returns a fixed vector for the first rule whose
// substring appears in the text, so tests control distances exactly.
type fakeEmbedder struct {
	rules []embedRule
}

type embedRule struct {
	substr string
	vector []float32
}

func (f *fakeEmbedder) embed(text string) []float32 {
	for _, r := range f.rules {
		if strings.Contains(text, r.substr) {
			return r.vector
		}
	}
	return []float32{99, 99, 99}
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embed(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }
func (f *fakeEmbedder) Close() error   { return nil }

// failingEmbedder fails query embedding only.
type failingEmbedder struct{ fakeEmbedder }

func (f *failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}

// stubAugmenter delegates to a function.
type stubAugmenter struct {
	fn func(ctx context.Context, query string, candidates []ScoredCandidate) ([]ScoredCandidate, error)
}

func (a *stubAugmenter) Augment(ctx context.Context, query string, candidates []ScoredCandidate) ([]ScoredCandidate, error) {
	return a.fn(ctx, query, candidates)
}

func testRecords() []knowledge.Record {
	return []knowledge.Record{
		{ID: 1, Failure: "docker pull access denied for hello-world", RootCause: "registry requires authentication", Solution: "log in to the artifactory registry before pulling"},
		{ID: 2, Failure: "kubernetes pod stuck in CrashLoopBackOff", RootCause: "liveness probe failing", Solution: "fix the probe endpoint and redeploy"},
		{ID: 3, Failure: "disk full on build agent", RootCause: "old workspaces never pruned", Solution: "enable workspace cleanup"},
	}
}

func testRules() []embedRule {
	return []embedRule{
		{substr: "docker", vector: []float32{1, 0, 0}},
		{substr: "kubernetes", vector: []float32{0, 1, 0}},
		{substr: "disk", vector: []float32{0, 0, 1}},
	}
}

func newTestEngine(t *testing.T, cfg *Config, store knowledge.Store, emb embeddings.Provider, aug Augmenter) *Engine {
	t.Helper()

	builder, err := index.NewBuilder(index.Config{Provider: "memory"}, zap.NewNop())
	require.NoError(t, err)

	eng, err := New(cfg, store, emb, builder, aug, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	require.NoError(t, eng.Rebuild(context.Background()))
	return eng
}

func TestNew_Validation(t *testing.T) {
	builder, err := index.NewBuilder(index.Config{Provider: "memory"}, zap.NewNop())
	require.NoError(t, err)
	store := newFakeStore()
	emb := &fakeEmbedder{}

	_, err = New(nil, nil, emb, builder, nil, nil)
	assert.Error(t, err)

	_, err = New(nil, store, nil, builder, nil, nil)
	assert.Error(t, err)

	_, err = New(nil, store, emb, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(&Config{Threshold: 1.5}, store, emb, builder, nil, nil)
	assert.Error(t, err)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 5, cfg.MaxSolutions)
	assert.Equal(t, 5, cfg.Overfetch)
	assert.Equal(t, 20, cfg.MaxK)
	assert.Equal(t, confidence.DefaultThreshold, cfg.Threshold)
	assert.Equal(t, 8*time.Second, cfg.AugmentTimeout)
}

func TestAnalyze_KnownIncident(t *testing.T) {
	store := newFakeStore(testRecords()...)
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, nil)

	res, err := eng.Analyze(context.Background(), "docker pull access denied trying to run hello-world", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, int64(1), res.Candidates[0].Record.ID)
	assert.InDelta(t, 1.0, res.Candidates[0].Confidence, 1e-9)
	assert.Contains(t, res.Candidates[0].Record.Solution, "artifactory")
}

func TestAnalyze_InvalidQuery(t *testing.T) {
	store := newFakeStore(testRecords()...)
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, nil)

	for _, query := range []string{"", "   ", "\n\t"} {
		_, err := eng.Analyze(context.Background(), query, 0)
		assert.ErrorIs(t, err, ErrInvalidQuery, "query %q", query)
	}
}

func TestAnalyze_EmptyKnowledgeBase(t *testing.T) {
	eng := newTestEngine(t, nil, newFakeStore(), &fakeEmbedder{}, nil)

	res, err := eng.Analyze(context.Background(), "anything at all", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusNoMatch, res.Status)
	assert.Empty(t, res.Candidates)
	assert.Zero(t, res.TotalMatches)
}

func TestAnalyze_NoMatchBelowThreshold(t *testing.T) {
	store := newFakeStore(testRecords()...)
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, nil)

	// No rule matches, so the query lands far from every record.
	res, err := eng.Analyze(context.Background(), "printer on fire", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusNoMatch, res.Status)
	assert.Empty(t, res.Candidates)
	assert.Zero(t, res.TotalMatches)
}

func TestAnalyze_EmbeddingError(t *testing.T) {
	store := newFakeStore(testRecords()...)
	emb := &failingEmbedder{fakeEmbedder{rules: testRules()}}
	eng := newTestEngine(t, nil, store, emb, nil)

	_, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestAnalyze_TruncationKeepsTotalMatches(t *testing.T) {
	// Three records close enough to the query that all pass the
	// threshold, with distinct distances for a stable order.
	records := []knowledge.Record{
		{ID: 1, Failure: "alpha failure", RootCause: "a", Solution: "a"},
		{ID: 2, Failure: "beta failure", RootCause: "b", Solution: "b"},
		{ID: 3, Failure: "gamma failure", RootCause: "c", Solution: "c"},
	}
	rules := []embedRule{
		{substr: "alpha", vector: []float32{1, 0, 0}},
		{substr: "beta", vector: []float32{1, 0.1, 0}},
		{substr: "gamma", vector: []float32{1, 0.2, 0}},
		{substr: "query", vector: []float32{1, 0, 0}},
	}
	eng := newTestEngine(t, nil, newFakeStore(records...), &fakeEmbedder{rules: rules}, nil)

	res, err := eng.Analyze(context.Background(), "query text", 2)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, 3, res.TotalMatches)
	assert.Equal(t, int64(1), res.Candidates[0].Record.ID)
	assert.Equal(t, int64(2), res.Candidates[1].Record.ID)
}

func TestAnalyze_TieBreakByID(t *testing.T) {
	// Two records at the same distance must come back lower ID first.
	records := []knowledge.Record{
		{ID: 7, Failure: "same failure twice", RootCause: "x", Solution: "x"},
		{ID: 4, Failure: "same failure again", RootCause: "y", Solution: "y"},
	}
	rules := []embedRule{
		{substr: "same failure", vector: []float32{1, 0, 0}},
	}
	eng := newTestEngine(t, nil, newFakeStore(records...), &fakeEmbedder{rules: rules}, nil)

	res, err := eng.Analyze(context.Background(), "same failure", 0)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, int64(4), res.Candidates[0].Record.ID)
	assert.Equal(t, int64(7), res.Candidates[1].Record.ID)
}

func TestAnalyze_Deterministic(t *testing.T) {
	store := newFakeStore(testRecords()...)
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, nil)

	first, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
		require.NoError(t, err)
		assert.Equal(t, first, res)
	}
}

func TestAnalyze_AugmenterAddsReasoning(t *testing.T) {
	store := newFakeStore(testRecords()...)
	aug := &stubAugmenter{fn: func(ctx context.Context, query string, candidates []ScoredCandidate) ([]ScoredCandidate, error) {
		out := make([]ScoredCandidate, len(candidates))
		copy(out, candidates)
		for i := range out {
			out[i].Reasoning = "registry auth failure matches the reported error"
		}
		return out, nil
	}}
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, aug)

	res, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "registry auth failure matches the reported error", res.Candidates[0].Reasoning)
}

func TestAnalyze_AugmenterErrorIsNonFatal(t *testing.T) {
	store := newFakeStore(testRecords()...)
	aug := &stubAugmenter{fn: func(ctx context.Context, query string, candidates []ScoredCandidate) ([]ScoredCandidate, error) {
		return nil, errors.New("model endpoint down")
	}}
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, aug)

	res, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	require.NotEmpty(t, res.Candidates)
	assert.Empty(t, res.Candidates[0].Reasoning)
}

func TestAnalyze_AugmenterTimeout(t *testing.T) {
	store := newFakeStore(testRecords()...)
	aug := &stubAugmenter{fn: func(ctx context.Context, query string, candidates []ScoredCandidate) ([]ScoredCandidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := DefaultConfig()
	cfg.AugmentTimeout = 20 * time.Millisecond
	eng := newTestEngine(t, cfg, store, &fakeEmbedder{rules: testRules()}, aug)

	start := time.Now()
	res, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotEmpty(t, res.Candidates)
}

func TestReconcile(t *testing.T) {
	scorer, err := confidence.NewScorer(index.MetricL2, 0.6)
	require.NoError(t, err)

	orig := []ScoredCandidate{
		{Record: knowledge.Record{ID: 1}, Confidence: 0.70},
		{Record: knowledge.Record{ID: 2}, Confidence: 0.80},
		{Record: knowledge.Record{ID: 3}, Confidence: 0.75},
		{Record: knowledge.Record{ID: 4}, Confidence: 0.90},
	}
	refined := []ScoredCandidate{
		// Raised: always applied.
		{Record: knowledge.Record{ID: 1}, Confidence: 0.95, Reasoning: "strong match"},
		// Lowered with reasoning, still above threshold: applied.
		{Record: knowledge.Record{ID: 2}, Confidence: 0.65, Reasoning: "partial match only"},
		// Lowered below threshold: ignored, reasoning kept.
		{Record: knowledge.Record{ID: 3}, Confidence: 0.10, Reasoning: "unrelated"},
		// Lowered without reasoning: ignored.
		{Record: knowledge.Record{ID: 4}, Confidence: 0.50},
	}

	out := reconcile(orig, refined, scorer)
	require.Len(t, out, 4)

	assert.InDelta(t, 0.95, out[0].Confidence, 1e-9)
	assert.Equal(t, "strong match", out[0].Reasoning)

	assert.InDelta(t, 0.65, out[1].Confidence, 1e-9)

	assert.InDelta(t, 0.75, out[2].Confidence, 1e-9)
	assert.Equal(t, "unrelated", out[2].Reasoning)

	assert.InDelta(t, 0.90, out[3].Confidence, 1e-9)
}

func TestReconcile_MissingCandidateKeptAsIs(t *testing.T) {
	scorer, err := confidence.NewScorer(index.MetricL2, 0.6)
	require.NoError(t, err)

	orig := []ScoredCandidate{
		{Record: knowledge.Record{ID: 1}, Confidence: 0.70},
		{Record: knowledge.Record{ID: 2}, Confidence: 0.80},
	}
	refined := []ScoredCandidate{
		{Record: knowledge.Record{ID: 2}, Confidence: 0.85, Reasoning: "ok"},
	}

	out := reconcile(orig, refined, scorer)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.70, out[0].Confidence, 1e-9)
	assert.Empty(t, out[0].Reasoning)
	assert.InDelta(t, 0.85, out[1].Confidence, 1e-9)
}

func TestRebuild_PicksUpNewRecords(t *testing.T) {
	store := newFakeStore(testRecords()...)
	rules := append(testRules(), embedRule{substr: "terraform", vector: []float32{1, 1, 0}})
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: rules}, nil)

	res, err := eng.Analyze(context.Background(), "terraform state lock stuck", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, res.Status)

	_, err = store.Add(context.Background(), knowledge.Record{
		Failure:   "terraform state lock stuck",
		RootCause: "previous apply crashed holding the lock",
		Solution:  "force-unlock with the lock ID from the error output",
	})
	require.NoError(t, err)
	require.NoError(t, eng.Rebuild(context.Background()))

	res, err = eng.Analyze(context.Background(), "terraform state lock stuck", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.NotEmpty(t, res.Candidates)
	assert.Contains(t, res.Candidates[0].Record.Solution, "force-unlock")
}

func TestRecordCount(t *testing.T) {
	store := newFakeStore(testRecords()...)
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, nil)
	assert.Equal(t, 3, eng.RecordCount())
}

func TestClose(t *testing.T) {
	store := newFakeStore(testRecords()...)
	eng := newTestEngine(t, nil, store, &fakeEmbedder{rules: testRules()}, nil)

	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, eng.Rebuild(context.Background()), ErrClosed)
}

// closableIndex fails searches once closed, the way a backend holding
// a live connection would.
type closableIndex struct {
	index.Index
	closed atomic.Bool
}

func (c *closableIndex) Search(ctx context.Context, query []float32, k int) ([]index.Hit, error) {
	if c.closed.Load() {
		return nil, errors.New("search on closed index")
	}
	return c.Index.Search(ctx, query, k)
}

func (c *closableIndex) Close() error {
	c.closed.Store(true)
	return c.Index.Close()
}

// closableBuilder wraps every index it builds so tests can observe
// when each one is closed.
type closableBuilder struct {
	inner *index.Builder

	mu    sync.Mutex
	built []*closableIndex
}

func (b *closableBuilder) Build(ctx context.Context, entries []index.Entry) (index.Index, error) {
	idx, err := b.inner.Build(ctx, entries)
	if err != nil {
		return nil, err
	}
	ci := &closableIndex{Index: idx}
	b.mu.Lock()
	b.built = append(b.built, ci)
	b.mu.Unlock()
	return ci, nil
}

func (b *closableBuilder) builtAt(i int) *closableIndex {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.built[i]
}

func TestRebuild_RetiredIndexStaysOpenForPinnedReaders(t *testing.T) {
	inner, err := index.NewBuilder(index.Config{Provider: "memory"}, zap.NewNop())
	require.NoError(t, err)
	builder := &closableBuilder{inner: inner}

	store := newFakeStore(testRecords()...)
	eng, err := New(nil, store, &fakeEmbedder{rules: testRules()}, builder, nil, zap.NewNop())
	require.NoError(t, err)
	defer eng.Close()
	require.NoError(t, eng.Rebuild(context.Background()))

	// Pin the current snapshot the way an in-flight query does.
	snap := eng.currentSnapshot()
	require.NotNil(t, snap)

	require.NoError(t, eng.Rebuild(context.Background()))

	first := builder.builtAt(0)
	assert.False(t, first.closed.Load(), "retired index closed under a pinned reader")

	_, err = snap.idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	assert.NoError(t, err)

	snap.release(zap.NewNop())
	assert.True(t, first.closed.Load(), "last reference should close the retired index")

	// New queries land on the fresh index.
	res, err := eng.Analyze(context.Background(), "docker pull access denied", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.False(t, builder.builtAt(1).closed.Load())
}

func TestAnalyze_ConcurrentWithRebuild(t *testing.T) {
	inner, err := index.NewBuilder(index.Config{Provider: "memory"}, zap.NewNop())
	require.NoError(t, err)
	builder := &closableBuilder{inner: inner}

	store := newFakeStore(testRecords()...)
	eng, err := New(nil, store, &fakeEmbedder{rules: testRules()}, builder, nil, zap.NewNop())
	require.NoError(t, err)
	defer eng.Close()
	require.NoError(t, eng.Rebuild(context.Background()))

	var (
		wg       sync.WaitGroup
		failed   atomic.Bool
		firstErr atomic.Value
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := eng.Analyze(context.Background(), "docker pull access denied", 0); err != nil {
					if failed.CompareAndSwap(false, true) {
						firstErr.Store(err)
					}
					return
				}
			}
		}()
	}
	for i := 0; i < 25; i++ {
		require.NoError(t, eng.Rebuild(context.Background()))
	}
	wg.Wait()

	if failed.Load() {
		t.Fatalf("query failed during rebuild: %v", firstErr.Load())
	}
}
