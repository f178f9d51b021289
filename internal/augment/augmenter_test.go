package augment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/incidentd/internal/engine"
	"github.com/fyrsmithlabs/incidentd/internal/knowledge"
)

type stubLLM struct {
	response string
	err      error
	prompts  []string
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testCandidates() []engine.ScoredCandidate {
	return []engine.ScoredCandidate{
		{Record: knowledge.Record{ID: 10, Failure: "docker pull denied", RootCause: "no auth", Solution: "log in first"}, Confidence: 0.7},
		{Record: knowledge.Record{ID: 20, Failure: "pod crashloop", RootCause: "bad probe", Solution: "fix probe"}, Confidence: 0.65},
	}
}

func TestNew_RequiresLLM(t *testing.T) {
	_, err := New(nil, zap.NewNop())
	assert.Error(t, err)
}

func TestAugment_AppliesAssessments(t *testing.T) {
	llm := &stubLLM{response: "1 0.95 same registry auth failure\n2 0.3 unrelated"}
	a, err := New(llm, zap.NewNop())
	require.NoError(t, err)

	out, err := a.Augment(context.Background(), "docker pull denied", testCandidates())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.InDelta(t, 0.95, out[0].Confidence, 1e-9)
	assert.Equal(t, "same registry auth failure", out[0].Reasoning)
	assert.InDelta(t, 0.3, out[1].Confidence, 1e-9)
	assert.Equal(t, "unrelated", out[1].Reasoning)
}

func TestAugment_PromptContainsCandidates(t *testing.T) {
	llm := &stubLLM{response: "None"}
	a, err := New(llm, zap.NewNop())
	require.NoError(t, err)

	_, err = a.Augment(context.Background(), "docker pull denied", testCandidates())
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "docker pull denied")
	assert.Contains(t, prompt, "1. failure: docker pull denied")
	assert.Contains(t, prompt, "2. failure: pod crashloop")
	assert.Contains(t, prompt, "root cause: no auth")
}

func TestAugment_NoneLeavesCandidatesUntouched(t *testing.T) {
	llm := &stubLLM{response: "None"}
	a, err := New(llm, zap.NewNop())
	require.NoError(t, err)

	in := testCandidates()
	out, err := a.Augment(context.Background(), "query", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAugment_GenerationError(t *testing.T) {
	llm := &stubLLM{err: errors.New("connection refused")}
	a, err := New(llm, zap.NewNop())
	require.NoError(t, err)

	_, err = a.Augment(context.Background(), "query", testCandidates())
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestAugment_EmptyCandidatesSkipsModel(t *testing.T) {
	llm := &stubLLM{response: "should not be called"}
	a, err := New(llm, zap.NewNop())
	require.NoError(t, err)

	out, err := a.Augment(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, llm.prompts)
}

func TestParseAssessments(t *testing.T) {
	tests := []struct {
		name     string
		response string
		n        int
		want     []Assessment
	}{
		{
			name:     "space separated",
			response: "1 0.9 close match\n2 0.5 weak match",
			n:        2,
			want: []Assessment{
				{Index: 1, Confidence: 0.9, Reason: "close match"},
				{Index: 2, Confidence: 0.5, Reason: "weak match"},
			},
		},
		{
			name:     "pipe separated",
			response: "1 | 0.9 | close match\n2 | 0.5 | weak match",
			n:        2,
			want: []Assessment{
				{Index: 1, Confidence: 0.9, Reason: "close match"},
				{Index: 2, Confidence: 0.5, Reason: "weak match"},
			},
		},
		{
			name:     "list style index",
			response: "1. 0.9 close match",
			n:        2,
			want:     []Assessment{{Index: 1, Confidence: 0.9, Reason: "close match"}},
		},
		{
			name:     "none response",
			response: "None",
			n:        3,
			want:     nil,
		},
		{
			name:     "none lowercase with period",
			response: "none.",
			n:        3,
			want:     nil,
		},
		{
			name:     "reason optional",
			response: "2 0.75",
			n:        2,
			want:     []Assessment{{Index: 2, Confidence: 0.75, Reason: ""}},
		},
		{
			name:     "malformed lines skipped",
			response: "first line of chatter\n1 0.8 good\nnot-a-number 0.5 bad",
			n:        2,
			want:     []Assessment{{Index: 1, Confidence: 0.8, Reason: "good"}},
		},
		{
			name:     "out of range index skipped",
			response: "0 0.8 too low\n5 0.8 too high\n2 0.8 ok",
			n:        2,
			want:     []Assessment{{Index: 2, Confidence: 0.8, Reason: "ok"}},
		},
		{
			name:     "confidence clamped",
			response: "1 1.7 overshoot\n2 -0.2 undershoot",
			n:        2,
			want: []Assessment{
				{Index: 1, Confidence: 1, Reason: "overshoot"},
				{Index: 2, Confidence: 0, Reason: "undershoot"},
			},
		},
		{
			name:     "duplicate index last wins",
			response: "1 0.4 first take\n1 0.9 second take",
			n:        2,
			want:     []Assessment{{Index: 1, Confidence: 0.9, Reason: "second take"}},
		},
		{
			name:     "code fences skipped",
			response: "```\n1 0.8 fenced answer\n```",
			n:        2,
			want:     []Assessment{{Index: 1, Confidence: 0.8, Reason: "fenced answer"}},
		},
		{
			name:     "empty response",
			response: "",
			n:        2,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAssessments(tt.response, tt.n)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
