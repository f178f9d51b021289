// Package augment refines retrieval candidates with a language model.
//
// The model sees the reported issue and the retrieved incidents and may
// revise each candidate's confidence and attach a short justification.
// The whole step is best-effort: callers keep their original candidates
// whenever the model is unreachable, times out, or answers nonsense.
package augment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/incidentd/internal/engine"
)

const instrumentationName = "github.com/fyrsmithlabs/incidentd/internal/augment"

var (
	// ErrGenerationFailed indicates the model call itself failed.
	ErrGenerationFailed = errors.New("model generation failed")
)

// LLM generates a completion for a prompt. Implementations must honor
// ctx cancellation.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Augmenter implements engine.Augmenter on top of an LLM.
type Augmenter struct {
	llm    LLM
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates an Augmenter.
func New(llm LLM, logger *zap.Logger) (*Augmenter, error) {
	if llm == nil {
		return nil, errors.New("llm is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Augmenter{
		llm:    llm,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Augment asks the model to re-assess the candidates against the query
// and returns candidates with revised confidences and reasoning. A
// parse miss on an individual line skips that line; a failed model call
// fails the whole step.
func (a *Augmenter) Augment(ctx context.Context, query string, candidates []engine.ScoredCandidate) ([]engine.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	ctx, span := a.tracer.Start(ctx, "augment.augment")
	defer span.End()
	span.SetAttributes(attribute.Int("candidate_count", len(candidates)))

	prompt := buildPrompt(query, candidates)

	response, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	assessments := parseAssessments(response, len(candidates))
	span.SetAttributes(attribute.Int("assessment_count", len(assessments)))

	out := make([]engine.ScoredCandidate, len(candidates))
	copy(out, candidates)
	for _, as := range assessments {
		c := &out[as.Index-1]
		c.Confidence = as.Confidence
		c.Reasoning = as.Reason
	}

	a.logger.Debug("augmented candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("assessed", len(assessments)),
	)

	return out, nil
}

// buildPrompt renders the query and numbered candidates for the model.
func buildPrompt(query string, candidates []engine.ScoredCandidate) string {
	var b strings.Builder

	b.WriteString("You are assisting with production incident triage.\n\n")
	b.WriteString("Reported issue:\n")
	b.WriteString(query)
	b.WriteString("\n\nKnown incidents that matched the issue:\n")

	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. failure: %s; root cause: %s; solution: %s (retrieval confidence %.2f)\n",
			i+1, c.Record.Failure, c.Record.RootCause, c.Record.Solution, c.Confidence)
	}

	b.WriteString("\nFor each incident that plausibly explains the reported issue, ")
	b.WriteString("output one line with the incident number, your confidence between 0 and 1, ")
	b.WriteString("and a short reason, separated by spaces:\n")
	b.WriteString("<number> <confidence> <reason>\n")
	b.WriteString("If no incident applies, output exactly: None\n")

	return b.String()
}
