// Package confidence normalizes raw similarity scores into [0,1]
// confidence values and applies the minimum-confidence acceptance
// policy.
package confidence

import (
	"fmt"

	"github.com/fyrsmithlabs/incidentd/internal/index"
)

// DefaultThreshold is the default minimum confidence a candidate must
// reach to be included in results.
const DefaultThreshold = 0.60

// Scorer converts raw index scores into confidences.
//
// The mapping depends on the metric the index reports scores in:
//
//   - l2: confidence = 1 / (1 + distance), a monotonically decreasing
//     function of distance with 1 meaning identical.
//   - cosine: the similarity is used directly, clamped to [0,1].
//
// Either way the result is clamped to [0,1], never negative, never
// above 1, and monotonic: a more similar raw score never yields a lower
// confidence.
type Scorer struct {
	metric    index.Metric
	threshold float64
}

// NewScorer creates a Scorer for the given metric. A non-positive
// threshold falls back to DefaultThreshold.
func NewScorer(metric index.Metric, threshold float64) (*Scorer, error) {
	switch metric {
	case index.MetricL2, index.MetricCosine:
	default:
		return nil, fmt.Errorf("unsupported metric %q", metric)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if threshold > 1 {
		return nil, fmt.Errorf("threshold must be at most 1, got %v", threshold)
	}
	return &Scorer{metric: metric, threshold: threshold}, nil
}

// Score converts a raw score into a confidence in [0,1].
func (s *Scorer) Score(raw float32) float64 {
	var conf float64
	switch s.metric {
	case index.MetricL2:
		d := float64(raw)
		if d < 0 {
			d = 0
		}
		conf = 1 / (1 + d)
	case index.MetricCosine:
		conf = float64(raw)
	}
	return clamp01(conf)
}

// Accept reports whether a confidence meets the acceptance threshold.
func (s *Scorer) Accept(conf float64) bool {
	return conf >= s.threshold
}

// Threshold returns the configured acceptance threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
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
