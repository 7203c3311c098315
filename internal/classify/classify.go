// Package classify turns a model's propensity score into a binary prediction.
package classify

import (
	"context"
	"fmt"
	"math"
)

// Scorer returns the probability, in [0, 1], that text belongs to the positive class.
type Scorer interface {
	Propensity(ctx context.Context, text string) (float64, error)
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(ctx context.Context, text string) (float64, error)

func (f ScorerFunc) Propensity(ctx context.Context, text string) (float64, error) {
	return f(ctx, text)
}

// Predict scores text and reports whether the propensity reaches threshold.
// The threshold is clamped to [0, 1], so 0 always predicts true.
func Predict(ctx context.Context, s Scorer, text string, threshold float64) (bool, float64, error) {
	p, err := s.Propensity(ctx, text)
	if err != nil {
		return false, 0, fmt.Errorf("score text: %w", err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return false, 0, fmt.Errorf("propensity %v outside [0, 1]", p)
	}
	return p >= Clamp(threshold), p, nil
}

// Clamp limits a threshold to [0, 1]. NaN becomes 0.5.
func Clamp(threshold float64) float64 {
	switch {
	case math.IsNaN(threshold):
		return 0.5
	case threshold < 0:
		return 0
	case threshold > 1:
		return 1
	}
	return threshold
}
