// Package sentiment implements the ensemble sentiment analyzer: a
// crypto-tuned lexicon model as the fast path, an optional transformer
// endpoint as the primary model, and a lightweight LLM escalation path for
// volatile text, combined the way
// original_source/workers/src/processors/nlp_analyzer.py combines VADER,
// DistilBERT, and an OpenAI fallback.
package sentiment

import "context"

// Prediction is a single model's raw output before ensemble weighting.
type Prediction struct {
	Score      float64 // [-1, 1]
	Confidence float64 // [0, 1]
	ModelName  string
}

// Model is the contract every sentiment model implements, mirroring the
// teacher's internal/ai provider interfaces (single predict method,
// context-scoped, no hidden global state).
type Model interface {
	Name() string
	Predict(ctx context.Context, text string) (Prediction, error)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
