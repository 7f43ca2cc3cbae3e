package sentiment

import (
	"context"
	"math"
	"strings"
)

// LexiconModel is a lexicon-and-rule sentiment model tuned for crypto
// community language. Grounded on the teacher's
// internal/ai/sentiment_analyzer.go calculateSentiment/calculateConfidence
// (per-word lookup, negation window, length-scaled confidence), with the
// lexicon itself expanded from
// original_source/workers/src/processors/nlp_analyzer.py's VADER crypto
// terms so slang like "wagmi"/"rekt"/"rugpull" scores correctly.
type LexiconModel struct {
	lexicon map[string]float64
}

// NewLexiconModel builds the model with its crypto-tuned lexicon baked in.
func NewLexiconModel() *LexiconModel {
	return &LexiconModel{lexicon: buildLexicon()}
}

func buildLexicon() map[string]float64 {
	return map[string]float64{
		"bullish": 0.8, "moon": 0.8, "mooning": 0.9, "pump": 0.5, "gains": 0.8,
		"profit": 0.7, "buy": 0.6, "hold": 0.4, "hodl": 0.6, "diamond": 0.7,
		"rocket": 0.8, "green": 0.6, "up": 0.4, "rise": 0.5, "surge": 0.8,
		"rally": 0.7, "based": 0.7, "gmi": 0.8, "wagmi": 0.8, "lfg": 0.7,
		"alpha": 0.6, "gem": 0.7, "aped": 0.4, "whale": 0.4, "accumulate": 0.6,
		"undervalued": 0.6, "bullrun": 0.8,

		"bearish": -0.8, "dump": -0.6, "dumping": -0.8, "crash": -0.9, "loss": -0.7,
		"sell": -0.5, "fear": -0.6, "panic": -0.7, "red": -0.5, "down": -0.4,
		"fall": -0.5, "drop": -0.5, "decline": -0.5, "correction": -0.3,
		"bag holder": -0.6, "paper hands": -0.6, "ngmi": -0.8, "rekt": -0.9,
		"exit scam": -1.0, "ponzi": -1.0, "honeypot": -0.9, "fud": -0.4,
		"selling": -0.4, "dead": -0.7, "overvalued": -0.5, "rug": -0.95,
		"rugpull": -1.0, "scam": -0.95,

		"stable": 0.0, "sideways": 0.0, "consolidation": 0.0, "range": 0.0,
		"dip": -0.1, "volatile": 0.0,
	}
}

var negationWords = map[string]bool{
	"not": true, "no": true, "never": true, "n't": true, "cant": true, "dont": true,
}

func (m *LexiconModel) Name() string { return "lexicon-crypto-v1" }

// Predict scores text against the lexicon, applying a 3-word negation
// window the way the teacher's calculateSentiment does: a lexicon word
// within three words after a negation word has its score flipped.
// Confidence rises with the number of matched lexicon terms.
func (m *LexiconModel) Predict(ctx context.Context, text string) (Prediction, error) {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return Prediction{ModelName: m.Name()}, nil
	}

	total := 0.0
	matched := 0
	negation := 1.0
	negatedAt := 0

	for i, w := range words {
		if negationWords[w] {
			negation = -1.0
			negatedAt = i
			continue
		}
		if negation == -1.0 && i-negatedAt > 3 {
			negation = 1.0
		}
		if score, ok := m.lexicon[w]; ok {
			total += score * negation
			matched++
		}
	}
	// multi-word phrases ("paper hands", "bag holder", ...) aren't
	// tokenizable by single-word lookup above; check them directly.
	for phrase, score := range m.lexicon {
		if strings.Contains(phrase, " ") && strings.Contains(lower, phrase) {
			total += score
			matched++
		}
	}

	if matched == 0 {
		return Prediction{ModelName: m.Name()}, nil
	}

	avg := clamp(total/float64(matched), -1.0, 1.0)
	// confidence = |compound| boosted by 0.1 per crypto term present, capped at 1
	confidence := clamp(math.Abs(avg)+0.1*float64(matched), 0.0, 1.0)

	return Prediction{Score: avg, Confidence: confidence, ModelName: m.Name()}, nil
}
