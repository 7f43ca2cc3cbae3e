package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

var volatilityKeywords = []string{
	"volatile", "volatility", "pump", "dump", "rug", "rugpull", "rekt",
	"crash", "whale", "fud", "hodl", "moon", "dip",
}

// isVolatile applies spec.md §4.3's volatility prefilter: a text is
// volatile if it contains a volatility keyword, has an ALL-CAPS word of
// length >= 3, has >= 2 "!" or >= 3 "?", or the lexicon model reports a
// moderate-confidence near-neutral (mixed) signal.
func isVolatile(text string, lex *Prediction) bool {
	lower := strings.ToLower(text)
	for _, kw := range volatilityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, word := range strings.Fields(text) {
		if len(word) >= 3 && isAllCaps(word) {
			return true
		}
	}
	if strings.Count(text, "!") >= 2 || strings.Count(text, "?") >= 3 {
		return true
	}
	if lex != nil && lex.Confidence >= 0.4 && absF(lex.Score) <= 0.35 {
		return true
	}
	return false
}

func isAllCaps(word string) bool {
	hasLetter := false
	for _, r := range word {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

type weighted struct {
	pred   Prediction
	weight float64
}

// Ensemble combines the lexicon, transformer, and LLM models per
// spec.md §4.3's fusion rule, grounded on
// original_source/workers/src/processors/nlp_analyzer.py's
// EnsembleSentimentAnalyzer.analyze.
type Ensemble struct {
	lexicon            Model
	transformer        Model
	llm                Model
	primaryWeight      float64
	volatilityPrefilter bool
}

// NewEnsemble requires the lexicon and transformer models; llm may be nil,
// in which case volatile texts are not escalated. primaryWeight is the
// transformer's share in the non-escalated path (default 0.7 per
// spec.md §4.3, clamped to [0,1] by the caller's config validation).
func NewEnsemble(lexicon, transformer, llm Model, primaryWeight float64, volatilityPrefilter bool) *Ensemble {
	return &Ensemble{
		lexicon:             lexicon,
		transformer:         transformer,
		llm:                 llm,
		primaryWeight:       primaryWeight,
		volatilityPrefilter: volatilityPrefilter,
	}
}

// Analyze scores one post, fusing model outputs per spec.md §4.3. Returns
// an error only when every contributing model fails, at which point the
// caller drops the post.
func (e *Ensemble) Analyze(ctx context.Context, post domain.SocialPost) (domain.SentimentScore, error) {
	start := time.Now()

	var lexPred *Prediction
	if p, err := e.lexicon.Predict(ctx, post.Text); err == nil {
		lexPred = &p
	}

	var contributions []weighted

	if e.volatilityPrefilter && e.llm != nil && isVolatile(post.Text, lexPred) {
		if llmPred, err := e.llm.Predict(ctx, post.Text); err == nil {
			if lexPred != nil {
				contributions = append(contributions, weighted{*lexPred, 0.25}, weighted{llmPred, 0.75})
			} else {
				contributions = append(contributions, weighted{llmPred, 1.0})
			}
		}
	}

	if len(contributions) == 0 {
		if transPred, err := e.transformer.Predict(ctx, post.Text); err == nil {
			contributions = append(contributions, weighted{transPred, e.primaryWeight})
		}

		fallbackWeight := 1.0 - e.primaryWeight
		if len(contributions) == 0 {
			fallbackWeight = 1.0
		}
		if lexPred != nil {
			contributions = append(contributions, weighted{*lexPred, fallbackWeight})
		} else if p, err := e.lexicon.Predict(ctx, post.Text); err == nil {
			contributions = append(contributions, weighted{p, fallbackWeight})
		}
	}

	if len(contributions) == 0 {
		return domain.SentimentScore{}, fmt.Errorf("sentiment: all models failed for post %s", post.PostID)
	}

	totalWeight := 0.0
	score := 0.0
	confidence := 0.0
	for _, c := range contributions {
		totalWeight += c.weight
		score += c.pred.Score * c.weight
		confidence += c.pred.Confidence * c.weight
	}
	score = clamp(score/totalWeight, -1, 1)
	confidence = clamp(confidence/totalWeight, 0, 1)

	return domain.SentimentScore{
		PostID:           post.PostID,
		Score:            score,
		Confidence:       confidence,
		ModelVersion:     fmt.Sprintf("ensemble-v1-%d", len(contributions)),
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// AnalyzeBatch scores every post, skipping (not erroring on) posts whose
// models all fail; spec.md §7 treats a fully-failed post as a drop, not
// a batch abort.
func (e *Ensemble) AnalyzeBatch(ctx context.Context, posts []domain.SocialPost) []domain.SentimentScore {
	out := make([]domain.SentimentScore, 0, len(posts))
	for _, p := range posts {
		if s, err := e.Analyze(ctx, p); err == nil {
			out = append(out, s)
		}
	}
	return out
}
