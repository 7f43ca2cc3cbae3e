package sentiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexiconModel_PositiveAndNegativeTerms(t *testing.T) {
	m := NewLexiconModel()

	pos, err := m.Predict(context.Background(), "this coin is bullish and mooning")
	require.NoError(t, err)
	assert.Greater(t, pos.Score, 0.0)

	neg, err := m.Predict(context.Background(), "total rugpull, this is a scam")
	require.NoError(t, err)
	assert.Less(t, neg.Score, 0.0)
}

func TestLexiconModel_NoMatchedTermsReturnsZeroConfidence(t *testing.T) {
	m := NewLexiconModel()
	pred, err := m.Predict(context.Background(), "the sky is blue today")
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.Score)
	assert.Equal(t, 0.0, pred.Confidence)
}

func TestLexiconModel_EmptyTextReturnsZeroPrediction(t *testing.T) {
	m := NewLexiconModel()
	pred, err := m.Predict(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.Score)
}

func TestLexiconModel_MultiWordPhraseMatches(t *testing.T) {
	m := NewLexiconModel()
	pred, err := m.Predict(context.Background(), "classic bag holder move right there")
	require.NoError(t, err)
	assert.Less(t, pred.Score, 0.0)
}
