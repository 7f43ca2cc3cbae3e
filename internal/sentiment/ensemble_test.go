package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

type fakeModel struct {
	name string
	pred Prediction
	err  error
}

func (f *fakeModel) Name() string { return f.name }
func (f *fakeModel) Predict(ctx context.Context, text string) (Prediction, error) {
	if f.err != nil {
		return Prediction{}, f.err
	}
	return f.pred, nil
}

func testPost(text string) domain.SocialPost {
	return domain.SocialPost{PostID: "p1", Text: text}
}

func TestEnsemble_NonVolatileUsesTransformerAndLexiconWeights(t *testing.T) {
	lex := &fakeModel{name: "lex", pred: Prediction{Score: 0.2, Confidence: 0.5}}
	trans := &fakeModel{name: "trans", pred: Prediction{Score: 0.8, Confidence: 0.9}}
	e := NewEnsemble(lex, trans, nil, 0.7, false)

	score, err := e.Analyze(context.Background(), testPost("calm normal market update"))
	require.NoError(t, err)
	expected := 0.8*0.7 + 0.2*0.3
	assert.InDelta(t, expected, score.Score, 0.001)
}

func TestEnsemble_TransformerFailureFallsBackToLexiconOnly(t *testing.T) {
	lex := &fakeModel{name: "lex", pred: Prediction{Score: 0.4, Confidence: 0.6}}
	trans := &fakeModel{name: "trans", err: errors.New("unreachable")}
	e := NewEnsemble(lex, trans, nil, 0.7, false)

	score, err := e.Analyze(context.Background(), testPost("some post"))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, score.Score, 0.001)
}

func TestEnsemble_AllModelsFailingReturnsError(t *testing.T) {
	lex := &fakeModel{name: "lex", err: errors.New("down")}
	trans := &fakeModel{name: "trans", err: errors.New("down")}
	e := NewEnsemble(lex, trans, nil, 0.7, false)

	_, err := e.Analyze(context.Background(), testPost("some post"))
	require.Error(t, err)
}

func TestEnsemble_NilLLMDoesNotPanicOnVolatileText(t *testing.T) {
	lex := &fakeModel{name: "lex", pred: Prediction{Score: 0.1, Confidence: 0.3}}
	trans := &fakeModel{name: "trans", pred: Prediction{Score: 0.3, Confidence: 0.5}}
	e := NewEnsemble(lex, trans, nil, 0.7, true)

	assert.NotPanics(t, func() {
		_, err := e.Analyze(context.Background(), testPost("PUMP PUMP PUMP!! rug incoming?!?"))
		require.NoError(t, err)
	})
}

func TestEnsemble_VolatileTextEscalatesToLLM(t *testing.T) {
	lex := &fakeModel{name: "lex", pred: Prediction{Score: 0.1, Confidence: 0.3}}
	trans := &fakeModel{name: "trans", pred: Prediction{Score: 0.3, Confidence: 0.5}}
	llm := &fakeModel{name: "llm", pred: Prediction{Score: 0.9, Confidence: 0.95}}
	e := NewEnsemble(lex, trans, llm, 0.7, true)

	score, err := e.Analyze(context.Background(), testPost("massive PUMP incoming!! rug??"))
	require.NoError(t, err)
	expected := 0.1*0.25 + 0.9*0.75
	assert.InDelta(t, expected, score.Score, 0.001)
}

func TestAnalyzeBatch_DropsFullyFailedPosts(t *testing.T) {
	lex := &fakeModel{name: "lex", err: errors.New("down")}
	trans := &fakeModel{name: "trans", err: errors.New("down")}
	e := NewEnsemble(lex, trans, nil, 0.7, false)

	posts := []domain.SocialPost{testPost("a"), testPost("b")}
	out := e.AnalyzeBatch(context.Background(), posts)
	assert.Empty(t, out)
}

