package validate

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

func TestSourceHash_DeterministicAndOrderIndependent(t *testing.T) {
	desc := domain.SourceDescriptor{
		Token:             "BTC",
		PostsAnalyzed:     42,
		ManipulationScore: 0.12,
		Timestamp:         "2026-07-31T00:00:00Z",
		Sources:           2,
	}
	h1, err := SourceHash(desc)
	require.NoError(t, err)
	h2, err := SourceHash(desc)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// keys are hashed in sorted order, not struct field declaration order
	sorted := `{"manipulation_score":0.12,"posts_analyzed":42,"sources":2,"timestamp":"2026-07-31T00:00:00Z","token":"BTC"}`
	assert.Equal(t, sha256.Sum256([]byte(sorted)), h1)
}

func TestSourceHash_DiffersOnFieldChange(t *testing.T) {
	base := domain.SourceDescriptor{Token: "BTC", PostsAnalyzed: 1, Timestamp: "t", Sources: 1}
	changed := base
	changed.PostsAnalyzed = 2
	h1, err := SourceHash(base)
	require.NoError(t, err)
	h2, err := SourceHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCanonicalJSON_SortsKeysRegardlessOfInsertionOrder(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": 3}
	out, err := canonicalJSON(a)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(out))
}

func TestScoreBps_BoundaryCases(t *testing.T) {
	assert.NoError(t, ScoreBps(0))
	assert.NoError(t, ScoreBps(10000))
	assert.Error(t, ScoreBps(-1))
	assert.Error(t, ScoreBps(10001))
}

func TestOracleUpdateFromAggregate_ValidAggregate(t *testing.T) {
	agg := domain.AggregatedSentiment{
		TokenAddress: "ETH",
		Score:        0.5,
		SampleSize:   10,
		Confidence:   0.8,
		Timestamp:    time.Now(),
		Sources:      map[string]int{"twitter": 10},
	}
	desc := domain.SourceDescriptor{Token: "ETH", PostsAnalyzed: 10, Sources: 1}
	update, err := OracleUpdateFromAggregate(agg, desc)
	require.NoError(t, err)
	assert.Equal(t, 7500, update.Score)
	assert.Equal(t, "ETH", update.Token)
	assert.Equal(t, 10, update.SampleSize)
}

func TestOracleUpdateFromAggregate_RejectsZeroSampleSize(t *testing.T) {
	agg := domain.AggregatedSentiment{TokenAddress: "ETH", Score: 0.0, SampleSize: 0}
	_, err := OracleUpdateFromAggregate(agg, domain.SourceDescriptor{})
	require.Error(t, err)
}

func TestOracleUpdateFromAggregate_NeutralScoreIsMidpoint(t *testing.T) {
	agg := domain.AggregatedSentiment{TokenAddress: "ETH", Score: 0.0, SampleSize: 1}
	update, err := OracleUpdateFromAggregate(agg, domain.SourceDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, 5000, update.Score)
}
