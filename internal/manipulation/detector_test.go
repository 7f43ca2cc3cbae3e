package manipulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

func post(id string, ts time.Time, text string) domain.SocialPost {
	return domain.SocialPost{
		Source:    domain.SourceTwitter,
		PostID:    id,
		AuthorID:  "author-" + id,
		Text:      text,
		Timestamp: ts,
	}
}

func TestAnalyze_EmptyBatchReturnsZeroFlags(t *testing.T) {
	d := NewDetector()
	flags := d.Analyze(nil, "BTC")
	assert.False(t, flags.IsSuspicious)
	assert.Equal(t, 0.0, flags.Confidence)
	assert.Empty(t, flags.Reasons)
}

func TestAnalyze_SinglePostDoesNotFireClusteringOrSimilarity(t *testing.T) {
	d := NewDetector()
	posts := []domain.SocialPost{post("1", time.Now(), "just a single normal post about the market")}
	flags := d.Analyze(posts, "BTC")
	assert.Equal(t, 0.0, flags.TemporalClusteringScore)
	assert.Equal(t, 0.0, flags.ContentSimilarityScore)
	assert.False(t, flags.IsSuspicious)
}

func TestCheckContentSimilarity_IdenticalTextsScoreHigh(t *testing.T) {
	now := time.Now()
	posts := make([]domain.SocialPost, 6)
	for i := range posts {
		posts[i] = post(string(rune('a'+i)), now.Add(time.Duration(i)*time.Second), "buy now buy now to the moon guaranteed gains")
	}
	score := checkContentSimilarity(posts)
	assert.Greater(t, score, 0.9)
}

func TestCheckContentSimilarity_DistinctTextsScoreLow(t *testing.T) {
	now := time.Now()
	texts := []string{
		"the weather today is quite pleasant and sunny",
		"I just finished reading an interesting book on history",
		"working on a new recipe for dinner tonight",
		"spent the afternoon hiking up the local trail",
		"watched an old movie with friends last night",
		"learning to play guitar has been a fun hobby",
	}
	posts := make([]domain.SocialPost, len(texts))
	for i, txt := range texts {
		posts[i] = post(string(rune('a'+i)), now.Add(time.Duration(i)*time.Minute), txt)
	}
	score := checkContentSimilarity(posts)
	assert.Less(t, score, 0.3)
}

func TestCheckDuplicateRatio_ExactDuplicatesCountFully(t *testing.T) {
	now := time.Now()
	posts := []domain.SocialPost{
		post("1", now, "same exact text here"),
		post("2", now.Add(time.Second), "same exact text here"),
		post("3", now.Add(2*time.Second), "same exact text here"),
		post("4", now.Add(3*time.Second), "totally different content about cats"),
	}
	ratio := checkDuplicateRatio(posts)
	assert.InDelta(t, 2.0/4.0, ratio, 0.001)
}

func TestCheckTemporalClustering_RegularIntervalsAreSuspicious(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := make([]domain.SocialPost, 10)
	for i := range posts {
		posts[i] = post(string(rune('a'+i)), base.Add(time.Duration(i)*10*time.Second), "post body text")
	}
	score := checkTemporalClustering(posts)
	assert.Equal(t, 0.9, score)
}

func TestCheckTemporalClustering_FewerThanFiveReturnsZero(t *testing.T) {
	base := time.Now()
	posts := []domain.SocialPost{post("1", base, "a"), post("2", base.Add(time.Second), "b")}
	assert.Equal(t, 0.0, checkTemporalClustering(posts))
}

func TestCheckBurstActivity_ClusteredWithinWindowIsHigh(t *testing.T) {
	base := time.Now()
	posts := make([]domain.SocialPost, 5)
	for i := range posts {
		posts[i] = post(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second), "burst post")
	}
	score := checkBurstActivity(posts)
	assert.Equal(t, 1.0, score)
}

func TestCheckNewAccounts_LowFollowerCountsScoreHigh(t *testing.T) {
	few := 10
	posts := []domain.SocialPost{
		{PostID: "1", AuthorFollowers: &few},
		{PostID: "2", AuthorFollowers: &few},
	}
	assert.Equal(t, 1.0, checkNewAccounts(posts))
}

func TestCheckCrossPlatformDivergence_SingleSourceReturnsZero(t *testing.T) {
	followers := 100
	posts := []domain.SocialPost{
		{Source: domain.SourceTwitter, EngagementCount: 10, AuthorFollowers: &followers},
		{Source: domain.SourceTwitter, EngagementCount: 20, AuthorFollowers: &followers},
	}
	assert.Equal(t, 0.0, checkCrossPlatformDivergence(posts))
}

func TestQualityWeights_NormalizedToMaxOne(t *testing.T) {
	hi := 20000
	lo := 50
	posts := []domain.SocialPost{
		{PostID: "hi", AuthorVerified: true, AuthorFollowers: &hi, EngagementCount: 200},
		{PostID: "lo", AuthorFollowers: &lo, EngagementCount: 1},
	}
	weights := QualityWeights(posts)
	assert.Equal(t, 1.0, weights["hi"])
	assert.Less(t, weights["lo"], 1.0)
	assert.Greater(t, weights["lo"], 0.0)
}

func TestAnalyze_AggregateConfidenceUsesSurvivalFunction(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := make([]domain.SocialPost, 10)
	for i := range posts {
		posts[i] = post(string(rune('a'+i)), base.Add(time.Duration(i)*10*time.Second), "buy now buy now to the moon")
	}
	d := NewDetector()
	flags := d.Analyze(posts, "BTC")
	assert.True(t, flags.IsSuspicious)
	assert.Greater(t, flags.Confidence, 0.0)
	assert.LessOrEqual(t, flags.Confidence, 1.0)
}
