package collectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractTokenMentions_MatchesCashtagsAndAddressesCaseInsensitively(t *testing.T) {
	mentions := ExtractTokenMentions("Loving $btc today, also check 0xABCDEF0123456789ABCDEF0123456789ABCDEF01", []string{"BTC"})
	assert.Contains(t, mentions, "$BTC")
	assert.Contains(t, mentions, "0xabcdef0123456789abcdef0123456789abcdef01")
}

func TestExtractTokenMentions_IgnoresUnrequestedTokens(t *testing.T) {
	mentions := ExtractTokenMentions("I like $ETH more than $BTC", []string{"BTC"})
	assert.Equal(t, []string{"$BTC"}, mentions)
}

func TestIsLikelyBot_FlagsLowFollowerHighFollowingAccounts(t *testing.T) {
	assert.True(t, IsLikelyBot(5, 2000, 10, 100))
	assert.False(t, IsLikelyBot(500, 200, 10, 100))
}

func TestIsLikelyBot_FlagsHighPostingRate(t *testing.T) {
	assert.True(t, IsLikelyBot(500, 200, 10000, 10))
	assert.False(t, IsLikelyBot(500, 200, 5, 10))
}

func TestEngagementCount_SumsAllCounters(t *testing.T) {
	assert.Equal(t, 10, EngagementCount(1, 2, 3, 4))
}

func TestBackoff_StopsAfterMaxRetries(t *testing.T) {
	b := &Backoff{}
	retries := 0
	for {
		_, ok := b.Next()
		if !ok {
			break
		}
		retries++
		if retries > 10 {
			t.Fatal("backoff did not stop")
		}
	}
	assert.Equal(t, 3, retries)
}

func TestBackoff_DelaysStayWithinCap(t *testing.T) {
	b := &Backoff{}
	for i := 0; i < 3; i++ {
		d, ok := b.Next()
		assert.True(t, ok)
		assert.LessOrEqual(t, d, backoffCap+backoffCap/4)
	}
}

func TestBackoff_ResetAllowsRetryingAgain(t *testing.T) {
	b := &Backoff{}
	for i := 0; i < 3; i++ {
		b.Next()
	}
	_, ok := b.Next()
	assert.False(t, ok)
	b.Reset()
	_, ok = b.Next()
	assert.True(t, ok)
}

func TestSleep_ReturnsEarlyOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	Sleep(ctx, 5*time.Second)
	assert.Less(t, time.Since(start), time.Second)
}
