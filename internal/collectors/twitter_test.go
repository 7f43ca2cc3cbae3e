package collectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildCashtagQuery_OrsTrackedSymbols(t *testing.T) {
	assert.Equal(t, "($BTC OR $ETH) -is:retweet", buildCashtagQuery([]string{"btc", "$eth"}))
}

func TestBuildCashtagQuery_EmptyTokensReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", buildCashtagQuery(nil))
}

func TestTwitterItem_ToRawPost_FillsAuthorFieldsFromUserMap(t *testing.T) {
	createdAt := time.Now().AddDate(0, 0, -100)
	users := map[string]twitterUser{
		"author-1": {found: true, username: "alice", verified: true, createdAt: createdAt, followersCount: 5000},
	}
	item := twitterItem{id: "1", text: "checking $BTC today", authorID: "author-1", createdAt: time.Now()}

	raw := item.toRawPost(users, []string{"BTC"})
	assert.Equal(t, "alice", raw.AuthorUsername)
	assert.True(t, raw.AuthorVerified)
	require := assert.New(t)
	require.NotNil(raw.AuthorFollowers)
	require.Equal(5000, *raw.AuthorFollowers)
	require.NotNil(raw.AuthorAccountAgeDays)
	require.InDelta(100, *raw.AuthorAccountAgeDays, 1)
	require.Contains(raw.TokenMentions, "$BTC")
}

func TestTwitterItem_ToRawPost_UnknownAuthorLeavesFollowersNil(t *testing.T) {
	item := twitterItem{id: "2", text: "anonymous post", authorID: "unknown"}
	raw := item.toRawPost(map[string]twitterUser{}, nil)
	assert.Nil(t, raw.AuthorFollowers)
	assert.Nil(t, raw.AuthorAccountAgeDays)
}

func TestTwitterItem_IsBot_LowFollowersHighFollowing(t *testing.T) {
	users := map[string]twitterUser{
		"bot-1": {found: true, followersCount: 5, followingCount: 5000, createdAt: time.Now().AddDate(0, 0, -30)},
	}
	item := twitterItem{id: "3", authorID: "bot-1"}
	assert.True(t, item.isBot(users))
}

func TestTwitterItem_IsBot_UnknownAuthorIsNotBot(t *testing.T) {
	item := twitterItem{id: "4", authorID: "unknown"}
	assert.False(t, item.isBot(map[string]twitterUser{}))
}

func TestTwitterItem_IsBot_OrdinaryAccountIsNotBot(t *testing.T) {
	users := map[string]twitterUser{
		"author-1": {found: true, followersCount: 1200, followingCount: 300, tweetCount: 500, createdAt: time.Now().AddDate(-1, 0, 0)},
	}
	item := twitterItem{id: "5", authorID: "author-1"}
	assert.False(t, item.isBot(users))
}
