package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/toxzak-svg/sentibridge/internal/domain"
	"github.com/toxzak-svg/sentibridge/internal/validate"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
	"golang.org/x/time/rate"
)

const twitterAPIBase = "https://api.twitter.com/2"

// TwitterCollector polls the recent-search endpoint for tweets mentioning
// tracked tokens. Grounded on internal/web3/coingecko_client.go's HTTP
// client shape, adapted from a Redis-cached GET to a paginated,
// bearer-authenticated search with its own backoff.
type TwitterCollector struct {
	httpClient  *http.Client
	bearerToken string
	limiter     *rate.Limiter
	metrics     *observability.MetricsProvider
}

// NewTwitterCollector requires a bearer token; there is no zero-arg
// default-collector factory (SPEC_FULL.md §4, item 4). metrics may be nil
// in tests.
func NewTwitterCollector(bearerToken string, metrics *observability.MetricsProvider) *TwitterCollector {
	return &TwitterCollector{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		bearerToken: bearerToken,
		limiter:     NewRequestLimiter(1, 2),
		metrics:     metrics,
	}
}

func (c *TwitterCollector) SourceName() domain.Source { return domain.SourceTwitter }

func (c *TwitterCollector) Connect(ctx context.Context) error {
	if c.bearerToken == "" {
		return fmt.Errorf("twitter: missing bearer token")
	}
	return nil
}

func (c *TwitterCollector) Disconnect(ctx context.Context) error { return nil }

func (c *TwitterCollector) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, twitterAPIBase+"/tweets/search/recent?query=bitcoin&max_results=10", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

type twitterSearchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			ReplyCount   int `json:"reply_count"`
			RetweetCount int `json:"retweet_count"`
			LikeCount    int `json:"like_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string    `json:"id"`
			Username      string    `json:"username"`
			Verified      bool      `json:"verified"`
			CreatedAt     time.Time `json:"created_at"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
				FollowingCount int `json:"following_count"`
				TweetCount     int `json:"tweet_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

type twitterUser struct {
	found                                       bool
	username                                    string
	verified                                    bool
	createdAt                                   time.Time
	followersCount, followingCount, tweetCount int
}

type twitterItem struct {
	id, text, authorID                              string
	createdAt                                       time.Time
	replyCount, retweetCount, likeCount, quoteCount int
}

// isBot applies spec.md §4.2's Twitter bot heuristic to the post's author:
// followers<10 ∧ following>1000, or tweets-per-day-of-account-age > 100.
// An author missing from the includes payload is treated as unknown
// rather than suspicious.
func (it twitterItem) isBot(users map[string]twitterUser) bool {
	u, ok := users[it.authorID]
	if !ok || !u.found {
		return false
	}
	ageDays := int(time.Since(u.createdAt).Hours() / 24)
	return IsLikelyBot(u.followersCount, u.followingCount, u.tweetCount, ageDays)
}

func (it twitterItem) toRawPost(users map[string]twitterUser, tokens []string) validate.RawPost {
	u := users[it.authorID]
	var followers, ageDays *int
	if u.found {
		f := u.followersCount
		followers = &f
		age := int(time.Since(u.createdAt).Hours() / 24)
		ageDays = &age
	}
	return validate.RawPost{
		Source:               domain.SourceTwitter,
		PostID:               it.id,
		AuthorID:             it.authorID,
		Text:                 it.text,
		Timestamp:            it.createdAt,
		AuthorUsername:       u.username,
		TokenMentions:        ExtractTokenMentions(it.text, tokens),
		AuthorFollowers:      followers,
		AuthorVerified:       u.verified,
		AuthorAccountAgeDays: ageDays,
		EngagementCount:      EngagementCount(it.replyCount, it.retweetCount, it.likeCount, it.quoteCount),
		ReplyCount:           it.replyCount,
		RetweetCount:         it.retweetCount,
		LikeCount:            it.likeCount,
	}
}

// Collect streams validated posts for tokens collected since the given
// time, honoring limit across pages. Transient HTTP failures retry with
// Backoff up to 3 times before the page is abandoned and an *Error is sent.
func (c *TwitterCollector) Collect(ctx context.Context, tokens []string, since time.Time, limit int) (<-chan domain.SocialPost, <-chan error) {
	posts := make(chan domain.SocialPost)
	errs := make(chan error, 1)

	go func() {
		defer close(posts)
		defer close(errs)

		query := buildCashtagQuery(tokens)
		if query == "" {
			return
		}

		remaining := limit
		nextToken := ""
		for remaining > 0 {
			resp, err := c.fetchPageWithRetry(ctx, query, since, remaining, nextToken)
			if err != nil {
				select {
				case errs <- &Error{Source: domain.SourceTwitter, Op: "fetchPage", Err: err}:
				case <-ctx.Done():
				}
				return
			}

			users := make(map[string]twitterUser, len(resp.Includes.Users))
			for _, u := range resp.Includes.Users {
				users[u.ID] = twitterUser{
					found:          true,
					username:       u.Username,
					verified:       u.Verified,
					createdAt:      u.CreatedAt,
					followersCount: u.PublicMetrics.FollowersCount,
					followingCount: u.PublicMetrics.FollowingCount,
					tweetCount:     u.PublicMetrics.TweetCount,
				}
			}

			for _, d := range resp.Data {
				item := twitterItem{
					id:           d.ID,
					text:         d.Text,
					authorID:     d.AuthorID,
					createdAt:    d.CreatedAt,
					replyCount:   d.PublicMetrics.ReplyCount,
					retweetCount: d.PublicMetrics.RetweetCount,
					likeCount:    d.PublicMetrics.LikeCount,
					quoteCount:   d.PublicMetrics.QuoteCount,
				}
				if item.isBot(users) {
					continue
				}
				post, verr := validate.Post(item.toRawPost(users, tokens))
				if verr != nil {
					continue
				}
				select {
				case posts <- post:
					remaining--
				case <-ctx.Done():
					return
				}
				if remaining <= 0 {
					return
				}
			}

			if resp.Meta.NextToken == "" {
				return
			}
			nextToken = resp.Meta.NextToken
		}
	}()

	return posts, errs
}

func (c *TwitterCollector) fetchPageWithRetry(ctx context.Context, query string, since time.Time, limit int, nextToken string) (*twitterSearchResponse, error) {
	var backoff Backoff
	for {
		resp, err := c.fetchPage(ctx, query, since, limit, nextToken)
		if err == nil {
			return resp, nil
		}
		delay, retry := backoff.Next()
		if !retry {
			return nil, err
		}
		Sleep(ctx, delay)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (c *TwitterCollector) fetchPage(ctx context.Context, query string, since time.Time, limit int, nextToken string) (*twitterSearchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	maxResults := limit
	if maxResults > 100 {
		maxResults = 100
	}
	if maxResults < 10 {
		maxResults = 10
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("start_time", since.UTC().Format(time.RFC3339))
	q.Set("tweet.fields", "created_at,public_metrics,author_id")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "created_at,public_metrics,verified")
	if nextToken != "" {
		q.Set("next_token", nextToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, twitterAPIBase+"/tweets/search/recent?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordCollectorRequest(ctx, string(domain.SourceTwitter), time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("twitter: transient status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("twitter: status %d", resp.StatusCode)
	}

	var out twitterSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// buildCashtagQuery builds a Twitter recent-search query OR-ing every
// tracked cashtag, e.g. "($ETH OR $BTC) -is:retweet".
func buildCashtagQuery(tokens []string) string {
	var tags []string
	for _, t := range tokens {
		sym := strings.ToUpper(strings.TrimPrefix(t, "$"))
		if sym == "" {
			continue
		}
		tags = append(tags, "$"+sym)
	}
	if len(tags) == 0 {
		return ""
	}
	return "(" + strings.Join(tags, " OR ") + ") -is:retweet"
}
