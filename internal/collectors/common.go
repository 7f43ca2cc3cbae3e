package collectors

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	cashtagRE = regexp.MustCompile(`\$([A-Za-z]{2,10})\b`)
	addressRE = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
)

// ExtractTokenMentions returns the cashtag and address mentions in text
// (spec.md §4.2). Cashtags are kept only when they match a requested
// symbol, compared case-insensitively against uppercased target symbols.
// Every EVM address in text is kept, lowercased; addresses are not
// filtered against targetTokens.
func ExtractTokenMentions(text string, targetTokens []string) []string {
	wanted := make(map[string]bool, len(targetTokens))
	for _, t := range targetTokens {
		wanted[strings.ToUpper(strings.TrimPrefix(t, "$"))] = true
	}

	seen := make(map[string]bool)
	var out []string

	for _, m := range cashtagRE.FindAllStringSubmatch(text, -1) {
		sym := strings.ToUpper(m[1])
		if wanted[sym] {
			tag := "$" + sym
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	for _, addr := range addressRE.FindAllString(text, -1) {
		lower := strings.ToLower(addr)
		if !seen[lower] {
			seen[lower] = true
			out = append(out, lower)
		}
	}
	return out
}

// IsLikelyBot applies the Twitter bot heuristic from spec.md §4.2:
// followers<10 ∧ following>1000, or tweets-per-day-of-account-age > 100.
func IsLikelyBot(followers, following, postCount, accountAgeDays int) bool {
	if followers < 10 && following > 1000 {
		return true
	}
	if accountAgeDays > 0 {
		perDay := float64(postCount) / float64(accountAgeDays)
		if perDay > 100 {
			return true
		}
	}
	return false
}

// EngagementCount sums the engagement counters, matching
// original_source/workers/src/collectors/twitter.py's _calculate_engagement.
func EngagementCount(reply, retweet, like, quote int) int {
	return reply + retweet + like + quote
}

// Backoff implements the exponential backoff with jitter required of every
// adapter (spec.md §4.2, §7): 4s base, capped at 60s, used between retry
// attempts within one collection cycle. Grounded on the token-bucket
// pacing style of internal/exchanges/binance/client.go, adapted here to
// golang.org/x/time/rate's limiter since that is the teacher's own idiom
// for rate limiting elsewhere in the codebase (internal/security/rate_limiter.go).
type Backoff struct {
	attempt int
}

const (
	backoffBase = 4 * time.Second
	backoffCap  = 60 * time.Second
	maxRetries  = 3
)

// Next returns the delay before the next attempt and whether the caller
// should retry at all (false once maxRetries is exhausted).
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= maxRetries {
		return 0, false
	}
	delay := backoffBase << b.attempt
	if delay > backoffCap {
		delay = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	b.attempt++
	return delay + jitter, true
}

// Reset clears attempt state for the next collection cycle.
func (b *Backoff) Reset() { b.attempt = 0 }

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// NewRequestLimiter returns a token-bucket limiter capping request rate
// per adapter, used to avoid exceeding a platform's rate limit proactively
// rather than reacting to 429s.
func NewRequestLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
