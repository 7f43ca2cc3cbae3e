package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/toxzak-svg/sentibridge/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// cashtagPattern and addressPattern are the sole two accepted forms of a
// token_mentions entry (spec.md §3, §8 invariant 1). This is stricter than
// original_source/workers/src/utils/validation.py, which accepts any
// "$"-prefixed string; the stricter regex is authoritative here (see
// SPEC_FULL.md §4, item 2).
var (
	cashtagPattern = regexp.MustCompile(`^\$[A-Z]{2,10}$`)
	addressPattern = regexp.MustCompile(`^0x[a-f0-9]{40}$`)
)

var validSources = map[domain.Source]bool{
	domain.SourceTwitter:  true,
	domain.SourceDiscord:  true,
	domain.SourceTelegram: true,
}

// RawPost is the unvalidated shape a collector adapter produces before it
// crosses the validation boundary.
type RawPost struct {
	Source               domain.Source
	PostID               string
	AuthorID             string
	Text                 string
	Timestamp            time.Time
	AuthorUsername       string
	TokenMentions        []string
	AuthorFollowers      *int
	AuthorVerified       bool
	AuthorAccountAgeDays *int
	EngagementCount      int
	ReplyCount           int
	RetweetCount         int
	LikeCount            int
}

// Post validates and normalizes a RawPost into a domain.SocialPost,
// enforcing every invariant from spec.md §3. Returns *Error on the first
// violation; callers drop the post and continue the batch.
func Post(raw RawPost) (domain.SocialPost, error) {
	if !validSources[raw.Source] {
		return domain.SocialPost{}, newError("source", "must be one of twitter, discord, telegram")
	}
	if len(raw.PostID) == 0 || len(raw.PostID) > 100 {
		return domain.SocialPost{}, newError("post_id", "must be 1-100 characters")
	}
	if len(raw.AuthorID) == 0 || len(raw.AuthorID) > 100 {
		return domain.SocialPost{}, newError("author_id", "must be 1-100 characters")
	}

	text := sanitizeText(raw.Text)
	if len(text) == 0 || len([]rune(text)) > 10000 {
		return domain.SocialPost{}, newError("text", "must be 1-10000 characters after sanitization")
	}

	if raw.AuthorFollowers != nil && *raw.AuthorFollowers < 0 {
		return domain.SocialPost{}, newError("author_followers", "must be >= 0")
	}
	if raw.AuthorAccountAgeDays != nil && *raw.AuthorAccountAgeDays < 0 {
		return domain.SocialPost{}, newError("author_account_age_days", "must be >= 0")
	}

	mentions := validateTokenMentions(raw.TokenMentions)

	return domain.SocialPost{
		Source:               raw.Source,
		PostID:               raw.PostID,
		AuthorID:             raw.AuthorID,
		Text:                 text,
		Timestamp:            raw.Timestamp.UTC(),
		AuthorUsername:       raw.AuthorUsername,
		TokenMentions:        mentions,
		AuthorFollowers:      raw.AuthorFollowers,
		AuthorVerified:       raw.AuthorVerified,
		AuthorAccountAgeDays: raw.AuthorAccountAgeDays,
		EngagementCount:      raw.EngagementCount,
		ReplyCount:           raw.ReplyCount,
		RetweetCount:         raw.RetweetCount,
		LikeCount:            raw.LikeCount,
	}, nil
}

// sanitizeText strips null bytes, NFKC-normalizes, and collapses runs of
// whitespace to a single space, mirroring
// original_source/workers/src/utils/validation.py's sanitize_text.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = norm.NFKC.String(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// validateTokenMentions keeps only entries that match the cashtag or
// address forms, normalizing case per form.
func validateTokenMentions(mentions []string) []string {
	out := make([]string, 0, len(mentions))
	for _, m := range mentions {
		upper := strings.ToUpper(m)
		if cashtagPattern.MatchString(upper) {
			out = append(out, upper)
			continue
		}
		lower := strings.ToLower(m)
		if addressPattern.MatchString(lower) {
			out = append(out, lower)
		}
	}
	return out
}

// IsCashtag reports whether s matches the accepted cashtag form.
func IsCashtag(s string) bool { return cashtagPattern.MatchString(s) }

// IsAddress reports whether s matches the accepted EVM address form.
func IsAddress(s string) bool { return addressPattern.MatchString(s) }
