package collectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/toxzak-svg/sentibridge/internal/domain"
	"github.com/toxzak-svg/sentibridge/internal/validate"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
	"golang.org/x/time/rate"
)

const discordAPIBase = "https://discord.com/api/v10"

// DiscordCollector polls the REST message-history endpoint for each text
// channel of every monitored guild. original_source/workers/src/collectors/discord.py
// left this as a placeholder built on discord.py's gateway client; no
// discord.py-equivalent dependency exists anywhere in the retrieved pack,
// so this adapter uses the same plain net/http style as
// internal/web3/coingecko_client.go rather than introduce an ungrounded
// gateway library for what is, here, a bounded polling workload.
type DiscordCollector struct {
	httpClient *http.Client
	botToken   string
	guildIDs   []int64
	limiter    *rate.Limiter
	metrics    *observability.MetricsProvider
}

// NewDiscordCollector requires a bot token and the guild IDs to monitor;
// there is no zero-arg default-collector factory (SPEC_FULL.md §4, item 4).
// metrics may be nil in tests.
func NewDiscordCollector(botToken string, guildIDs []int64, metrics *observability.MetricsProvider) *DiscordCollector {
	return &DiscordCollector{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		botToken:   botToken,
		guildIDs:   guildIDs,
		limiter:    NewRequestLimiter(2, 4),
		metrics:    metrics,
	}
}

func (c *DiscordCollector) SourceName() domain.Source { return domain.SourceDiscord }

func (c *DiscordCollector) Connect(ctx context.Context) error {
	if c.botToken == "" {
		return fmt.Errorf("discord: missing bot token")
	}
	if len(c.guildIDs) == 0 {
		return fmt.Errorf("discord: no guild ids configured")
	}
	return nil
}

func (c *DiscordCollector) Disconnect(ctx context.Context) error { return nil }

func (c *DiscordCollector) HealthCheck(ctx context.Context) bool {
	req, err := c.newRequest(ctx, http.MethodGet, "/users/@me", nil)
	if err != nil {
		return false
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

type discordChannel struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
}

const discordChannelTypeGuildText = 0

type discordMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
}

// Collect streams validated posts from every monitored guild's text
// channels whose messages were created at or after since, up to limit
// total posts across all guilds.
func (c *DiscordCollector) Collect(ctx context.Context, tokens []string, since time.Time, limit int) (<-chan domain.SocialPost, <-chan error) {
	posts := make(chan domain.SocialPost)
	errs := make(chan error, 1)

	go func() {
		defer close(posts)
		defer close(errs)

		remaining := limit
		for _, guildID := range c.guildIDs {
			if remaining <= 0 {
				return
			}
			channels, err := c.fetchTextChannelsWithRetry(ctx, guildID)
			if err != nil {
				select {
				case errs <- &Error{Source: domain.SourceDiscord, Op: "fetchChannels", Err: err}:
				case <-ctx.Done():
				}
				continue
			}
			for _, ch := range channels {
				if remaining <= 0 {
					break
				}
				msgs, err := c.fetchMessagesWithRetry(ctx, ch.ID, remaining)
				if err != nil {
					select {
					case errs <- &Error{Source: domain.SourceDiscord, Op: "fetchMessages", Err: err}:
					case <-ctx.Done():
						return
					}
					continue
				}
				for _, m := range msgs {
					if m.Author.Bot || m.Timestamp.Before(since) {
						continue
					}
					raw := validate.RawPost{
						Source:         domain.SourceDiscord,
						PostID:         m.ID,
						AuthorID:       m.Author.ID,
						Text:           m.Content,
						Timestamp:      m.Timestamp,
						AuthorUsername: m.Author.Username,
						TokenMentions:  ExtractTokenMentions(m.Content, tokens),
					}
					post, verr := validate.Post(raw)
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
						break
					}
				}
			}
		}
	}()

	return posts, errs
}

func (c *DiscordCollector) fetchTextChannelsWithRetry(ctx context.Context, guildID int64) ([]discordChannel, error) {
	var backoff Backoff
	for {
		channels, err := c.fetchTextChannels(ctx, guildID)
		if err == nil {
			return channels, nil
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

func (c *DiscordCollector) fetchTextChannels(ctx context.Context, guildID int64) ([]discordChannel, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/guilds/%d/channels", guildID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("discord: transient status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("discord: status %d", resp.StatusCode)
	}
	var all []discordChannel
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, err
	}
	out := make([]discordChannel, 0, len(all))
	for _, ch := range all {
		if ch.Type == discordChannelTypeGuildText {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *DiscordCollector) fetchMessagesWithRetry(ctx context.Context, channelID string, limit int) ([]discordMessage, error) {
	var backoff Backoff
	for {
		msgs, err := c.fetchMessages(ctx, channelID, limit)
		if err == nil {
			return msgs, nil
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

func (c *DiscordCollector) fetchMessages(ctx context.Context, channelID string, limit int) ([]discordMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	page := limit
	if page > 100 {
		page = 100
	}
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(page))
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/channels/%s/messages?%s", channelID, q.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("discord: transient status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("discord: status %d", resp.StatusCode)
	}
	var out []discordMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DiscordCollector) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, discordAPIBase+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do performs req, recording the round-trip duration against the
// collector_request_duration_seconds histogram (SPEC_FULL.md's ambient
// observability surface).
func (c *DiscordCollector) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordCollectorRequest(ctx, string(domain.SourceDiscord), time.Since(start))
	}
	return resp, err
}

// WebhookReceiver verifies and decodes Discord messages pushed to an
// inbound webhook, an alternative ingestion path to polling for
// high-traffic guilds (original_source/workers/src/collectors/discord.py
// DiscordWebhookReceiver).
type WebhookReceiver struct {
	secret string
}

func NewWebhookReceiver(secret string) *WebhookReceiver {
	return &WebhookReceiver{secret: secret}
}

// VerifySignature checks an HMAC-SHA256 signature over timestamp||payload,
// matching the Python reference's hmac.compare_digest check.
func (w *WebhookReceiver) VerifySignature(payload []byte, signature, timestamp string) bool {
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type webhookMessage struct {
	MessageID     string    `json:"message_id"`
	AuthorID      string    `json:"author_id"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	TokenMentions []string  `json:"token_mentions"`
}

// ProcessMessage validates a decoded webhook payload into a SocialPost,
// restricting token_mentions to the requested token set.
func (w *WebhookReceiver) ProcessMessage(data []byte, tokens []string) (domain.SocialPost, error) {
	var msg webhookMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.SocialPost{}, err
	}
	return validate.Post(validate.RawPost{
		Source:        domain.SourceDiscord,
		PostID:        msg.MessageID,
		AuthorID:      msg.AuthorID,
		Text:          msg.Content,
		Timestamp:     msg.Timestamp,
		TokenMentions: ExtractTokenMentions(msg.Content, tokens),
	})
}
