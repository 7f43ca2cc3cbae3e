package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/toxzak-svg/sentibridge/internal/domain"
	"github.com/toxzak-svg/sentibridge/internal/validate"
	"github.com/toxzak-svg/sentibridge/pkg/observability"
	"golang.org/x/time/rate"
)

const telegramAPIBase = "https://api.telegram.org/bot"

// TelegramCollector polls getUpdates for messages in the monitored chats.
// original_source/workers/src/collectors/telegram.py treated chat history
// as unreachable through the Bot API and left collect() as a placeholder
// deferring to a cache populated by updates; getUpdates itself already
// returns the bot's backlog of recent messages (bounded by Telegram's own
// retention, independent of any cache we maintain), so this adapter polls
// it directly instead of carrying the extra moving part.
type TelegramCollector struct {
	httpClient *http.Client
	botToken   string
	chatIDs    map[int64]bool
	limiter    *rate.Limiter
	metrics    *observability.MetricsProvider

	mu         sync.Mutex
	lastOffset int64
}

// NewTelegramCollector requires a bot token and the chat IDs to monitor;
// there is no zero-arg default-collector factory (SPEC_FULL.md §4, item 4).
// metrics may be nil in tests.
func NewTelegramCollector(botToken string, chatIDs []int64, metrics *observability.MetricsProvider) *TelegramCollector {
	chats := make(map[int64]bool, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = true
	}
	return &TelegramCollector{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		botToken:   botToken,
		chatIDs:    chats,
		limiter:    NewRequestLimiter(1, 2),
		metrics:    metrics,
	}
}

func (c *TelegramCollector) SourceName() domain.Source { return domain.SourceTelegram }

func (c *TelegramCollector) Connect(ctx context.Context) error {
	if c.botToken == "" {
		return fmt.Errorf("telegram: missing bot token")
	}
	var me telegramUser
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return fmt.Errorf("telegram: connect: %w", err)
	}
	return nil
}

func (c *TelegramCollector) Disconnect(ctx context.Context) error { return nil }

func (c *TelegramCollector) HealthCheck(ctx context.Context) bool {
	var me telegramUser
	return c.call(ctx, "getMe", nil, &me) == nil
}

type telegramUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type telegramResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		IsBot     bool   `json:"is_bot"`
	} `json:"from"`
	Text string `json:"text"`
}

// Collect streams validated posts from getUpdates for the monitored
// chats, created at or after since, up to limit total posts.
func (c *TelegramCollector) Collect(ctx context.Context, tokens []string, since time.Time, limit int) (<-chan domain.SocialPost, <-chan error) {
	posts := make(chan domain.SocialPost)
	errs := make(chan error, 1)

	go func() {
		defer close(posts)
		defer close(errs)

		remaining := limit
		for remaining > 0 {
			updates, err := c.fetchUpdatesWithRetry(ctx)
			if err != nil {
				select {
				case errs <- &Error{Source: domain.SourceTelegram, Op: "fetchUpdates", Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(updates) == 0 {
				return
			}

			for _, upd := range updates {
				c.mu.Lock()
				if upd.UpdateID >= c.lastOffset {
					c.lastOffset = upd.UpdateID + 1
				}
				c.mu.Unlock()

				if upd.Message == nil || upd.Message.From.IsBot {
					continue
				}
				if !c.chatIDs[upd.Message.Chat.ID] {
					continue
				}
				ts := time.Unix(upd.Message.Date, 0).UTC()
				if ts.Before(since) {
					continue
				}
				raw := validate.RawPost{
					Source:         domain.SourceTelegram,
					PostID:         strconv.FormatInt(upd.Message.MessageID, 10),
					AuthorID:       strconv.FormatInt(upd.Message.From.ID, 10),
					Text:           upd.Message.Text,
					Timestamp:      ts,
					AuthorUsername: upd.Message.From.Username,
					TokenMentions:  ExtractTokenMentions(upd.Message.Text, tokens),
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
					return
				}
			}
		}
	}()

	return posts, errs
}

func (c *TelegramCollector) fetchUpdatesWithRetry(ctx context.Context) ([]telegramUpdate, error) {
	var backoff Backoff
	for {
		updates, err := c.fetchUpdates(ctx)
		if err == nil {
			return updates, nil
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

func (c *TelegramCollector) fetchUpdates(ctx context.Context) ([]telegramUpdate, error) {
	c.mu.Lock()
	offset := c.lastOffset
	c.mu.Unlock()

	params := url.Values{}
	params.Set("timeout", "0")
	params.Set("limit", "100")
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	var updates []telegramUpdate
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *TelegramCollector) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := telegramAPIBase + c.botToken + "/" + method
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordCollectorRequest(ctx, string(domain.SourceTelegram), time.Since(start))
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("telegram: transient status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("telegram: status %d", resp.StatusCode)
	}
	var env telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if !env.OK {
		return fmt.Errorf("telegram: api returned ok=false")
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}
