package collectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func computeHMAC(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestDiscordCollector_ConnectRequiresTokenAndGuilds(t *testing.T) {
	c := NewDiscordCollector("", nil, nil)
	assert.Error(t, c.Connect(context.Background()))

	c = NewDiscordCollector("tok", nil, nil)
	assert.Error(t, c.Connect(context.Background()))

	c = NewDiscordCollector("tok", []int64{1}, nil)
	assert.NoError(t, c.Connect(context.Background()))
}

func TestWebhookReceiver_VerifySignature(t *testing.T) {
	w := NewWebhookReceiver("shared-secret")
	payload := []byte(`{"message_id":"1"}`)
	timestamp := "1700000000"

	valid := w.VerifySignature(payload, computeHMAC("shared-secret", timestamp, payload), timestamp)
	assert.True(t, valid)

	assert.False(t, w.VerifySignature(payload, "deadbeef", timestamp))
}

func TestWebhookReceiver_ProcessMessage_ValidatesAndExtractsMentions(t *testing.T) {
	w := NewWebhookReceiver("secret")
	data := []byte(`{"message_id":"42","author_id":"author-1","content":"loving $BTC today","timestamp":"2026-07-31T00:00:00Z"}`)

	post, err := w.ProcessMessage(data, []string{"BTC"})
	require.NoError(t, err)
	assert.Equal(t, "42", post.PostID)
	assert.Contains(t, post.TokenMentions, "$BTC")
}
