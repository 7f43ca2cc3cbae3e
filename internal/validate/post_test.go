package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

func validRaw() RawPost {
	return RawPost{
		Source:    domain.SourceTwitter,
		PostID:    "post-1",
		AuthorID:  "author-1",
		Text:      "  $BTC is looking bullish today  ",
		Timestamp: time.Now(),
	}
}

func TestPost_AcceptsValidInput(t *testing.T) {
	raw := validRaw()
	raw.TokenMentions = []string{"$btc", "0xAbCdEf0123456789AbCdEf0123456789aBcDeF01"}
	post, err := Post(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"$BTC", "0xabcdef0123456789abcdef0123456789abcdef01"}, post.TokenMentions)
	assert.Equal(t, "$BTC is looking bullish today", post.Text)
}

func TestPost_RejectsEmptyPostID(t *testing.T) {
	raw := validRaw()
	raw.PostID = ""
	_, err := Post(raw)
	require.Error(t, err)
	var ve *Error
	assert.ErrorAs(t, err, &ve)
}

func TestPost_RejectsOversizeText(t *testing.T) {
	raw := validRaw()
	big := make([]byte, 10001)
	for i := range big {
		big[i] = 'a'
	}
	raw.Text = string(big)
	_, err := Post(raw)
	require.Error(t, err)
}

func TestPost_RejectsUnknownSource(t *testing.T) {
	raw := validRaw()
	raw.Source = "reddit"
	_, err := Post(raw)
	require.Error(t, err)
}

func TestPost_DropsNonConformingMentions(t *testing.T) {
	raw := validRaw()
	raw.TokenMentions = []string{"$b", "$toolongcashtagvalue", "not-an-address", "$ETH"}
	post, err := Post(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"$ETH"}, post.TokenMentions)
}

func TestPost_SanitizeTextCollapsesWhitespaceAndStripsNulls(t *testing.T) {
	raw := validRaw()
	raw.Text = "hello\x00   world\n\tfoo"
	post, err := Post(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello world foo", post.Text)
}

func TestIsCashtagAndIsAddress(t *testing.T) {
	assert.True(t, IsCashtag("$BTC"))
	assert.False(t, IsCashtag("$btc"))
	assert.False(t, IsCashtag("$B"))
	assert.True(t, IsAddress("0x"+string(make([]byte, 0))+"abcdefabcdefabcdefabcdefabcdefabcdefabcd"))
	assert.False(t, IsAddress("0xABCDEFabcdefabcdefabcdefabcdefabcdefabcd"))
}
