package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/MarketEye/internal/news"
)

type mockSender struct {
	messages []string
	err      error
}

func (m *mockSender) SendHTML(_ context.Context, _ int64, text string) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, text)
	return nil
}

type mockState map[string]string

func (m mockState) GetState(key string) (string, time.Time, bool) {
	v, ok := m[key]
	return v, time.Time{}, ok
}

func (m mockState) SaveState(key, value string) error {
	m[key] = value
	return nil
}

func sampleItems() []news.Item {
	return []news.Item{
		{TimeLabel: "10분 전", Source: "CNBC", Title: "Fed <holds> rates", Link: "https://x/a?b=1&c=2", Category: news.CategoryMacro, HoursAgo: 0.2},
		{TimeLabel: "5시간 전", Source: "Yahoo", Title: "Apple earnings", TranslatedTitle: "애플 실적", Category: news.CategoryStock, HoursAgo: 5},
	}
}

func TestDigestSkipsUnchangedTopHeadline(t *testing.T) {
	sender := &mockSender{}
	state := mockState{}
	d := &Digest{Sender: sender, ChatID: 1, State: state}

	sent, err := d.Send(context.Background(), sampleItems())
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "https://x/a?b=1&c=2", state[lastTopKey])

	sent, err = d.Send(context.Background(), sampleItems())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, sender.messages, 1)
}

func TestDigestSendErrorKeepsState(t *testing.T) {
	state := mockState{}
	d := &Digest{Sender: &mockSender{err: errors.New("boom")}, ChatID: 1, State: state}
	sent, err := d.Send(context.Background(), sampleItems())
	assert.Error(t, err)
	assert.False(t, sent)
	assert.Empty(t, state)
}

func TestFormatHTMLEscapes(t *testing.T) {
	out := FormatHTML(sampleItems())
	assert.True(t, strings.HasPrefix(out, "<b>📰 시장 뉴스</b>"))
	assert.Contains(t, out, "🔥 <b>[10분 전]</b> Fed &lt;holds&gt; rates")
	assert.Contains(t, out, `<a href="https://x/a?b=1&amp;c=2">CNBC</a>`)
	assert.Contains(t, out, "📢 <b>[5시간 전]</b> 애플 실적")
}

func TestParseChatID(t *testing.T) {
	id, err := ParseChatID(" -100123 ")
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), id)

	_, err = ParseChatID("")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = ParseChatID("abc")
	assert.Error(t, err)
}
