package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LJTian/MarketEye/internal/news"
)

const lastTopKey = "telegram:last_top"

var ErrNotConfigured = errors.New("telegram not configured")

// Sender 发送一条 HTML 消息
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
}

// StateStore 记录上一次推送的头条，避免重复推送
type StateStore interface {
	GetState(key string) (string, time.Time, bool)
	SaveState(key, value string) error
}

type TelegramSender struct {
	api *tgbotapi.BotAPI
}

// NewTelegramSender 会调用 getMe 校验 token
func NewTelegramSender(token string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotConfigured
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramSender{api: api}, nil
}

func (s *TelegramSender) SendHTML(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := s.api.Send(msg)
	return err
}

// Digest 把精选新闻推送到一个 Telegram 会话；头条没变时不推送
type Digest struct {
	Sender Sender
	ChatID int64
	State  StateStore
}

func NewDigest(sender Sender, chatID string, state StateStore) (*Digest, error) {
	id, err := ParseChatID(chatID)
	if err != nil {
		return nil, err
	}
	return &Digest{Sender: sender, ChatID: id, State: state}, nil
}

// ParseChatID 会话 ID 为整数，群组为负数
func ParseChatID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrNotConfigured
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", raw, err)
	}
	return id, nil
}

// Send 返回是否真的发送了消息
func (d *Digest) Send(ctx context.Context, items []news.Item) (bool, error) {
	if d == nil || d.Sender == nil || len(items) == 0 {
		return false, nil
	}
	top := topKey(items[0])
	if d.State != nil {
		if last, _, ok := d.State.GetState(lastTopKey); ok && last == top {
			log.Printf("notify: top headline unchanged, skip telegram digest")
			return false, nil
		}
	}
	if err := d.Sender.SendHTML(ctx, d.ChatID, FormatHTML(items)); err != nil {
		return false, fmt.Errorf("send telegram digest: %w", err)
	}
	if d.State != nil {
		if err := d.State.SaveState(lastTopKey, top); err != nil {
			log.Printf("notify: save last top headline: %v", err)
		}
	}
	log.Printf("notify: telegram digest sent, %d items", len(items))
	return true, nil
}

func topKey(it news.Item) string {
	if it.Link != "" {
		return it.Link
	}
	return it.Title
}

// FormatHTML 生成 Telegram HTML 消息
func FormatHTML(items []news.Item) string {
	var b strings.Builder
	b.WriteString("<b>📰 시장 뉴스</b>\n\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%s <b>[%s]</b> %s\n", news.Badge(i, it), html.EscapeString(it.TimeLabel), html.EscapeString(it.DisplayTitle()))
		if it.Link != "" {
			fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n\n", html.EscapeString(it.Link), html.EscapeString(it.Source))
		} else {
			fmt.Fprintf(&b, "<i>%s</i>\n\n", html.EscapeString(it.Source))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
