package news

import (
	"fmt"
	"time"

	"github.com/LJTian/MarketEye/internal/collector"
)

// Item 经过去重、分类后的新闻条目
type Item struct {
	TimeLabel       string     `json:"time"`
	Source          string     `json:"source"`
	Title           string     `json:"title"`
	Link            string     `json:"link"`
	Category        Category   `json:"category"`
	HoursAgo        float64    `json:"hoursAgo"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	TranslatedTitle string     `json:"translatedTitle,omitempty"`
}

// DisplayTitle 有译文时显示译文
func (it Item) DisplayTitle() string {
	if it.TranslatedTitle != "" {
		return it.TranslatedTitle
	}
	return it.Title
}

// FromRaw 把资讯源的原始条目转换为 Item，分类只由标题决定
func FromRaw(raw collector.NewsItem) Item {
	it := Item{
		TimeLabel: TimeLabel(raw.PublishedAt, raw.HoursAgo),
		Source:    raw.Source,
		Title:     raw.Title,
		Link:      raw.URL,
		Category:  Classify(raw.Title),
		HoursAgo:  raw.HoursAgo,
	}
	if !raw.PublishedAt.IsZero() {
		pub := raw.PublishedAt
		it.PublishedAt = &pub
	}
	return it
}

// TimeLabel 生成相对时间标签；只有发布时间缺失时才显示“최근”
func TimeLabel(publishedAt time.Time, hoursAgo float64) string {
	if publishedAt.IsZero() {
		return "최근"
	}
	if hoursAgo < 0 {
		hoursAgo = 0
	}
	switch {
	case hoursAgo < 1:
		return fmt.Sprintf("%d분 전", int(hoursAgo*60))
	case hoursAgo < 24:
		return fmt.Sprintf("%d시간 전", int(hoursAgo))
	default:
		return fmt.Sprintf("%d일 전", int(hoursAgo/24))
	}
}
