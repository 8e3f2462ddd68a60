package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/MarketEye/internal/news"
)

const maxTitleRunes = 300

// ProcessedHeadline 是写入存储层前的统一结构
type ProcessedHeadline struct {
	ID              string
	Title           string
	TranslatedTitle string
	URL             string
	Source          string
	Category        string
	PublishedAt     time.Time
	RawData         map[string]any
}

// SimpleProcessor 做最基础的数据清洗与 ID 生成
type SimpleProcessor struct{}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{}
}

// Process 按链接去重；没有发布时间的条目以采集时间入库
func (p *SimpleProcessor) Process(items []news.Item, fetchedAt time.Time) []ProcessedHeadline {
	out := make([]ProcessedHeadline, 0, len(items))
	seen := make(map[string]struct{})

	for _, it := range items {
		key := it.Link
		if key == "" {
			key = it.Title // 无链接时退回标题
		}
		id := hashURL(key)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		published := fetchedAt
		if it.PublishedAt != nil {
			published = *it.PublishedAt
		}
		out = append(out, ProcessedHeadline{
			ID:              id,
			Title:           truncateRunes(strings.TrimSpace(it.Title), maxTitleRunes),
			TranslatedTitle: truncateRunes(strings.TrimSpace(it.TranslatedTitle), maxTitleRunes),
			URL:             it.Link,
			Source:          it.Source,
			Category:        it.Category.String(),
			PublishedAt:     published,
			RawData: map[string]any{
				"hoursAgo":  it.HoursAgo,
				"timeLabel": it.TimeLabel,
			},
		})
	}

	return out
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// truncateRunes 按字符截断，超长时追加省略号
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}
