package news

import (
	"strings"

	"github.com/LJTian/MarketEye/internal/collector"
)

// Feed 一个 RSS 源及其展示名称
type Feed struct {
	URL    string
	Source string
}

var DefaultFeeds = []Feed{
	{"https://feeds.finance.yahoo.com/rss/2.0/headline?s=^GSPC,^IXIC,^DJI,NVDA,TSLA,AAPL,MSFT&region=US&lang=en-US", "Yahoo Finance"},
	{"https://kr.investing.com/rss/news_25.rss", "Investing.com"},
	{"https://kr.investing.com/rss/stock.rss", "Investing.com"},
	{"https://news.google.com/rss/topics/CAAqJggBCiSJQVVCQzFBUWcyTWpCb1kzbG9hWGIwS2hVcGQzQnliMWRpYXlnQVAB?hl=en-US&gl=US&ceid=US:en", "Google News"},
}

// ParseFeedList 解析 "url|名称,url|名称" 格式；未写名称时用域名，结果为空时返回默认源
func ParseFeedList(raw string) []Feed {
	var feeds []Feed
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, label, _ := strings.Cut(part, "|")
		u, label = strings.TrimSpace(u), strings.TrimSpace(label)
		if u == "" {
			continue
		}
		if label == "" {
			label = hostOf(u)
		}
		feeds = append(feeds, Feed{URL: u, Source: label})
	}
	if len(feeds) == 0 {
		return DefaultFeeds
	}
	return feeds
}

// Fetchers 为每个源构造一个 RSSFetcher
func Fetchers(feeds []Feed) []collector.Fetcher {
	out := make([]collector.Fetcher, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, collector.NewRSSFetcher(f.URL, f.Source))
	}
	return out
}

func hostOf(u string) string {
	s := u
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}
