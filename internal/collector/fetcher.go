package collector

import (
	"context"
	"time"
)

// NewsItem 从资讯源解析出的原始条目
type NewsItem struct {
	Title  string
	URL    string
	Source string
	// PublishedAt 为零值表示发布时间缺失或无法解析
	PublishedAt time.Time
	// HoursAgo 距采集时刻的小时数；发布时间未知时为 UnknownHoursAgo
	HoursAgo float64
}

// Fetcher 抽象每一个资讯源
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]NewsItem, error)
}
