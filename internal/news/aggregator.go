package news

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LJTian/MarketEye/internal/collector"
)

const maxConcurrentFeeds = 4

// 精选结果的缓存键，接口与定时任务共用
const (
	CacheKey = "news:top"
	CacheTTL = 5 * time.Minute
)

// Translator 批量翻译，返回与输入等长的切片
type Translator interface {
	Translate(ctx context.Context, texts []string) []string
}

// Aggregator 合并多个资讯源，去重、分类后按配额选出头条
type Aggregator struct {
	Fetchers   []collector.Fetcher
	Translator Translator
	Policy     Policy
}

func NewAggregator(fetchers []collector.Fetcher, tr Translator) *Aggregator {
	return &Aggregator{Fetchers: fetchers, Translator: tr, Policy: DefaultPolicy()}
}

// Collect 并发抓取所有源，按源的配置顺序合并并去重。
// 单个源失败只记录日志，贡献 0 条。
func (a *Aggregator) Collect(ctx context.Context) []Item {
	results := make([][]collector.NewsItem, len(a.Fetchers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFeeds)
	for i, f := range a.Fetchers {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("news: fetcher %s panic: %v", f.Name(), r)
				}
			}()
			items, err := f.Fetch(gctx)
			if err != nil {
				log.Printf("news: fetcher %s error: %v", f.Name(), err)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var pool []Item
	for i, items := range results {
		if len(items) == 0 && a.Fetchers[i] != nil {
			log.Printf("news: fetcher %s contributed 0 items", a.Fetchers[i].Name())
		}
		for _, raw := range items {
			if strings.TrimSpace(raw.Title) == "" {
				continue
			}
			pool = append(pool, FromRaw(raw))
		}
	}
	return Dedup(pool)
}

// Top 返回选出的头条；配置了翻译器时补全 TranslatedTitle
func (a *Aggregator) Top(ctx context.Context) []Item {
	policy := a.Policy
	if policy.Total == 0 {
		policy = DefaultPolicy()
	}
	selected := Select(a.Collect(ctx), policy)
	if a.Translator == nil || len(selected) == 0 {
		return selected
	}

	titles := make([]string, len(selected))
	for i, it := range selected {
		titles[i] = it.Title
	}
	translated := a.Translator.Translate(ctx, titles)
	for i := range selected {
		if i < len(translated) && translated[i] != "" && translated[i] != selected[i].Title {
			selected[i].TranslatedTitle = translated[i]
		}
	}
	return selected
}
