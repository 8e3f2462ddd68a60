package main

import (
	"log"
	"os"

	"github.com/LJTian/MarketEye/internal/collector"
	"github.com/LJTian/MarketEye/internal/config"
	"github.com/LJTian/MarketEye/internal/dashboard"
	"github.com/LJTian/MarketEye/internal/news"
	"github.com/LJTian/MarketEye/internal/processor"
	"github.com/LJTian/MarketEye/internal/scheduler"
	"github.com/LJTian/MarketEye/internal/storage"
	"github.com/LJTian/MarketEye/internal/translate"
)

// 一个仅执行一次新闻聚合与快照任务的命令行入口：适合手动触发采集
func main() {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir failed: %v", err)
	}

	yahoo := collector.NewYahooClient().WithHostOverride(cfg.YahooHost)
	dash := dashboard.NewService(
		yahoo,
		collector.NewFREDClient(cfg.FREDAPIKey),
		collector.NewCryptoClient(),
		collector.NewFearGreedClient(cfg.ExtractorURL),
		collector.NewKRStockClient(cfg.PriceCacheURL, yahoo),
	)
	translator := translate.NewDefault(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.TranslateTarget)

	newsJob := &scheduler.NewsJob{
		News:      news.NewAggregator(news.Fetchers(news.ParseFeedList(cfg.NewsFeeds)), translator),
		Processor: processor.NewSimpleProcessor(),
		Store:     store,
	}
	snapshotJob := &scheduler.SnapshotJob{
		Source: dash,
		Log:    storage.NewSnapshotLog(cfg.SnapshotPath),
		State:  store,
	}

	// cron 表达式沿用配置，仅用于校验；这里不启动定时器
	s, err := scheduler.New(store,
		scheduler.Job{Name: "news", CronSpec: cfg.NewsCron, Run: newsJob.Run},
		scheduler.Job{Name: "snapshot", CronSpec: cfg.SnapshotCron, Run: snapshotJob.Run},
	)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}

	// 只执行一轮任务后退出
	s.RunOnce()
}
