package main

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/LJTian/MarketEye/internal/api"
	"github.com/LJTian/MarketEye/internal/collector"
	"github.com/LJTian/MarketEye/internal/config"
	"github.com/LJTian/MarketEye/internal/dashboard"
	"github.com/LJTian/MarketEye/internal/news"
	"github.com/LJTian/MarketEye/internal/notify"
	"github.com/LJTian/MarketEye/internal/processor"
	"github.com/LJTian/MarketEye/internal/scheduler"
	"github.com/LJTian/MarketEye/internal/storage"
	"github.com/LJTian/MarketEye/internal/translate"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	fetchers := news.Fetchers(news.ParseFeedList(cfg.NewsFeeds))
	translator := translate.NewDefault(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.TranslateTarget)
	aggregator := news.NewAggregator(fetchers, translator)
	journal := storage.NewJournal(cfg.JournalPath)
	snapshots := storage.NewSnapshotLog(cfg.SnapshotPath)

	hub := api.NewHub()
	go hub.Run(ctx)

	// 定时任务：新闻聚合 + 泡菜溢价快照
	newsJob := &scheduler.NewsJob{
		News:        aggregator,
		Processor:   processor.NewSimpleProcessor(),
		Store:       store,
		Broadcaster: hub,
	}
	if digest := newTelegramDigest(cfg, store); digest != nil {
		newsJob.Notifier = digest
	}
	snapshotJob := &scheduler.SnapshotJob{
		Source:      dash,
		Log:         snapshots,
		State:       store,
		Broadcaster: hub,
	}
	s, err := scheduler.New(store,
		scheduler.Job{Name: "news", CronSpec: cfg.NewsCron, Run: newsJob.Run},
		scheduler.Job{Name: "snapshot", CronSpec: cfg.SnapshotCron, Run: snapshotJob.Run},
	)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	deps := api.Deps{
		Store:       store,
		Dashboard:   dash,
		News:        aggregator,
		Journal:     journal,
		Snapshots:   snapshots,
		Hub:         hub,
		Credentials: cfg.CredentialSourcesWith,
		// 请求头里的临时密钥只用于本次请求，不写回配置
		SessionAdvisor: func(key string) api.Advisor {
			return translate.NewGemini(key, cfg.GeminiModel, cfg.TranslateTarget, false)
		},
		SessionNews: func(key string) api.NewsSource {
			return news.NewAggregator(fetchers, translate.NewDefault(key, cfg.GeminiModel, cfg.TranslateTarget))
		},
	}
	// 没有密钥时不注入，insight 接口返回未配置
	if cfg.GeminiAPIKey != "" {
		deps.Advisor = translate.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.TranslateTarget, false)
	}

	// API
	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	apiServer := api.NewServer(deps)
	apiServer.RegisterRoutes(r)

	// 若配置了前端目录，则托管 SPA 静态文件并做 fallback
	if cfg.WebRoot != "" {
		assetsDir := filepath.Join(cfg.WebRoot, "assets")
		indexFile := filepath.Join(cfg.WebRoot, "index.html")
		r.Static("/assets", assetsDir)
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.Status(http.StatusNotFound)
				return
			}
			// SPA：未匹配 API 的 GET 均返回 index.html
			c.File(indexFile)
		})
	}

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("starting api server at %s ...", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exit: %v", err)
	}
}

// newTelegramDigest 未配置或初始化失败时返回 nil，新闻任务照常运行
func newTelegramDigest(cfg *config.Config, store *storage.Store) *notify.Digest {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == "" {
		log.Printf("telegram: skip, bot token or chat id not configured")
		return nil
	}
	sender, err := notify.NewTelegramSender(cfg.TelegramToken)
	if err != nil {
		log.Printf("telegram: init bot failed: %v", err)
		return nil
	}
	digest, err := notify.NewDigest(sender, cfg.TelegramChatID, store)
	if err != nil {
		log.Printf("telegram: %v", err)
		return nil
	}
	return digest
}

// basicAuthMiddleware 为整个站点增加一个简单的 Basic Auth 访问密码。
// 仅当配置了 APP_BASIC_USER / APP_BASIC_PASS 时启用。
// /health 不做认证，便于健康检查。
func basicAuthMiddleware(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
