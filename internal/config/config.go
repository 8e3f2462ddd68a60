package config

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	// 全站 Basic Auth，两者都配置时启用
	BasicAuthUser string
	BasicAuthPass string

	// 前端静态文件目录，为空则只提供 API
	WebRoot string

	NewsCron     string
	SnapshotCron string
	NewsFeeds    string

	TranslateTarget string
	GeminiAPIKey    string
	GeminiModel     string
	FREDAPIKey      string

	TelegramToken  string
	TelegramChatID string

	PriceCacheURL  string
	PriceCachePort string
	PriceCacheDB   string
	ExtractorURL   string
	YahooHost      string

	DataDir      string
	SnapshotPath string
	JournalPath  string

	// 凭据来自哪个配置源，供诊断接口展示
	sources []Source
}

func Load() *Config {
	sources := DefaultSources(getEnv("ENV_FILE", ".env"), getEnv("SECRETS_FILE", filepath.Join(".secrets", "secrets.yaml")))
	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		AppPort:     getEnv("APP_PORT", "9000"),
		PostgresDSN: getEnv("POSTGRES_DSN", "host=localhost user=marketeye password=marketeye dbname=marketeye port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6380"),

		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		WebRoot:       getEnv("WEB_ROOT", ""),

		NewsCron:     getEnv("NEWS_CRON", "*/15 * * * *"),
		SnapshotCron: getEnv("SNAPSHOT_CRON", "*/10 * * * *"),
		NewsFeeds:    getEnv("NEWS_FEEDS", ""),

		TranslateTarget: getEnv("TRANSLATE_TARGET", "ko"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		PriceCacheURL:  getEnv("PRICE_CACHE_URL", "http://127.0.0.1:8001"),
		PriceCachePort: getEnv("PRICE_CACHE_PORT", "8001"),
		PriceCacheDB:   getEnv("PRICE_CACHE_DB", filepath.Join(dataDir, "pricecache.db")),
		ExtractorURL:   getEnv("EXTRACTOR_URL", ""),
		YahooHost:      getEnv("YAHOO_HOST", ""),

		DataDir:      dataDir,
		SnapshotPath: getEnv("SNAPSHOT_PATH", filepath.Join(dataDir, "market_history.csv")),
		JournalPath:  getEnv("JOURNAL_PATH", filepath.Join(dataDir, "journal.md")),

		sources: sources,
	}

	// 密钥按 环境变量 → .env → secrets.yaml 顺序解析
	cfg.GeminiAPIKey, _ = Resolve("GEMINI_API_KEY", sources...)
	cfg.FREDAPIKey, _ = Resolve("FRED_API_KEY", sources...)
	cfg.TelegramToken, _ = Resolve("TELEGRAM_BOT_TOKEN", sources...)
	cfg.TelegramChatID, _ = Resolve("TELEGRAM_CHAT_ID", sources...)

	log.Printf("config loaded: port=%s news_cron=%s snapshot_cron=%s gemini=%t fred=%t telegram=%t",
		cfg.AppPort, cfg.NewsCron, cfg.SnapshotCron, cfg.GeminiAPIKey != "", cfg.FREDAPIKey != "", cfg.TelegramToken != "")
	return cfg
}

// CredentialSources 返回每个密钥的来源名称，未配置时为空字符串
func (c *Config) CredentialSources() map[string]string {
	return c.CredentialSourcesWith(nil)
}

// CredentialSourcesWith 与 CredentialSources 相同，但会话覆盖值优先
func (c *Config) CredentialSourcesWith(overrides map[string]string) map[string]string {
	sources := c.withSession(overrides)
	out := make(map[string]string, len(CredentialKeys))
	for _, key := range CredentialKeys {
		_, src := Resolve(key, sources...)
		out[key] = src
	}
	return out
}

// ResolveWith 先查会话覆盖值，再按 环境变量 → .env → secrets.yaml 查找
func (c *Config) ResolveWith(key string, overrides map[string]string) (string, string) {
	return Resolve(key, c.withSession(overrides)...)
}

func (c *Config) withSession(overrides map[string]string) []Source {
	if len(overrides) == 0 {
		return c.sources
	}
	return append([]Source{SessionSource(overrides)}, c.sources...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
