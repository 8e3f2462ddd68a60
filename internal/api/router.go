package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/MarketEye/internal/collector"
	"github.com/LJTian/MarketEye/internal/dashboard"
	"github.com/LJTian/MarketEye/internal/news"
	"github.com/LJTian/MarketEye/internal/storage"
)

const (
	overviewCacheKey = "dashboard:overview"
	overviewCacheTTL = time.Minute
	requestTimeout   = 30 * time.Second

	// SessionKeyHeader 前端会话里填写的临时 Gemini 密钥，只对本次请求生效
	SessionKeyHeader = "X-Gemini-Key"
)

// Store 归档、自选与缓存
type Store interface {
	ListHeadlines(ctx context.Context, date string, limit int) ([]storage.Headline, error)
	ListHeadlineDates(ctx context.Context, limit int) ([]string, error)
	ListFavorites(market string) ([]string, error)
	AddFavorite(market, ticker string) (string, error)
	RemoveFavorite(market, ticker string) error
	ListStates() ([]storage.AppState, error)
	GetJSON(ctx context.Context, key string, out any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration)
}

type Dashboard interface {
	Overview(ctx context.Context) dashboard.Overview
	Indices(ctx context.Context, market string) ([]collector.QuoteResult, error)
	Commodities(ctx context.Context, days int) []collector.QuoteResult
	Yields(ctx context.Context) []collector.QuoteResult
	CryptoTickers(ctx context.Context) []collector.QuoteResult
	Kimchi(ctx context.Context) collector.KimchiPremium
	Sentiment(ctx context.Context) dashboard.Sentiment
	KRStock(ctx context.Context, code string, days int) collector.QuoteResult
	Favorites(ctx context.Context, market string, tickers []string) ([]collector.QuoteResult, error)
}

type NewsSource interface {
	Top(ctx context.Context) []news.Item
}

type Journal interface {
	Read() (string, error)
	Append(entry string) error
}

type SnapshotLog interface {
	Tail(n int) ([]storage.SnapshotRow, error)
}

// Advisor 根据泡菜溢价、汇率和投资日志生成一句话建议
type Advisor interface {
	Insight(ctx context.Context, premium, fxRate float64, journal string) (string, error)
}

// Deps Store 与 Dashboard 必填，其余为空时对应接口返回未配置错误
type Deps struct {
	Store     Store
	Dashboard Dashboard
	News      NewsSource
	Journal   Journal
	Snapshots SnapshotLog
	Advisor   Advisor
	Hub       *Hub
	// Credentials 按会话覆盖值解析各密钥的来源
	Credentials func(overrides map[string]string) map[string]string
	// 请求头带密钥时用它临时构造 Advisor / NewsSource
	SessionAdvisor func(key string) Advisor
	SessionNews    func(key string) NewsSource
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	return &Server{Deps: d}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/overview", s.overview)
		v1.GET("/indices", s.indices)
		v1.GET("/commodities", s.commodities)
		v1.GET("/yields", s.yields)
		v1.GET("/crypto/tickers", s.cryptoTickers)
		v1.GET("/crypto/kimchi", s.kimchi)
		v1.GET("/sentiment", s.sentiment)
		v1.GET("/stocks/kr/:code", s.krStock)

		v1.GET("/news", s.listNews)
		v1.GET("/news/archive", s.newsArchive)
		v1.GET("/news/archive/dates", s.newsArchiveDates)
		v1.GET("/calendar", s.economicCalendar)

		v1.GET("/favorites/:market", s.listFavorites)
		v1.POST("/favorites/:market", s.addFavorite)
		v1.DELETE("/favorites/:market/:ticker", s.removeFavorite)

		v1.GET("/journal", s.getJournal)
		v1.POST("/journal", s.appendJournal)
		v1.GET("/insight", s.insight)
		v1.GET("/snapshots", s.snapshots)

		v1.GET("/diagnostics", s.diagnostics)
		if s.Hub != nil {
			v1.GET("/stream", s.Hub.ServeWS)
		}
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func internalError(c *gin.Context, what string, err error) {
	log.Printf("api: %s error: %v", what, err)
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func reqContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// sessionKey 请求头里的临时密钥，去掉空白后为空则返回 ""
func sessionKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(SessionKeyHeader))
}

func sessionOverrides(c *gin.Context) map[string]string {
	key := sessionKey(c)
	if key == "" {
		return nil
	}
	return map[string]string{"GEMINI_API_KEY": key}
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) overview(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()

	var ov dashboard.Overview
	if s.Store.GetJSON(ctx, overviewCacheKey, &ov) {
		ok(c, ov)
		return
	}
	ov = s.Dashboard.Overview(ctx)
	s.Store.SetJSON(ctx, overviewCacheKey, ov, overviewCacheTTL)
	ok(c, ov)
}

func (s *Server) indices(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()

	market := strings.ToLower(c.DefaultQuery("market", dashboard.MarketUS))
	list, err := s.Dashboard.Indices(ctx, market)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_market", "market must be us or kr")
		return
	}
	ok(c, list)
}

func (s *Server) commodities(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()
	ok(c, s.Dashboard.Commodities(ctx, queryInt(c, "days", dashboard.DefaultCommodityDays)))
}

func (s *Server) yields(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()
	ok(c, s.Dashboard.Yields(ctx))
}

func (s *Server) cryptoTickers(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()
	ok(c, s.Dashboard.CryptoTickers(ctx))
}

func (s *Server) kimchi(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()
	ok(c, s.Dashboard.Kimchi(ctx))
}

func (s *Server) sentiment(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()
	ok(c, s.Dashboard.Sentiment(ctx))
}

func (s *Server) krStock(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()
	ok(c, s.Dashboard.KRStock(ctx, c.Param("code"), queryInt(c, "days", dashboard.DefaultStockDays)))
}

type newsPayload struct {
	Items    []news.Item `json:"items"`
	Markdown string      `json:"markdown"`
}

// listNews 精选新闻，结果缓存 5 分钟；定时任务也会写入同一个缓存键。
// 带会话密钥的请求用该密钥翻译，不读写共享缓存。
func (s *Server) listNews(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()

	var items []news.Item
	if key := sessionKey(c); key != "" && s.SessionNews != nil {
		items = s.SessionNews(key).Top(ctx)
	} else if !s.Store.GetJSON(ctx, news.CacheKey, &items) {
		if s.News == nil {
			fail(c, http.StatusServiceUnavailable, "not_configured", "news aggregator not configured")
			return
		}
		items = s.News.Top(ctx)
		if len(items) > 0 {
			s.Store.SetJSON(ctx, news.CacheKey, items, news.CacheTTL)
		}
	}
	if items == nil {
		items = []news.Item{}
	}
	ok(c, newsPayload{Items: items, Markdown: news.FormatDigest(items)})
}

func (s *Server) newsArchive(c *gin.Context) {
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			fail(c, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
	}
	list, err := s.Store.ListHeadlines(c.Request.Context(), date, queryInt(c, "limit", 50))
	if err != nil {
		internalError(c, "list headlines", err)
		return
	}
	ok(c, list)
}

func (s *Server) newsArchiveDates(c *gin.Context) {
	dates, err := s.Store.ListHeadlineDates(c.Request.Context(), queryInt(c, "limit", 31))
	if err != nil {
		internalError(c, "list headline dates", err)
		return
	}
	ok(c, dates)
}

// economicCalendar 指定日期（默认今天）的经济指标与休市信息
func (s *Server) economicCalendar(c *gin.Context) {
	date := time.Now()
	if q := c.Query("date"); q != "" {
		d, err := time.Parse("2006-01-02", q)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	ok(c, news.BuildEconomicCalendar(date))
}

func favoriteError(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidMarket):
		fail(c, http.StatusBadRequest, "invalid_market", "market must be us or kr")
	case errors.Is(err, storage.ErrInvalidTicker):
		fail(c, http.StatusBadRequest, "invalid_ticker", "invalid ticker")
	default:
		internalError(c, what, err)
	}
}

// listFavorites 返回自选列表及行情；quotes=false 时只返回列表
func (s *Server) listFavorites(c *gin.Context) {
	market := strings.ToLower(c.Param("market"))
	tickers, err := s.Store.ListFavorites(market)
	if err != nil {
		favoriteError(c, "list favorites", err)
		return
	}
	data := gin.H{"market": market, "tickers": tickers}
	if c.Query("quotes") != "false" {
		ctx, cancel := reqContext(c)
		defer cancel()
		quotes, err := s.Dashboard.Favorites(ctx, market, tickers)
		if err != nil {
			favoriteError(c, "favorite quotes", err)
			return
		}
		data["quotes"] = quotes
	}
	ok(c, data)
}

func (s *Server) addFavorite(c *gin.Context) {
	var body struct {
		Ticker string `json:"ticker"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", "body must be {\"ticker\": \"...\"}")
		return
	}
	t, err := s.Store.AddFavorite(strings.ToLower(c.Param("market")), body.Ticker)
	if err != nil {
		favoriteError(c, "add favorite", err)
		return
	}
	ok(c, gin.H{"ticker": t})
}

func (s *Server) removeFavorite(c *gin.Context) {
	if err := s.Store.RemoveFavorite(strings.ToLower(c.Param("market")), c.Param("ticker")); err != nil {
		favoriteError(c, "remove favorite", err)
		return
	}
	ok(c, nil)
}

func (s *Server) getJournal(c *gin.Context) {
	if s.Journal == nil {
		fail(c, http.StatusServiceUnavailable, "not_configured", "journal not configured")
		return
	}
	content, err := s.Journal.Read()
	if err != nil {
		internalError(c, "read journal", err)
		return
	}
	ok(c, gin.H{"content": content})
}

func (s *Server) appendJournal(c *gin.Context) {
	if s.Journal == nil {
		fail(c, http.StatusServiceUnavailable, "not_configured", "journal not configured")
		return
	}
	var body struct {
		Entry string `json:"entry"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", "body must be {\"entry\": \"...\"}")
		return
	}
	if err := s.Journal.Append(body.Entry); err != nil {
		if errors.Is(err, storage.ErrEmptyEntry) {
			fail(c, http.StatusBadRequest, "empty_entry", "entry must not be empty")
			return
		}
		internalError(c, "append journal", err)
		return
	}
	ok(c, nil)
}

type insightPayload struct {
	Text      string                  `json:"text,omitempty"`
	Kimchi    collector.KimchiPremium `json:"kimchi"`
	Error     string                  `json:"error,omitempty"`
	ErrorKind string                  `json:"errorKind,omitempty"`
}

// insight 上游失败时仍返回 200，错误写在 payload 里
func (s *Server) insight(c *gin.Context) {
	ctx, cancel := reqContext(c)
	defer cancel()

	out := insightPayload{Kimchi: s.Dashboard.Kimchi(ctx)}
	if out.Kimchi.Error != "" {
		out.Error, out.ErrorKind = out.Kimchi.Error, out.Kimchi.ErrorKind
		ok(c, out)
		return
	}
	advisor := s.Advisor
	if key := sessionKey(c); key != "" && s.SessionAdvisor != nil {
		advisor = s.SessionAdvisor(key)
	}
	if advisor == nil {
		out.Error, out.ErrorKind = "GEMINI_API_KEY not configured", "auth"
		ok(c, out)
		return
	}
	var journal string
	if s.Journal != nil {
		j, err := s.Journal.Read()
		if err != nil {
			log.Printf("api: read journal for insight: %v", err)
		}
		journal = j
	}
	text, err := advisor.Insight(ctx, out.Kimchi.PremiumPercent, out.Kimchi.FXRate, journal)
	if err != nil {
		log.Printf("api: insight: %v", err)
		out.Error, out.ErrorKind = err.Error(), collector.ErrorKind(err)
	}
	out.Text = text
	ok(c, out)
}

func (s *Server) snapshots(c *gin.Context) {
	if s.Snapshots == nil {
		ok(c, []storage.SnapshotRow{})
		return
	}
	rows, err := s.Snapshots.Tail(queryInt(c, "limit", 100))
	if err != nil {
		internalError(c, "read snapshots", err)
		return
	}
	if rows == nil {
		rows = []storage.SnapshotRow{}
	}
	ok(c, rows)
}

// diagnostics 各密钥的来源、定时任务状态与推送连接数
func (s *Server) diagnostics(c *gin.Context) {
	data := gin.H{}
	if s.Credentials != nil {
		data["credentials"] = s.Credentials(sessionOverrides(c))
	}
	states, err := s.Store.ListStates()
	if err != nil {
		log.Printf("api: list states: %v", err)
	}
	data["states"] = states
	if s.Hub != nil {
		data["streamClients"] = s.Hub.ClientCount()
	}
	ok(c, data)
}
