package dashboard

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LJTian/MarketEye/internal/collector"
)

const (
	DefaultCommodityDays = 30
	MaxCommodityDays     = 365
	DefaultStockDays     = 30
	yieldPoints          = 30
	maxConcurrentFetches = 8
)

const (
	MarketUS = "us"
	MarketKR = "kr"
)

var ErrUnknownMarket = errors.New("unknown market")

// 韩元市场主要币种
var CryptoMarkets = []collector.Instrument{
	{Symbol: "KRW-BTC", Name: "Bitcoin"},
	{Symbol: "KRW-ETH", Name: "Ethereum"},
	{Symbol: "KRW-XRP", Name: "XRP"},
}

// Sentiment 股票与加密货币两个恐惧贪婪指数
type Sentiment struct {
	Stock  collector.SentimentScore `json:"stock"`
	Crypto collector.SentimentScore `json:"crypto"`
}

// Overview 首页所需的全部数据；每个部件独立成败，错误写在各自的结果里
type Overview struct {
	UpdatedAt   time.Time               `json:"updatedAt"`
	KRXOpen     bool                    `json:"krxOpen"`
	USIndices   []collector.QuoteResult `json:"usIndices"`
	KRIndices   []collector.QuoteResult `json:"krIndices"`
	Commodities []collector.QuoteResult `json:"commodities"`
	Yields      []collector.QuoteResult `json:"yields"`
	Crypto      []collector.QuoteResult `json:"crypto"`
	Kimchi      collector.KimchiPremium `json:"kimchi"`
	Sentiment   Sentiment               `json:"sentiment"`
}

// Snapshot 定时写入快照日志的数据
type Snapshot struct {
	Time      time.Time
	Kimchi    collector.KimchiPremium
	FearGreed collector.SentimentScore
}

// Service 组合各个行情采集器，互不依赖的请求并发执行
type Service struct {
	Yahoo     *collector.YahooClient
	FRED      *collector.FREDClient
	Crypto    *collector.CryptoClient
	FearGreed *collector.FearGreedClient
	KRStocks  *collector.KRStockClient
	Now       func() time.Time
}

func NewService(yahoo *collector.YahooClient, fred *collector.FREDClient, crypto *collector.CryptoClient,
	fg *collector.FearGreedClient, kr *collector.KRStockClient) *Service {
	return &Service{
		Yahoo:     yahoo,
		FRED:      fred,
		Crypto:    crypto,
		FearGreed: fg,
		KRStocks:  kr,
		Now:       time.Now,
	}
}

type task struct {
	name string
	run  func(ctx context.Context)
}

// fanOut 并发执行任务；任务自己负责写结果，panic 只记日志，不影响其他任务
func fanOut(ctx context.Context, tasks []task) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, t := range tasks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("dashboard: %s panicked: %v", t.name, r)
				}
			}()
			t.run(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// pendingQuote 占位结果：任务异常退出时保留这个错误
func pendingQuote(in collector.Instrument) collector.QuoteResult {
	return collector.QuoteResult{Symbol: in.Symbol, Name: in.Name, Error: "no result", ErrorKind: "unknown"}
}

func quoteTasks(prefix string, dst []collector.QuoteResult, list []collector.Instrument,
	fetch func(ctx context.Context, in collector.Instrument) collector.QuoteResult) []task {
	tasks := make([]task, 0, len(list))
	for i, in := range list {
		dst[i] = pendingQuote(in)
		tasks = append(tasks, task{
			name: prefix + ":" + in.Symbol,
			run:  func(ctx context.Context) { dst[i] = fetch(ctx, in) },
		})
	}
	return tasks
}

func (s *Service) indexTasks(market string, dst []collector.QuoteResult) []task {
	if market == MarketKR {
		return quoteTasks("kr-index", dst, collector.KRIndices, s.Yahoo.FetchKRIndex)
	}
	return quoteTasks("us-index", dst, collector.USIndices, s.Yahoo.FetchUSIndex)
}

func commodityList() []collector.Instrument {
	list := make([]collector.Instrument, 0, len(collector.CommodityKeys))
	for _, k := range collector.CommodityKeys {
		list = append(list, collector.Commodities[k])
	}
	return list
}

func (s *Service) commodityTasks(days int, dst []collector.QuoteResult) []task {
	return quoteTasks("commodity", dst, commodityList(), func(ctx context.Context, in collector.Instrument) collector.QuoteResult {
		return s.Yahoo.FetchCommodity(ctx, in, days)
	})
}

func (s *Service) yieldTasks(dst []collector.QuoteResult) []task {
	return quoteTasks("yield", dst, collector.TreasurySeries, func(ctx context.Context, in collector.Instrument) collector.QuoteResult {
		return s.FRED.FetchSeries(ctx, in, yieldPoints)
	})
}

func (s *Service) cryptoTasks(dst []collector.QuoteResult) []task {
	return quoteTasks("crypto", dst, CryptoMarkets, func(ctx context.Context, in collector.Instrument) collector.QuoteResult {
		return s.Crypto.Ticker(ctx, in.Symbol, in.Name)
	})
}

func (s *Service) sentimentTasks(dst *Sentiment) []task {
	return []task{
		{name: "fear-greed:stock", run: func(ctx context.Context) { dst.Stock = s.FearGreed.Stock(ctx) }},
		{name: "fear-greed:crypto", run: func(ctx context.Context) { dst.Crypto = s.FearGreed.Crypto(ctx) }},
	}
}

// Indices 美股或韩股指数
func (s *Service) Indices(ctx context.Context, market string) ([]collector.QuoteResult, error) {
	var n int
	switch market {
	case MarketUS:
		n = len(collector.USIndices)
	case MarketKR:
		n = len(collector.KRIndices)
	default:
		return nil, ErrUnknownMarket
	}
	out := make([]collector.QuoteResult, n)
	fanOut(ctx, s.indexTasks(market, out))
	return out, nil
}

// Commodities 原材料报价，按 CommodityKeys 顺序
func (s *Service) Commodities(ctx context.Context, days int) []collector.QuoteResult {
	days = clampDays(days, DefaultCommodityDays, MaxCommodityDays)
	out := make([]collector.QuoteResult, len(collector.CommodityKeys))
	fanOut(ctx, s.commodityTasks(days, out))
	return out
}

// Yields 美债收益率
func (s *Service) Yields(ctx context.Context) []collector.QuoteResult {
	out := make([]collector.QuoteResult, len(collector.TreasurySeries))
	fanOut(ctx, s.yieldTasks(out))
	return out
}

// CryptoTickers Upbit 韩元行情
func (s *Service) CryptoTickers(ctx context.Context) []collector.QuoteResult {
	out := make([]collector.QuoteResult, len(CryptoMarkets))
	fanOut(ctx, s.cryptoTasks(out))
	return out
}

func (s *Service) Kimchi(ctx context.Context) collector.KimchiPremium {
	return s.Crypto.KimchiPremium(ctx)
}

func (s *Service) Sentiment(ctx context.Context) Sentiment {
	var out Sentiment
	fanOut(ctx, s.sentimentTasks(&out))
	return out
}

// KRStock 单只韩股报价与收盘价历史
func (s *Service) KRStock(ctx context.Context, code string, days int) collector.QuoteResult {
	return s.KRStocks.FetchStock(ctx, code, clampDays(days, DefaultStockDays, MaxCommodityDays))
}

// Favorites 自选列表行情。us 代码形如 NASDAQ:AAPL，kr 代码形如 KRX:005930
func (s *Service) Favorites(ctx context.Context, market string, tickers []string) ([]collector.QuoteResult, error) {
	list := make([]collector.Instrument, 0, len(tickers))
	for _, t := range tickers {
		list = append(list, collector.Instrument{Symbol: t, Name: displayName(market, t)})
	}

	var fetch func(ctx context.Context, in collector.Instrument) collector.QuoteResult
	switch market {
	case MarketUS:
		fetch = func(ctx context.Context, in collector.Instrument) collector.QuoteResult {
			q := s.Yahoo.FetchQuote(ctx, yahooSymbol(in.Symbol), in.Name)
			q.Symbol = in.Symbol
			return q
		}
	case MarketKR:
		fetch = func(ctx context.Context, in collector.Instrument) collector.QuoteResult {
			q := s.KRStocks.FetchStock(ctx, in.Symbol, DefaultStockDays)
			q.Symbol = in.Symbol
			return q
		}
	default:
		return nil, ErrUnknownMarket
	}

	out := make([]collector.QuoteResult, len(list))
	fanOut(ctx, quoteTasks("favorite", out, list, fetch))
	return out, nil
}

// Overview 并发拉取首页全部部件
func (s *Service) Overview(ctx context.Context) Overview {
	now := s.now()
	ov := Overview{
		UpdatedAt:   now.UTC(),
		KRXOpen:     collector.IsKRXMarketOpen(now),
		USIndices:   make([]collector.QuoteResult, len(collector.USIndices)),
		KRIndices:   make([]collector.QuoteResult, len(collector.KRIndices)),
		Commodities: make([]collector.QuoteResult, len(collector.CommodityKeys)),
		Yields:      make([]collector.QuoteResult, len(collector.TreasurySeries)),
		Crypto:      make([]collector.QuoteResult, len(CryptoMarkets)),
		Kimchi:      collector.KimchiPremium{Error: "no result", ErrorKind: "unknown"},
	}

	var tasks []task
	tasks = append(tasks, s.indexTasks(MarketUS, ov.USIndices)...)
	tasks = append(tasks, s.indexTasks(MarketKR, ov.KRIndices)...)
	tasks = append(tasks, s.commodityTasks(DefaultCommodityDays, ov.Commodities)...)
	tasks = append(tasks, s.yieldTasks(ov.Yields)...)
	tasks = append(tasks, s.cryptoTasks(ov.Crypto)...)
	tasks = append(tasks, s.sentimentTasks(&ov.Sentiment)...)
	tasks = append(tasks, task{name: "kimchi", run: func(ctx context.Context) { ov.Kimchi = s.Kimchi(ctx) }})
	fanOut(ctx, tasks)

	failed := 0
	for _, group := range [][]collector.QuoteResult{ov.USIndices, ov.KRIndices, ov.Commodities, ov.Yields, ov.Crypto} {
		for _, q := range group {
			if !q.OK() {
				failed++
			}
		}
	}
	log.Printf("dashboard: overview built, %d quote widgets failed", failed)
	return ov
}

// Snapshot 泡菜溢价 + 加密货币恐惧贪婪指数，两者并发获取
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{Time: s.now()}
	fanOut(ctx, []task{
		{name: "kimchi", run: func(ctx context.Context) { snap.Kimchi = s.Kimchi(ctx) }},
		{name: "fear-greed:crypto", run: func(ctx context.Context) { snap.FearGreed = s.FearGreed.Crypto(ctx) }},
	})
	return snap
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func clampDays(days, def, max int) int {
	if days <= 0 {
		return def
	}
	if days > max {
		return max
	}
	return days
}

// yahooSymbol NASDAQ:AAPL -> AAPL
func yahooSymbol(ticker string) string {
	if _, sym, ok := strings.Cut(ticker, ":"); ok {
		return sym
	}
	return ticker
}

func displayName(market, ticker string) string {
	if market == MarketKR {
		return collector.KRStockName(ticker)
	}
	return yahooSymbol(ticker)
}
