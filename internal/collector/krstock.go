package collector

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// 本地缓存服务在同机运行，超时要短，超时后直接走 Yahoo
	priceCacheTimeout = 2 * time.Second
	defaultKRDays     = 30
)

// Candle 价格缓存服务返回的日线记录
type Candle struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// 常见韩国股票代码 -> 名称
var krStockNames = map[string]string{
	"005930": "삼성전자",
	"000660": "SK하이닉스",
	"373220": "LG에너지솔루션",
	"005380": "현대차",
	"035420": "NAVER",
	"051910": "LG화학",
	"006400": "삼성SDI",
	"035720": "카카오",
	"003670": "포스코퓨처엠",
	"068270": "셀트리온",
	"005490": "POSCO홀딩스",
	"028260": "삼성물산",
	"105560": "KB금융",
	"055550": "신한지주",
	"034730": "SK",
}

// NormalizeKRCode 去掉 KRX: 前缀与 .KS/.KQ 后缀
func NormalizeKRCode(code string) string {
	code = strings.TrimSpace(strings.ToUpper(code))
	code = strings.TrimPrefix(code, "KRX:")
	code = strings.TrimSuffix(code, ".KS")
	code = strings.TrimSuffix(code, ".KQ")
	return code
}

// KRStockName 查名称，查不到时返回代码本身
func KRStockName(code string) string {
	code = NormalizeKRCode(code)
	if name, ok := krStockNames[code]; ok {
		return name
	}
	return code
}

// KRStockClient 先查本地价格缓存服务，不可用时直接访问 Yahoo
type KRStockClient struct {
	CacheBaseURL string
	Yahoo        *YahooClient
	HTTP         *http.Client
}

func NewKRStockClient(cacheBaseURL string, yahoo *YahooClient) *KRStockClient {
	return &KRStockClient{
		CacheBaseURL: cacheBaseURL,
		Yahoo:        yahoo,
		HTTP:         &http.Client{Timeout: priceCacheTimeout},
	}
}

// FetchStock 返回最近 days 天的报价与收盘价历史
func (k *KRStockClient) FetchStock(ctx context.Context, code string, days int) QuoteResult {
	code = NormalizeKRCode(code)
	name := KRStockName(code)
	if code == "" {
		return failedQuote(code, name, "", fmt.Errorf("%w: empty stock code", ErrParse))
	}
	if days <= 0 {
		days = defaultKRDays
	}

	providers := make([]Provider[[]Candle], 0, 3)
	if k.CacheBaseURL != "" {
		providers = append(providers, Provider[[]Candle]{
			Name:  "pricecache",
			Fetch: func(ctx context.Context) ([]Candle, error) { return k.fromCache(ctx, code, days) },
		})
	}
	if k.Yahoo != nil {
		for _, suffix := range []string{".KS", ".KQ"} {
			sym := code + suffix
			providers = append(providers, Provider[[]Candle]{
				Name: "yahoo" + strings.ToLower(suffix),
				Fetch: func(ctx context.Context) ([]Candle, error) {
					candles, err := k.Yahoo.FetchCandles(ctx, sym, days)
					if err == nil && len(candles) == 0 {
						err = fmt.Errorf("%w: no candles for %s", ErrDataShape, sym)
					}
					return candles, err
				},
			})
		}
	}

	candles, source, err := FirstSuccess(ctx, providers...)
	if err != nil {
		log.Printf("krstock: fetch %s: %v", code, err)
		return failedQuote(code, name, "", err)
	}
	return quoteFromCandles(code, name, source, candles)
}

func (k *KRStockClient) fromCache(ctx context.Context, code string, days int) ([]Candle, error) {
	u := strings.TrimRight(k.CacheBaseURL, "/") + "/history/" + url.PathEscape(code) +
		"?" + url.Values{"days": {strconv.Itoa(days)}}.Encode()
	client := k.HTTP
	if client == nil {
		client = &http.Client{Timeout: priceCacheTimeout}
	}
	var candles []Candle
	if err := getJSON(ctx, client, u, nil, &candles); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: price cache returned no data", ErrDataShape)
	}
	return candles, nil
}

// quoteFromCandles 以最后一根日线为当前价，倒数第二根为前值
func quoteFromCandles(code, name, source string, candles []Candle) QuoteResult {
	q := QuoteResult{
		Symbol:   code,
		Name:     name,
		Currency: "KRW",
		Source:   source,
		History:  make([]Point, 0, len(candles)),
	}
	for _, c := range candles {
		if c.Close <= 0 || !isFinite(c.Close) {
			continue
		}
		q.History = append(q.History, Point{Date: c.Time, Value: c.Close})
	}
	if len(q.History) == 0 {
		err := fmt.Errorf("%w: no valid closes", ErrDataShape)
		return failedQuote(code, name, source, err)
	}
	last := q.History[len(q.History)-1]
	q.Current = float64Ptr(last.Value)
	q.AsOf = last.Date
	q.changeFromHistory()
	return q
}
