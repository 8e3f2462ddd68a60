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

const yahooClientTimeout = 10 * time.Second

// query2 更稳定，失败时退回 query1
var defaultYahooHosts = []string{
	"https://query2.finance.yahoo.com",
	"https://query1.finance.yahoo.com",
}

var yahooAllowedHosts = []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"}

// YahooClient 调用 Yahoo Finance v8 chart 接口
type YahooClient struct {
	Hosts []string
	HTTP  *http.Client
	Now   func() time.Time
}

func NewYahooClient() *YahooClient {
	return &YahooClient{
		Hosts: defaultYahooHosts,
		HTTP:  &http.Client{Timeout: yahooClientTimeout},
		Now:   time.Now,
	}
}

// WithHostOverride 用配置中的地址替换默认 host；不在白名单内的地址会被忽略
func (y *YahooClient) WithHostOverride(raw string) *YahooClient {
	if raw == "" {
		return y
	}
	if !isAllowedYahooURL(raw) {
		log.Printf("yahoo: host override %q not in whitelist, ignoring", raw)
		return y
	}
	y.Hosts = append([]string{strings.TrimRight(raw, "/")}, y.Hosts...)
	return y
}

type yahooChartResp struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Currency                   string   `json:"currency"`
		Symbol                     string   `json:"symbol"`
		RegularMarketPrice         *float64 `json:"regularMarketPrice"`
		RegularMarketTime          int64    `json:"regularMarketTime"`
		PreviousClose              *float64 `json:"previousClose"`
		RegularMarketChange        *float64 `json:"regularMarketChange"`
		RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// FetchQuote 拉取单日报价（指数卡片用）
func (y *YahooClient) FetchQuote(ctx context.Context, symbol, name string) QuoteResult {
	params := url.Values{"interval": {"1d"}, "range": {"1d"}}
	return y.fetch(ctx, symbol, name, params)
}

// FetchRange 按 Yahoo 的 range 参数拉取日线，例如 5d：用最近两个有效收盘价计算涨跌
func (y *YahooClient) FetchRange(ctx context.Context, symbol, name, rng string) QuoteResult {
	params := url.Values{"interval": {"1d"}, "range": {rng}}
	return y.fetch(ctx, symbol, name, params)
}

// FetchHistory 拉取最近 days 天的日线并附带历史序列（原材料走势图用）
func (y *YahooClient) FetchHistory(ctx context.Context, symbol, name string, days int) QuoteResult {
	return y.fetch(ctx, symbol, name, y.periodParams(days))
}

// FetchCandles 拉取最近 days 天的 OHLCV 日线，供本地价格缓存服务回源
func (y *YahooClient) FetchCandles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	res, _, err := y.chart(ctx, symbol, y.periodParams(days))
	if err != nil {
		return nil, err
	}
	return candlesFromChart(res), nil
}

func (y *YahooClient) periodParams(days int) url.Values {
	if days <= 0 {
		days = 30
	}
	now := y.now()
	return url.Values{
		"interval": {"1d"},
		"period1":  {strconv.FormatInt(now.AddDate(0, 0, -days).Unix(), 10)},
		"period2":  {strconv.FormatInt(now.Unix(), 10)},
	}
}

func (y *YahooClient) fetch(ctx context.Context, symbol, name string, params url.Values) QuoteResult {
	res, host, err := y.chart(ctx, symbol, params)
	if err != nil {
		log.Printf("yahoo: fetch %s: %v", symbol, err)
		return failedQuote(symbol, name, "yahoo", err)
	}
	q, err := quoteFromChart(symbol, name, res)
	if err != nil {
		log.Printf("yahoo: parse %s (%s): %v", symbol, host, err)
		return failedQuote(symbol, name, "yahoo", err)
	}
	return q
}

// chart 依次尝试各个 host，返回第一个包含有效 result 的响应
func (y *YahooClient) chart(ctx context.Context, symbol string, params url.Values) (*yahooChartResult, string, error) {
	hosts := y.Hosts
	if len(hosts) == 0 {
		hosts = defaultYahooHosts
	}
	providers := make([]Provider[*yahooChartResult], 0, len(hosts))
	for _, h := range hosts {
		host := h
		providers = append(providers, Provider[*yahooChartResult]{
			Name: host,
			Fetch: func(ctx context.Context) (*yahooChartResult, error) {
				u := host + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()
				header := http.Header{"Referer": {"https://finance.yahoo.com/"}}
				var resp yahooChartResp
				if err := getJSON(ctx, y.client(), u, header, &resp); err != nil {
					return nil, err
				}
				if len(resp.Chart.Result) == 0 {
					if resp.Chart.Error != nil {
						return nil, fmt.Errorf("%w: %s", ErrDataShape, resp.Chart.Error.Description)
					}
					return nil, fmt.Errorf("%w: empty chart result", ErrDataShape)
				}
				return &resp.Chart.Result[0], nil
			},
		})
	}
	return FirstSuccess(ctx, providers...)
}

func quoteFromChart(symbol, name string, r *yahooChartResult) (QuoteResult, error) {
	q := QuoteResult{
		Symbol:   symbol,
		Name:     name,
		Currency: r.Meta.Currency,
		Source:   "yahoo",
		History:  closesFromChart(r),
	}
	if q.Currency == "" {
		q.Currency = "USD"
	}

	switch {
	case r.Meta.RegularMarketPrice != nil && isFinite(*r.Meta.RegularMarketPrice):
		q.Current = float64Ptr(*r.Meta.RegularMarketPrice)
	case lastAdjClose(r) != nil:
		q.Current = lastAdjClose(r)
	case len(q.History) > 0:
		q.Current = float64Ptr(q.History[len(q.History)-1].Value)
	default:
		return q, fmt.Errorf("%w: no price in chart response", ErrDataShape)
	}
	if r.Meta.RegularMarketTime > 0 {
		q.AsOf = time.Unix(r.Meta.RegularMarketTime, 0).UTC().Format(time.RFC3339)
	}

	// 优先使用接口直接给出的涨跌数据，其次 previousClose，最后用最近两个有效收盘价
	meta := r.Meta
	switch {
	case meta.RegularMarketChange != nil && meta.RegularMarketChangePercent != nil:
		q.Change = float64Ptr(*meta.RegularMarketChange)
		q.ChangePercent = float64Ptr(*meta.RegularMarketChangePercent)
	case meta.PreviousClose != nil && *meta.PreviousClose != 0:
		q.setChange(*meta.PreviousClose, *q.Current)
	default:
		q.changeFromHistory()
	}
	return q, nil
}

// closesFromChart 过滤掉空收盘价，按时间升序返回
func closesFromChart(r *yahooChartResult) []Point {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	closes := r.Indicators.Quote[0].Close
	out := make([]Point, 0, len(closes))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil || !isFinite(*closes[i]) {
			continue
		}
		out = append(out, Point{Date: dateOf(ts), Value: *closes[i]})
	}
	return out
}

func lastAdjClose(r *yahooChartResult) *float64 {
	if len(r.Indicators.AdjClose) == 0 {
		return nil
	}
	vals := r.Indicators.AdjClose[0].AdjClose
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i] != nil && isFinite(*vals[i]) {
			return float64Ptr(*vals[i])
		}
	}
	return nil
}

func candlesFromChart(r *yahooChartResult) []Candle {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	at := func(s []*float64, i int) float64 {
		if i < len(s) && s[i] != nil && isFinite(*s[i]) {
			return *s[i]
		}
		return 0
	}
	out := make([]Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		out = append(out, Candle{
			Time:   dateOf(ts),
			Open:   at(q.Open, i),
			High:   at(q.High, i),
			Low:    at(q.Low, i),
			Close:  *q.Close[i],
			Volume: at(q.Volume, i),
		})
	}
	return out
}

func isAllowedYahooURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, allowed := range yahooAllowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}

func (y *YahooClient) client() *http.Client {
	if y.HTTP != nil {
		return y.HTTP
	}
	return &http.Client{Timeout: yahooClientTimeout}
}

func (y *YahooClient) now() time.Time {
	if y.Now != nil {
		return y.Now()
	}
	return time.Now()
}
