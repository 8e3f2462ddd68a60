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
	upbitBaseURL        = "https://api.upbit.com"
	binanceBaseURL      = "https://api.binance.com"
	coinbaseBaseURL     = "https://api.coinbase.com"
	cryptoClientTimeout = 10 * time.Second
)

// CryptoClient 访问交易所公开行情接口（无需密钥）
type CryptoClient struct {
	UpbitBaseURL    string
	BinanceBaseURL  string
	CoinbaseBaseURL string
	HTTP            *http.Client
}

func NewCryptoClient() *CryptoClient {
	return &CryptoClient{
		UpbitBaseURL:    upbitBaseURL,
		BinanceBaseURL:  binanceBaseURL,
		CoinbaseBaseURL: coinbaseBaseURL,
		HTTP:            &http.Client{Timeout: cryptoClientTimeout},
	}
}

// KimchiPremium 韩国交易所与海外交易所 BTC 价格差
type KimchiPremium struct {
	GlobalUSD      float64 `json:"globalUsd"`
	LocalKRW       float64 `json:"localKrw"`
	FXRate         float64 `json:"fxRate"`
	PremiumPercent float64 `json:"premiumPercent"`
	GlobalSource   string  `json:"globalSource,omitempty"`
	Error          string  `json:"error,omitempty"`
	ErrorKind      string  `json:"errorKind,omitempty"`
}

// Premium 计算 (local - global*fx) / (global*fx) * 100
func Premium(localKRW, globalUSD, fx float64) (float64, bool) {
	globalKRW := globalUSD * fx
	return ChangePercent(globalKRW, localKRW)
}

type upbitTicker struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	PrevClosingPrice float64 `json:"prev_closing_price"`
	Timestamp        int64   `json:"timestamp"`
}

func (c *CryptoClient) upbitTicker(ctx context.Context, market string) (upbitTicker, error) {
	u := strings.TrimRight(c.UpbitBaseURL, "/") + "/v1/ticker?" + url.Values{"markets": {market}}.Encode()
	var list []upbitTicker
	if err := getJSON(ctx, c.client(), u, nil, &list); err != nil {
		return upbitTicker{}, err
	}
	if len(list) == 0 || list[0].TradePrice <= 0 {
		return upbitTicker{}, fmt.Errorf("%w: upbit %s: empty ticker", ErrDataShape, market)
	}
	return list[0], nil
}

// Ticker 查询 Upbit 韩元市场行情，例如 KRW-BTC
func (c *CryptoClient) Ticker(ctx context.Context, market, name string) QuoteResult {
	t, err := c.upbitTicker(ctx, market)
	if err != nil {
		log.Printf("crypto: ticker %s: %v", market, err)
		return failedQuote(market, name, "upbit", err)
	}
	q := QuoteResult{
		Symbol:   market,
		Name:     name,
		Currency: "KRW",
		Current:  float64Ptr(t.TradePrice),
		Source:   "upbit",
	}
	if t.Timestamp > 0 {
		q.AsOf = time.UnixMilli(t.Timestamp).UTC().Format(time.RFC3339)
	}
	q.setChange(t.PrevClosingPrice, t.TradePrice)
	return q
}

func (c *CryptoClient) binanceBTCUSD(ctx context.Context) (float64, error) {
	u := strings.TrimRight(c.BinanceBaseURL, "/") + "/api/v3/ticker/price?symbol=BTCUSDT"
	var resp struct {
		Price string `json:"price"`
	}
	if err := getJSON(ctx, c.client(), u, nil, &resp); err != nil {
		return 0, err
	}
	return parsePositive("binance price", resp.Price)
}

func (c *CryptoClient) coinbaseBTCUSD(ctx context.Context) (float64, error) {
	u := strings.TrimRight(c.CoinbaseBaseURL, "/") + "/v2/prices/BTC-USD/spot"
	var resp struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := getJSON(ctx, c.client(), u, nil, &resp); err != nil {
		return 0, err
	}
	return parsePositive("coinbase amount", resp.Data.Amount)
}

// GlobalBTCUSD 海外 BTC 美元价格：Binance → Coinbase
func (c *CryptoClient) GlobalBTCUSD(ctx context.Context) (float64, string, error) {
	return FirstSuccess(ctx,
		Provider[float64]{Name: "binance", Fetch: c.binanceBTCUSD},
		Provider[float64]{Name: "coinbase", Fetch: c.coinbaseBTCUSD},
	)
}

// KimchiPremium 计算 BTC 泡菜溢价；汇率使用 Upbit 的 KRW-USDT 价格
func (c *CryptoClient) KimchiPremium(ctx context.Context) KimchiPremium {
	fail := func(err error) KimchiPremium {
		log.Printf("crypto: kimchi premium: %v", err)
		return KimchiPremium{Error: errorMessage(err), ErrorKind: ErrorKind(err)}
	}

	global, source, err := c.GlobalBTCUSD(ctx)
	if err != nil {
		return fail(err)
	}
	local, err := c.upbitTicker(ctx, "KRW-BTC")
	if err != nil {
		return fail(err)
	}
	fx, err := c.upbitTicker(ctx, "KRW-USDT")
	if err != nil {
		return fail(err)
	}

	pct, ok := Premium(local.TradePrice, global, fx.TradePrice)
	if !ok {
		return fail(fmt.Errorf("%w: zero global price or fx rate", ErrDataShape))
	}
	return KimchiPremium{
		GlobalUSD:      global,
		LocalKRW:       local.TradePrice,
		FXRate:         fx.TradePrice,
		PremiumPercent: pct,
		GlobalSource:   source,
	}
}

func parsePositive(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %w", ErrDataShape, field, raw, err)
	}
	if v <= 0 || !isFinite(v) {
		return 0, fmt.Errorf("%w: %s %q not positive", ErrDataShape, field, raw)
	}
	return v, nil
}

func (c *CryptoClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: cryptoClientTimeout}
}
