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
	fredBaseURL       = "https://api.stlouisfed.org/fred/series/observations"
	fredClientTimeout = 10 * time.Second
	fredLookbackDays  = 90
)

// 美国国债收益率：2 年、10 年、30 年
var TreasurySeries = []Instrument{
	{Symbol: "DGS2", Name: "2Y"},
	{Symbol: "DGS10", Name: "10Y"},
	{Symbol: "DGS30", Name: "30Y"},
}

// FREDClient 从圣路易斯联储 FRED 拉取宏观时间序列
type FREDClient struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
	Now     func() time.Time
}

func NewFREDClient(apiKey string) *FREDClient {
	return &FREDClient{
		APIKey:  apiKey,
		BaseURL: fredBaseURL,
		HTTP:    &http.Client{Timeout: fredClientTimeout},
		Now:     time.Now,
	}
}

type fredResp struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// FetchSeries 拉取最近 limit 个观测值；FRED 用 "." 表示缺失值
func (f *FREDClient) FetchSeries(ctx context.Context, in Instrument, limit int) QuoteResult {
	if strings.TrimSpace(f.APIKey) == "" {
		return failedQuote(in.Symbol, in.Name, "fred", fmt.Errorf("%w: FRED_API_KEY not configured", ErrAuth))
	}
	if limit <= 0 {
		limit = 30
	}

	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	params := url.Values{
		"series_id":         {in.Symbol},
		"api_key":           {f.APIKey},
		"file_type":         {"json"},
		"observation_start": {now.AddDate(0, 0, -fredLookbackDays).Format("2006-01-02")},
		"observation_end":   {now.Format("2006-01-02")},
		"sort_order":        {"desc"},
		"limit":             {strconv.Itoa(limit)},
	}
	base := f.BaseURL
	if base == "" {
		base = fredBaseURL
	}

	client := f.HTTP
	if client == nil {
		client = &http.Client{Timeout: fredClientTimeout}
	}
	var resp fredResp
	if err := getJSON(ctx, client, base+"?"+params.Encode(), nil, &resp); err != nil {
		log.Printf("fred: fetch %s: %v", in.Symbol, err)
		return failedQuote(in.Symbol, in.Name, "fred", err)
	}

	// 接口按日期倒序返回，历史序列需要转成正序
	valid := make([]Point, 0, len(resp.Observations))
	for _, obs := range resp.Observations {
		if obs.Value == "." {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(obs.Value), 64)
		if err != nil || !isFinite(v) {
			continue
		}
		valid = append(valid, Point{Date: obs.Date, Value: v})
	}
	if len(valid) == 0 {
		return failedQuote(in.Symbol, in.Name, "fred", fmt.Errorf("%w: no valid observations", ErrDataShape))
	}

	history := make([]Point, len(valid))
	for i, p := range valid {
		history[len(valid)-1-i] = p
	}

	q := QuoteResult{
		Symbol:   in.Symbol,
		Name:     in.Name,
		Currency: "%",
		Current:  float64Ptr(valid[0].Value),
		AsOf:     valid[0].Date,
		History:  history,
		Source:   "fred",
	}
	q.changeFromHistory()
	return q
}
