package collector

import (
	"context"
	"time"
)

// Instrument 描述一个需要展示的标的
type Instrument struct {
	Symbol string
	Name   string
}

// 美股三大指数
var USIndices = []Instrument{
	{Symbol: "^IXIC", Name: "NASDAQ"},
	{Symbol: "^GSPC", Name: "S&P 500"},
	{Symbol: "^DJI", Name: "Dow Jones"},
}

// 韩国两大指数：单日接口常缺 previousClose，用 5 日线的前一交易日收盘价计算涨跌
var KRIndices = []Instrument{
	{Symbol: "^KS11", Name: "KOSPI"},
	{Symbol: "^KQ11", Name: "KOSDAQ"},
}

// 主要原材料期货
var Commodities = map[string]Instrument{
	"gold":   {Symbol: "GC=F", Name: "Gold"},
	"oil":    {Symbol: "CL=F", Name: "WTI Crude"},
	"copper": {Symbol: "HG=F", Name: "Copper"},
	"natgas": {Symbol: "NG=F", Name: "Natural Gas"},
}

// CommodityKeys 固定展示顺序
var CommodityKeys = []string{"gold", "oil", "copper", "natgas"}

// FetchUSIndex 单日报价
func (y *YahooClient) FetchUSIndex(ctx context.Context, in Instrument) QuoteResult {
	return y.FetchQuote(ctx, in.Symbol, in.Name)
}

// FetchKRIndex 5 日线报价
func (y *YahooClient) FetchKRIndex(ctx context.Context, in Instrument) QuoteResult {
	return y.FetchRange(ctx, in.Symbol, in.Name, "5d")
}

// FetchCommodity 带历史走势的原材料报价
func (y *YahooClient) FetchCommodity(ctx context.Context, in Instrument, days int) QuoteResult {
	return y.FetchHistory(ctx, in.Symbol, in.Name, days)
}

var locSeoul = loadSeoul()

func loadSeoul() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		// 系统缺少时区数据时回退到固定 UTC+9
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// IsKRXMarketOpen 判断当前是否处于韩国交易所常规交易时段（09:00–15:30 KST），不处理法定节假日
func IsKRXMarketOpen(t time.Time) bool {
	kt := t.In(locSeoul)
	if !isKRXTradingWeekday(kt) {
		return false
	}
	min := kt.Hour()*60 + kt.Minute()
	return min >= 9*60 && min <= 15*60+30
}

func isKRXTradingWeekday(t time.Time) bool {
	switch t.In(locSeoul).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
