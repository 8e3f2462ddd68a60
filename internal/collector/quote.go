package collector

import (
	"math"
	"time"
)

// Point 是历史序列中的一个 (日期, 数值) 点，日期格式 YYYY-MM-DD
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// QuoteResult 统一的行情结果。
// 数值字段使用指针：nil 表示“无数据”，与 0 区分开。
// 取数失败时 Error 非空、数值字段为空；允许只有价格没有历史的部分结果。
type QuoteResult struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Currency      string   `json:"currency,omitempty"`
	Current       *float64 `json:"current,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
	AsOf          string   `json:"asOf,omitempty"`
	History       []Point  `json:"history,omitempty"`
	Source        string   `json:"source,omitempty"`
	Error         string   `json:"error,omitempty"`
	ErrorKind     string   `json:"errorKind,omitempty"`
}

// OK 表示本次取数拿到了当前值
func (q QuoteResult) OK() bool {
	return q.Error == "" && q.Current != nil
}

// ChangePercent 计算 (cur-prev)/prev*100；prev 为 0 或非有限值时返回 false
func ChangePercent(prev, cur float64) (float64, bool) {
	if prev == 0 || !isFinite(prev) || !isFinite(cur) {
		return 0, false
	}
	return (cur - prev) / prev * 100, true
}

// setChange 根据前值补全涨跌额与涨跌幅；前值不可用时两者都保持为空
func (q *QuoteResult) setChange(prev, cur float64) {
	pct, ok := ChangePercent(prev, cur)
	if !ok {
		return
	}
	ch := cur - prev
	q.Change = &ch
	q.ChangePercent = &pct
}

// changeFromHistory 用最近两个有效点计算涨跌
func (q *QuoteResult) changeFromHistory() {
	if q.Current == nil || len(q.History) < 2 {
		return
	}
	prev := q.History[len(q.History)-2].Value
	q.setChange(prev, *q.Current)
}

func failedQuote(symbol, name, source string, err error) QuoteResult {
	return QuoteResult{
		Symbol:    symbol,
		Name:      name,
		Source:    source,
		Error:     errorMessage(err),
		ErrorKind: ErrorKind(err),
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func dateOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
