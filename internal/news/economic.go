package news

import (
	"fmt"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// 指标重要度
const (
	ImportanceHigh   = "높음"
	ImportanceMedium = "중"
	ImportanceLow    = "낮음"
)

// EconomicEvent 经济日历中的一条指标；Actual 为空表示尚未公布
type EconomicEvent struct {
	Time       string `json:"time"`
	Country    string `json:"country"`
	Event      string `json:"event"`
	Importance string `json:"importance"`
	Forecast   string `json:"forecast"`
	Actual     string `json:"actual,omitempty"`
	Previous   string `json:"previous"`
}

// MarketClosure 当日休市的交易所及原因
type MarketClosure struct {
	Exchange string `json:"exchange"`
	Reason   string `json:"reason"`
}

type EconomicCalendar struct {
	Date     string          `json:"date"`
	Events   []EconomicEvent `json:"events"`
	Closures []MarketClosure `json:"closures"`
	Markdown string          `json:"markdown"`
}

// 固定的每日指标表（时间为 KST）
var defaultEvents = []EconomicEvent{
	{Time: "08:00", Country: "🇰🇷", Event: "산업생산지수 (MoM)", Importance: ImportanceMedium, Forecast: "0.3%", Actual: "0.5%", Previous: "-0.2%"},
	{Time: "08:30", Country: "🇯🇵", Event: "도쿄 핵심 CPI (YoY)", Importance: ImportanceHigh, Forecast: "2.4%", Previous: "2.2%"},
	{Time: "10:00", Country: "🇨🇳", Event: "제조업 PMI", Importance: ImportanceHigh, Forecast: "50.2", Previous: "49.8%"},
	{Time: "18:00", Country: "🇪🇺", Event: "소비자물가지수 (CPI) (YoY)", Importance: ImportanceHigh, Forecast: "2.8%", Previous: "2.9%"},
	{Time: "21:30", Country: "🇺🇸", Event: "PCE 물가지수 (Core)", Importance: ImportanceHigh, Forecast: "0.2%", Previous: "0.1%"},
	{Time: "22:00", Country: "🇺🇸", Event: "미시간 소비자심리", Importance: ImportanceMedium, Forecast: "72.0", Previous: "71.1%"},
	{Time: "22:45", Country: "🇺🇸", Event: "시카고 PMI", Importance: ImportanceLow, Forecast: "40.5", Previous: "36.9"},
}

// 需要标注休市的交易所；xkrx 日历目前只含周末，没有节假日数据
var closureExchanges = []struct {
	Name string
	Code string
}{
	{Name: "NYSE", Code: "xnys"},
	{Name: "KRX", Code: "xkrx"},
}

// EventsForDate 返回指定日期的指标列表（副本，调用方可修改）
func EventsForDate(date time.Time) []EconomicEvent {
	out := make([]EconomicEvent, len(defaultEvents))
	copy(out, defaultEvents)
	return out
}

// MarketClosures 用交易所日历判断当天哪些市场休市
func MarketClosures(date time.Time) []MarketClosure {
	var out []MarketClosure
	year := date.Year()
	for _, ex := range closureExchanges {
		// 只加载前一年到当年，查询 1 月 1 日的前一秒也不会越界
		cal := calendar.GetCalendar(ex.Code, year-1, year)
		if cal == nil {
			continue
		}
		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, cal.Loc)
		if calendar.IsWeekend(day) {
			out = append(out, MarketClosure{Exchange: ex.Name, Reason: "주말"})
			continue
		}
		if !cal.IsHoliday(day) {
			continue
		}
		reason := "휴장"
		if at, h := cal.NextHoliday(day.Add(-time.Second)); h != nil && at.Equal(day) {
			reason = h.Name
		}
		out = append(out, MarketClosure{Exchange: ex.Name, Reason: reason})
	}
	return out
}

// BuildEconomicCalendar 汇总指标、休市信息和 markdown
func BuildEconomicCalendar(date time.Time) EconomicCalendar {
	events := EventsForDate(date)
	closures := MarketClosures(date)
	if closures == nil {
		closures = []MarketClosure{}
	}
	return EconomicCalendar{
		Date:     date.Format("2006-01-02"),
		Events:   events,
		Closures: closures,
		Markdown: FormatEconomicCalendar(date, events, closures),
	}
}

func importanceBadge(level string) string {
	switch level {
	case ImportanceHigh:
		return "🔴"
	case ImportanceMedium:
		return "🟡"
	default:
		return "⚪"
	}
}

// FormatEconomicCalendar 生成经济日历 markdown 表格
func FormatEconomicCalendar(date time.Time, events []EconomicEvent, closures []MarketClosure) string {
	lines := []string{fmt.Sprintf("### 📅 %s 주요 경제 지표", date.Format("2006-01-02")), ""}
	if len(closures) > 0 {
		parts := make([]string, len(closures))
		for i, c := range closures {
			parts[i] = fmt.Sprintf("%s (%s)", c.Exchange, c.Reason)
		}
		lines = append(lines, "> 🏦 휴장: "+strings.Join(parts, ", "), "")
	}
	lines = append(lines,
		"| 시간 | 국가 | 지표 | 중요도 | 예측 | 실제 | 이전 |",
		"|:----:|:----:|------|:------:|:----:|:----:|:----:|",
	)
	for _, e := range events {
		actual := e.Actual
		if actual == "" {
			actual = "⏳"
		}
		lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |",
			e.Time, e.Country, e.Event, importanceBadge(e.Importance), e.Forecast, actual, e.Previous))
	}
	lines = append(lines,
		"",
		"---",
		"**📌 중요도 범례:** 🔴 높음 | 🟡 중간 | ⚪ 낮음",
		"> 💡 ⏳ = 발표 대기 중",
	)
	return strings.Join(lines, "\n")
}
