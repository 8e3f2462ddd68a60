package pricecache

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// 韩国交易所收盘时间 15:30 KST
const krxCloseMinute = 15*60 + 30

// TradingCalendar 判断 KRX 交易日；日历数据缺失时退化为周一至周五
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Timezone *time.Location
}

func KRXCalendar() *TradingCalendar {
	cal := calendar.GetCalendar("xkrx")
	if cal == nil {
		log.Printf("pricecache: calendar xkrx unavailable, using weekday fallback")
		loc, err := time.LoadLocation("Asia/Seoul")
		if err != nil {
			loc = time.FixedZone("KST", 9*3600)
		}
		return &TradingCalendar{Timezone: loc}
	}
	return &TradingCalendar{Calendar: cal, Timezone: cal.Loc}
}

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	date = date.In(tc.loc())
	if tc.Calendar == nil {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// LastCompletedSession 返回 now 时刻已收盘的最近一个交易日（YYYY-MM-DD）
func (tc *TradingCalendar) LastCompletedSession(now time.Time) string {
	t := now.In(tc.loc())
	if !tc.IsTradingDay(t) || t.Hour()*60+t.Minute() < krxCloseMinute {
		t = t.AddDate(0, 0, -1)
	}
	for i := 0; i < 30 && !tc.IsTradingDay(t); i++ {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format("2006-01-02")
}

func (tc *TradingCalendar) loc() *time.Location {
	if tc.Timezone != nil {
		return tc.Timezone
	}
	return time.UTC
}
