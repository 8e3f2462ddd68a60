package pricecache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LJTian/MarketEye/internal/collector"
)

const (
	DefaultDays = 365
	MaxDays     = 3650
	// 增量回源时多取几天，覆盖长假
	refillPaddingDays = 7
)

var (
	ErrInvalidCode = errors.New("invalid stock code")
	ErrNoData      = errors.New("no data available")
)

// Upstream 日线数据源（Yahoo）
type Upstream interface {
	FetchCandles(ctx context.Context, symbol string, days int) ([]collector.Candle, error)
}

// Service 读穿透缓存：本地数据落后于最近一个已收盘交易日时先回源补齐
type Service struct {
	Store    *Store
	Upstream Upstream
	Calendar *TradingCalendar
	Now      func() time.Time
}

func NewService(store *Store, upstream Upstream, cal *TradingCalendar) *Service {
	return &Service{Store: store, Upstream: upstream, Calendar: cal, Now: time.Now}
}

// History 返回最近 days 天的日线；回源失败但本地有数据时返回旧数据并标记 stale
func (s *Service) History(ctx context.Context, rawCode string, days int) (candles []collector.Candle, stale bool, err error) {
	code := collector.NormalizeKRCode(rawCode)
	if !isKRCode(code) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidCode, rawCode)
	}
	if days <= 0 {
		days = DefaultDays
	}
	if days > MaxDays {
		days = MaxDays
	}

	now := s.now()
	from := now.AddDate(0, 0, -days).Format("2006-01-02")
	first, last, ok, err := s.Store.Bounds(ctx, code)
	if err != nil {
		return nil, false, err
	}

	if fetchDays, need := s.refillWindow(now, from, first, last, ok, days); need {
		fresh, src, ferr := s.fetch(ctx, code, fetchDays)
		switch {
		case ferr == nil:
			if err := s.Store.Upsert(ctx, code, fresh); err != nil {
				return nil, false, err
			}
			log.Printf("pricecache: %s filled %d bars from %s", code, len(fresh), src)
		case ok:
			log.Printf("pricecache: %s upstream failed, serving stale data (last=%s): %v", code, last, ferr)
			stale = true
		default:
			return nil, false, fmt.Errorf("%w for %s: %w", ErrNoData, code, ferr)
		}
	}

	candles, err = s.Store.Range(ctx, code, from)
	if err != nil {
		return nil, false, err
	}
	if len(candles) == 0 {
		return nil, stale, fmt.Errorf("%w for %s since %s", ErrNoData, code, from)
	}
	return candles, stale, nil
}

// refillWindow 判断是否需要回源以及回源天数
func (s *Service) refillWindow(now time.Time, from, first, last string, ok bool, days int) (int, bool) {
	if !ok || first > from && daysBetween(from, first) > refillPaddingDays {
		return days, true
	}
	expected := s.Calendar.LastCompletedSession(now)
	if last >= expected {
		return 0, false
	}
	n := daysBetween(last, now.Format("2006-01-02")) + refillPaddingDays
	return min(n, days), true
}

func (s *Service) fetch(ctx context.Context, code string, days int) ([]collector.Candle, string, error) {
	providers := make([]collector.Provider[[]collector.Candle], 0, 2)
	for _, suffix := range []string{".KS", ".KQ"} {
		sym := code + suffix
		providers = append(providers, collector.Provider[[]collector.Candle]{
			Name: sym,
			Fetch: func(ctx context.Context) ([]collector.Candle, error) {
				c, err := s.Upstream.FetchCandles(ctx, sym, days)
				if err == nil && len(c) == 0 {
					err = fmt.Errorf("%w: no candles for %s", collector.ErrDataShape, sym)
				}
				return c, err
			},
		})
	}
	return collector.FirstSuccess(ctx, providers...)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func isKRCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func daysBetween(a, b string) int {
	ta, err1 := time.Parse("2006-01-02", a)
	tb, err2 := time.Parse("2006-01-02", b)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}
