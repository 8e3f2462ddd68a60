package storage

import (
	"errors"
	"strings"
	"time"
)

const (
	MarketUS = "us"
	MarketKR = "kr"
)

var (
	ErrInvalidMarket = errors.New("invalid market")
	ErrInvalidTicker = errors.New("invalid ticker")
)

// Favorite 自选标的：美股为 EXCHANGE:TICKER，韩股为 KRX:6 位代码
type Favorite struct {
	Market    string    `gorm:"primaryKey;size:8" json:"market"`
	Ticker    string    `gorm:"primaryKey;size:32" json:"ticker"`
	CreatedAt time.Time `json:"createdAt"`
}

var defaultFavorites = map[string][]string{
	MarketUS: {"NASDAQ:NVDA", "NASDAQ:TSLA", "NASDAQ:AAPL", "NASDAQ:TQQQ", "NASDAQ:QQQ"},
	MarketKR: {"KRX:005930", "KRX:000660", "KRX:373220", "KRX:005380", "KRX:035420"},
}

// DefaultFavorites 返回某个市场的默认自选列表副本
func DefaultFavorites(market string) []string {
	return append([]string(nil), defaultFavorites[market]...)
}

// ListFavorites 返回自选列表（按添加顺序）。
// 某市场从未写入过时先写入默认列表；用户删空之后不再自动补回。
func (s *Store) ListFavorites(market string) ([]string, error) {
	if _, ok := defaultFavorites[market]; !ok {
		return nil, ErrInvalidMarket
	}
	if err := s.seedFavorites(market); err != nil {
		return nil, err
	}

	var list []Favorite
	if err := s.DB.Where("market = ?", market).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(list))
	for _, f := range list {
		tickers = append(tickers, f.Ticker)
	}
	return tickers, nil
}

// AddFavorite 添加自选（已存在则忽略），返回规范化后的代码
func (s *Store) AddFavorite(market, ticker string) (string, error) {
	t, err := NormalizeTicker(market, ticker)
	if err != nil {
		return "", err
	}
	if err := s.seedFavorites(market); err != nil {
		return "", err
	}
	f := Favorite{Market: market, Ticker: t, CreatedAt: time.Now()}
	return t, s.DB.Where("market = ? AND ticker = ?", market, t).FirstOrCreate(&f).Error
}

// RemoveFavorite 移除自选
func (s *Store) RemoveFavorite(market, ticker string) error {
	t, err := NormalizeTicker(market, ticker)
	if err != nil {
		return err
	}
	if err := s.seedFavorites(market); err != nil {
		return err
	}
	return s.DB.Where("market = ? AND ticker = ?", market, t).Delete(&Favorite{}).Error
}

func (s *Store) seedFavorites(market string) error {
	key := "favorites:seeded:" + market
	if _, _, ok := s.GetState(key); ok {
		return nil
	}
	now := time.Now()
	for i, t := range defaultFavorites[market] {
		f := Favorite{Market: market, Ticker: t, CreatedAt: now.Add(time.Duration(i) * time.Millisecond)}
		if err := s.DB.Where("market = ? AND ticker = ?", market, t).FirstOrCreate(&f).Error; err != nil {
			return err
		}
	}
	return s.SaveState(key, now.Format(time.RFC3339))
}

// NormalizeTicker 规范化自选代码。
// us: 大写，没有交易所前缀时补 NASDAQ:；kr: 去掉 KRX:/.KS/.KQ，补足 6 位数字后加 KRX: 前缀。
func NormalizeTicker(market, ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	switch market {
	case MarketUS:
		if t == "" {
			return "", ErrInvalidTicker
		}
		exchange, symbol, found := strings.Cut(t, ":")
		if !found {
			exchange, symbol = "NASDAQ", t
		}
		if !validSymbol(exchange) || !validSymbol(symbol) {
			return "", ErrInvalidTicker
		}
		return exchange + ":" + symbol, nil
	case MarketKR:
		t = strings.TrimPrefix(t, "KRX:")
		t = strings.TrimSuffix(t, ".KS")
		t = strings.TrimSuffix(t, ".KQ")
		code := normalizeStockCode(t)
		if code == "" {
			return "", ErrInvalidTicker
		}
		return "KRX:" + code, nil
	default:
		return "", ErrInvalidMarket
	}
}

// normalizeStockCode 规范为 6 位数字代码
func normalizeStockCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 0 {
		return ""
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return ""
		}
	}
	if len(code) == 6 {
		return code
	}
	if len(code) < 6 {
		return strings.Repeat("0", 6-len(code)) + code
	}
	return ""
}

func validSymbol(s string) bool {
	if s == "" || len(s) > 16 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '^', c == '=':
		default:
			return false
		}
	}
	return true
}
