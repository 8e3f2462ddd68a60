package pricecache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/MarketEye/internal/collector"
)

var kst = time.FixedZone("KST", 9*3600)

type fakeUpstream struct {
	now   func() time.Time
	fail  bool
	empty map[string]bool
	calls []string
	days  []int
}

func (f *fakeUpstream) FetchCandles(_ context.Context, symbol string, days int) ([]collector.Candle, error) {
	f.calls = append(f.calls, symbol)
	f.days = append(f.days, days)
	if f.fail {
		return nil, collector.ErrNetwork
	}
	if f.empty[symbol] {
		return nil, nil
	}
	end := f.now().In(kst)
	var out []collector.Candle
	for d := end.AddDate(0, 0, -days+1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, collector.Candle{Time: d.Format("2006-01-02"), Open: 100, High: 110, Low: 90, Close: 105, Volume: 1000})
	}
	return out, nil
}

func newTestService(t *testing.T, now *time.Time) (*Service, *fakeUpstream) {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return *now }
	up := &fakeUpstream{now: clock, empty: map[string]bool{}}
	svc := NewService(store, up, &TradingCalendar{Timezone: kst})
	svc.Now = clock
	return svc, up
}

func TestLastCompletedSession(t *testing.T) {
	cal := &TradingCalendar{Timezone: kst}
	cases := map[time.Time]string{
		time.Date(2024, 3, 6, 16, 0, 0, 0, kst):      "2024-03-06", // 收盘后
		time.Date(2024, 3, 6, 10, 0, 0, 0, kst):      "2024-03-05", // 盘中
		time.Date(2024, 3, 9, 12, 0, 0, 0, kst):      "2024-03-08", // 周六
		time.Date(2024, 3, 11, 9, 0, 0, 0, kst):      "2024-03-08", // 周一开盘前
		time.Date(2024, 3, 6, 6, 31, 0, 0, time.UTC): "2024-03-06",
	}
	for now, want := range cases {
		assert.Equal(t, want, cal.LastCompletedSession(now), now.String())
	}
}

func TestHistoryReadThrough(t *testing.T) {
	now := time.Date(2024, 3, 6, 16, 0, 0, 0, kst)
	svc, up := newTestService(t, &now)
	ctx := context.Background()

	candles, stale, err := svc.History(ctx, "KRX:005930", 30)
	require.NoError(t, err)
	assert.False(t, stale)
	require.NotEmpty(t, candles)
	assert.Equal(t, "2024-03-06", candles[len(candles)-1].Time)
	assert.Equal(t, []string{"005930.KS"}, up.calls)
	for i := 1; i < len(candles); i++ {
		assert.Less(t, candles[i-1].Time, candles[i].Time)
	}

	// 本地数据已是最新，不再回源
	_, _, err = svc.History(ctx, "005930", 30)
	require.NoError(t, err)
	assert.Len(t, up.calls, 1)

	// 第二天收盘后只增量回源
	now = time.Date(2024, 3, 7, 16, 0, 0, 0, kst)
	candles, _, err = svc.History(ctx, "005930", 30)
	require.NoError(t, err)
	require.Len(t, up.calls, 2)
	assert.Equal(t, 1+refillPaddingDays, up.days[1])
	assert.Equal(t, "2024-03-07", candles[len(candles)-1].Time)
}

func TestHistoryServesStaleOnUpstreamFailure(t *testing.T) {
	now := time.Date(2024, 3, 6, 16, 0, 0, 0, kst)
	svc, up := newTestService(t, &now)
	ctx := context.Background()

	_, _, err := svc.History(ctx, "005930", 30)
	require.NoError(t, err)

	up.fail = true
	now = time.Date(2024, 3, 8, 16, 0, 0, 0, kst)
	candles, stale, err := svc.History(ctx, "005930", 30)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "2024-03-06", candles[len(candles)-1].Time)
}

func TestHistoryNoDataAndInvalidCode(t *testing.T) {
	now := time.Date(2024, 3, 6, 16, 0, 0, 0, kst)
	svc, up := newTestService(t, &now)
	up.fail = true

	_, _, err := svc.History(context.Background(), "005930", 30)
	assert.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, collector.ErrNetwork)

	_, _, err = svc.History(context.Background(), "SAMSUNG", 30)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestHistoryFallsBackToKosdaqSymbol(t *testing.T) {
	now := time.Date(2024, 3, 6, 16, 0, 0, 0, kst)
	svc, up := newTestService(t, &now)
	up.empty["035720.KS"] = true

	candles, _, err := svc.History(context.Background(), "035720", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, candles)
	assert.Equal(t, []string{"035720.KS", "035720.KQ"}, up.calls)
}

func TestStoreUpsertOverwritesSameDay(t *testing.T) {
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "005930", []collector.Candle{
		{Time: "2024-03-05", Close: 100},
		{Time: "2024-03-06", Close: 101},
		{Time: "", Close: 1},
	}))
	require.NoError(t, store.Upsert(ctx, "005930", []collector.Candle{{Time: "2024-03-06", Close: 200}}))

	got, err := store.Range(ctx, "005930", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 200.0, got[1].Close)

	first, last, ok, err := store.Bounds(ctx, "005930")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-03-05", first)
	assert.Equal(t, "2024-03-06", last)

	_, _, ok, err = store.Bounds(ctx, "000660")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2024, 3, 6, 16, 0, 0, 0, kst)
	svc, up := newTestService(t, &now)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/005930?days=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var candles []collector.Candle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candles))
	assert.NotEmpty(t, candles)
	assert.Empty(t, w.Header().Get("X-Data-Stale"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	up.fail = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/000660", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "no data available"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"codes":1`)
}
