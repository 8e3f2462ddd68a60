package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFREDSeriesSkipsMissingValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DGS10", r.URL.Query().Get("series_id"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort_order"))
		fmt.Fprint(w, `{"observations":[
			{"date":"2024-01-03","value":"4.10"},
			{"date":"2024-01-02","value":"."},
			{"date":"2024-01-01","value":"4.00"}]}`)
	}))
	defer srv.Close()

	f := &FREDClient{
		APIKey:  "test",
		BaseURL: srv.URL,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
		Now:     func() time.Time { return time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC) },
	}
	q := f.FetchSeries(context.Background(), Instrument{Symbol: "DGS10", Name: "10Y"}, 10)
	require.True(t, q.OK(), q.Error)
	assert.Equal(t, 4.10, *q.Current)
	assert.Equal(t, "2024-01-03", q.AsOf)
	require.Len(t, q.History, 2)
	assert.Equal(t, "2024-01-01", q.History[0].Date)
	require.NotNil(t, q.ChangePercent)
	assert.InDelta(t, 2.5, *q.ChangePercent, 1e-9)
}

func TestFREDMissingKeyIsAuthError(t *testing.T) {
	q := NewFREDClient("").FetchSeries(context.Background(), TreasurySeries[0], 10)
	assert.False(t, q.OK())
	assert.Equal(t, "auth", q.ErrorKind)
	assert.Nil(t, q.Current)
}

func TestFREDAllMissingIsDataError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"observations":[{"date":"2024-01-03","value":"."}]}`)
	}))
	defer srv.Close()

	f := NewFREDClient("test")
	f.BaseURL = srv.URL
	q := f.FetchSeries(context.Background(), TreasurySeries[2], 10)
	assert.Equal(t, "data", q.ErrorKind)
}
