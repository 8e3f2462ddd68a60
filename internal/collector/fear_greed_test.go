package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFearGreedCrypto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"Fear and Greed Index","data":[{"value":"25","value_classification":"Extreme Fear"}]}`)
	}))
	defer srv.Close()

	c := NewFearGreedClient("")
	c.AlternativeURL = srv.URL
	s := c.Crypto(context.Background())
	require.Empty(t, s.Error)
	assert.Equal(t, 25, s.Value)
	assert.Equal(t, "Extreme Fear", s.Classification)
	assert.Equal(t, "극도의 공포 😱", s.Label)
}

func TestFearGreedStockFallsBackToBrowser(t *testing.T) {
	cnn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer cnn.Close()

	extractor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, cnn.URL, req.URL)
		json.NewEncoder(w).Encode(extractResponse{
			OK:   true,
			Text: `page prefix {"fear_and_greed":{"score":61.6,"rating":"greed"}}`,
		})
	}))
	defer extractor.Close()

	c := NewFearGreedClient(extractor.URL)
	c.CNNURL = cnn.URL
	s := c.Stock(context.Background())
	require.Empty(t, s.Error)
	assert.Equal(t, 62, s.Value)
	assert.Equal(t, "browser", s.Provider)
	assert.Equal(t, "탐욕 🤑", s.Label)
}

func TestFearGreedBrowserRequestsSubObjectOnly(t *testing.T) {
	cnn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer cnn.Close()

	extractor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "fear_and_greed", req.JSONPath)
		assert.Equal(t, extractorMaxChars, req.MaxChars)
		json.NewEncoder(w).Encode(extractResponse{
			OK:   true,
			Text: `{"previous_close":40.1,"rating":"extreme fear","score":22.4,"timestamp":"2024-01-02T23:59:59+00:00"}`,
		})
	}))
	defer extractor.Close()

	c := NewFearGreedClient(extractor.URL)
	c.CNNURL = cnn.URL
	s := c.Stock(context.Background())
	require.Empty(t, s.Error)
	assert.Equal(t, 22, s.Value)
	assert.Equal(t, "extreme fear", s.Classification)
	assert.Equal(t, "browser", s.Provider)
}

func TestFearGreedBrowserTruncatedTextIsDataError(t *testing.T) {
	cnn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer cnn.Close()

	// 抽取服务截断后的 graphdata 不是合法 JSON
	full := `{"fear_and_greed":{"score":51,"rating":"neutral"},"fear_and_greed_historical":{"data":[` +
		strings.Repeat(`{"x":1704153600000,"y":48.2,"rating":"neutral"},`, 300) + `{}]}}`
	extractor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractResponse{OK: true, Text: full[:8000] + "…", Truncated: true})
	}))
	defer extractor.Close()

	c := NewFearGreedClient(extractor.URL)
	c.CNNURL = cnn.URL
	s := c.Stock(context.Background())
	assert.Equal(t, 0, s.Value)
	assert.Contains(t, s.Error, "browser: unexpected data shape: extractor text truncated")
}

func TestFearGreedStockWithoutScoreIsDataError(t *testing.T) {
	cnn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"market_momentum_sp500":{}}`)
	}))
	defer cnn.Close()

	c := NewFearGreedClient("")
	c.CNNURL = cnn.URL
	s := c.Stock(context.Background())
	assert.Equal(t, "data", s.ErrorKind)
	assert.Equal(t, "Unknown", s.Classification)
}

func TestSentimentLabelUnknownPassesThrough(t *testing.T) {
	assert.Equal(t, "Mixed", SentimentLabel("Mixed"))
	assert.Equal(t, "중립 😐", SentimentLabel(" Neutral "))
}
