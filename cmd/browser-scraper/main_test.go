package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postExtract(t *testing.T, mux *http.ServeMux, body string) (int, extractResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var resp extractResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, resp
}

func TestExtractValidatesRequest(t *testing.T) {
	called := false
	mux := newMux(func(context.Context, string) (string, error) {
		called = true
		return "x", nil
	})

	cases := []string{`not json`, `{"url":""}`, `{"url":"file:///etc/passwd"}`, `{"url":"javascript:alert(1)"}`}
	for _, body := range cases {
		code, resp := postExtract(t, mux, body)
		if code != http.StatusBadRequest || resp.OK {
			t.Fatalf("body %s: code=%d resp=%+v", body, code, resp)
		}
	}
	if called {
		t.Fatalf("extractor must not run for invalid requests")
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/extract", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /extract = %d", w.Code)
	}
}

func TestExtractTruncatesByRune(t *testing.T) {
	mux := newMux(func(_ context.Context, u string) (string, error) {
		if u != "https://example.com/a" {
			t.Errorf("unexpected url %s", u)
		}
		return "\r\n  공포와 탐욕 지수\n\n\n\n끝  ", nil
	})
	code, resp := postExtract(t, mux, `{"url":"https://example.com/a","maxChars":5}`)
	if code != http.StatusOK || !resp.OK {
		t.Fatalf("code=%d resp=%+v", code, resp)
	}
	if resp.Text != "공포와 탐…" {
		t.Fatalf("text = %q", resp.Text)
	}

	_, resp = postExtract(t, mux, `{"url":"https://example.com/a"}`)
	if resp.Text != "공포와 탐욕 지수\n\n끝" {
		t.Fatalf("text = %q", resp.Text)
	}
}

func TestExtractReportsFailuresInBody(t *testing.T) {
	mux := newMux(func(context.Context, string) (string, error) {
		return "", errors.New("net::ERR_NAME_NOT_RESOLVED")
	})
	code, resp := postExtract(t, mux, `{"url":"https://nope.invalid"}`)
	if code != http.StatusOK || resp.OK || !strings.Contains(resp.Error, "ERR_NAME_NOT_RESOLVED") {
		t.Fatalf("code=%d resp=%+v", code, resp)
	}

	mux = newMux(func(context.Context, string) (string, error) { return "  \n ", nil })
	_, resp = postExtract(t, mux, `{"url":"https://example.com"}`)
	if resp.OK || resp.Error != "empty content" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestExtractJSONPathKeepsPayloadSmall(t *testing.T) {
	// 与真实 graphdata 体量相当：历史序列使正文远超默认截断长度
	var sb strings.Builder
	sb.WriteString(`{"fear_and_greed":{"score":38.5714285714,"rating":"fear","timestamp":"2024-01-02T23:59:59+00:00","previous_close":41.2},`)
	sb.WriteString(`"fear_and_greed_historical":{"timestamp":1704239999000,"score":38.57,"rating":"fear","data":[`)
	for i := 0; i < 250; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"x":%d,"y":%.2f,"rating":"neutral"}`, 1672531200000+int64(i)*86400000, 40+float64(i%20))
	}
	sb.WriteString(`]}}`)
	page := sb.String()
	if len(page) < 12000 {
		t.Fatalf("fixture too small: %d", len(page))
	}

	mux := newMux(func(context.Context, string) (string, error) { return page, nil })
	code, resp := postExtract(t, mux, `{"url":"https://example.com/graphdata","maxChars":8000,"jsonPath":"fear_and_greed"}`)
	if code != http.StatusOK || !resp.OK || resp.Truncated {
		t.Fatalf("code=%d resp=%+v", code, resp)
	}
	var fg struct {
		Score  float64 `json:"score"`
		Rating string  `json:"rating"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &fg); err != nil {
		t.Fatalf("decode %q: %v", resp.Text, err)
	}
	if fg.Rating != "fear" || fg.Score < 38.5 || fg.Score > 38.6 {
		t.Fatalf("unexpected sub-object: %+v", fg)
	}

	// 不带 jsonPath 时整页被截断并标记
	_, resp = postExtract(t, mux, `{"url":"https://example.com/graphdata","maxChars":8000}`)
	if !resp.OK || !resp.Truncated || !strings.HasSuffix(resp.Text, "…") {
		t.Fatalf("expected truncated text, got truncated=%v len=%d", resp.Truncated, len(resp.Text))
	}
}

func TestExtractJSONPathErrors(t *testing.T) {
	mux := newMux(func(context.Context, string) (string, error) { return `<html>blocked</html>`, nil })
	_, resp := postExtract(t, mux, `{"url":"https://example.com","jsonPath":"fear_and_greed"}`)
	if resp.OK || !strings.Contains(resp.Error, "not json") {
		t.Fatalf("resp=%+v", resp)
	}

	mux = newMux(func(context.Context, string) (string, error) { return `{"a":{"b":1}}`, nil })
	_, resp = postExtract(t, mux, `{"url":"https://example.com","jsonPath":"a.c"}`)
	if resp.OK || !strings.Contains(resp.Error, `key "c" not found`) {
		t.Fatalf("resp=%+v", resp)
	}
	_, resp = postExtract(t, mux, `{"url":"https://example.com","jsonPath":"a.b"}`)
	if !resp.OK || resp.Text != "1" {
		t.Fatalf("resp=%+v", resp)
	}
}
