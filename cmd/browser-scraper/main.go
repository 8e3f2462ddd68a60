package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	defaultMaxChars = 2000
	maxMaxChars     = 20000
	extractTimeout  = 20 * time.Second
)

type extractRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars"`
	// JSONPath 非空时把正文当作 JSON，只返回该路径（点号分隔）下的值
	JSONPath string `json:"jsonPath,omitempty"`
}

type extractResponse struct {
	OK        bool   `json:"ok"`
	Text      string `json:"text,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// extractFunc 打开页面并返回可见文本
type extractFunc func(ctx context.Context, pageURL string) (string, error)

func main() {
	// 创建浏览器执行器与顶层上下文，整个进程复用一个 headless 实例
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// 预热浏览器，避免首个请求耗时过长
	if err := chromedp.Run(browserCtx); err != nil {
		log.Printf("warn: warmup chromedp failed: %v", err)
	}

	addr := ":" + getEnv("PORT", "4000")
	log.Printf("browser-scraper listening on %s", addr)
	if err := http.ListenAndServe(addr, newMux(chromeExtractor(browserCtx))); err != nil {
		log.Fatalf("http server error: %v", err)
	}
}

// chromeExtractor 每个请求新开一个标签页，共用同一个浏览器进程
func chromeExtractor(browserCtx context.Context) extractFunc {
	return func(ctx context.Context, pageURL string) (string, error) {
		tabCtx, cancelTab := chromedp.NewContext(browserCtx)
		defer cancelTab()
		tabCtx, cancel := context.WithTimeout(tabCtx, extractTimeout)
		defer cancel()
		// 客户端断开时提前结束
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		var text string
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(extractJS(), &text),
		)
		return text, err
	}
}

func newMux(extract extractFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req extractRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, extractResponse{OK: false, Error: "invalid json"})
			return
		}
		if req.URL == "" {
			writeJSON(w, http.StatusBadRequest, extractResponse{OK: false, Error: "url is required"})
			return
		}
		if !isHTTPURL(req.URL) {
			writeJSON(w, http.StatusBadRequest, extractResponse{OK: false, Error: "url must be http or https"})
			return
		}
		if req.MaxChars <= 0 {
			req.MaxChars = defaultMaxChars
		}
		if req.MaxChars > maxMaxChars {
			req.MaxChars = maxMaxChars
		}

		text, err := extract(r.Context(), req.URL)
		if err != nil {
			log.Printf("extract error: %v (url=%s)", err, req.URL)
			writeJSON(w, http.StatusOK, extractResponse{OK: false, Error: err.Error()})
			return
		}

		text = trimWhitespace(text)
		if text == "" {
			writeJSON(w, http.StatusOK, extractResponse{OK: false, Error: "empty content"})
			return
		}

		if req.JSONPath != "" {
			sub, err := selectJSON(text, req.JSONPath)
			if err != nil {
				writeJSON(w, http.StatusOK, extractResponse{OK: false, Error: err.Error()})
				return
			}
			text = sub
		}

		// rune 级截断，避免多字节字符被截断成半个
		resp := extractResponse{OK: true, Text: text}
		rs := []rune(text)
		if len(rs) > req.MaxChars {
			resp.Text = string(rs[:req.MaxChars]) + "…"
			resp.Truncated = true
		}

		writeJSON(w, http.StatusOK, resp)
	})
	return mux
}

// selectJSON 按点号路径取出 JSON 子值并重新序列化
func selectJSON(text, path string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return "", fmt.Errorf("page is not json: %w", err)
	}
	for _, key := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return "", fmt.Errorf("json path %q: parent of %q is not an object", path, key)
		}
		next, found := m[key]
		if !found {
			return "", fmt.Errorf("json path %q: key %q not found", path, key)
		}
		v = next
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// extractJS 返回一段 JS，用于在页面中提取文本。
// JSON 接口（浏览器渲染为单个 pre）直接返回原文；普通页面优先找正文容器，找不到时再全页兜底。
func extractJS() string {
	return `(function () {
  var ct = (document.contentType || "").toLowerCase();
  var pres = document.querySelectorAll("body > pre");
  if (ct.indexOf("json") >= 0 || ct.indexOf("text/plain") >= 0 || pres.length === 1) {
    return (document.body.innerText || "").trim();
  }

  function getTextFromSelector(selector) {
    var el = document.querySelector(selector);
    if (!el) return "";
    return el.innerText || "";
  }

  var selectors = [
    "article",
    "main",
    "div.article-content",
    "div#article-content",
    "div#content",
    "div.main-content",
    "div.content"
  ];

  var text = "";
  for (var i = 0; i < selectors.length; i++) {
    text = getTextFromSelector(selectors[i]).trim();
    if (text && text.length > 200) {
      break;
    }
  }

  if (!text || text.length < 200) {
    var nodes = Array.prototype.slice.call(document.querySelectorAll("p, div, pre"));
    var pieces = [];
    for (var j = 0; j < nodes.length; j++) {
      var t = (nodes[j].innerText || "").trim();
      if (t.length >= 40) {
        pieces.push(t);
      }
      if (pieces.join("\\n\\n").length > 20000) break;
    }
    text = pieces.join("\\n\\n");
  }

  return (text || "").replace(/\\s+\\n/g, "\\n").trim();
})();`
}

func trimWhitespace(s string) string {
	// 简单的空白清理，避免过多连续空行
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
