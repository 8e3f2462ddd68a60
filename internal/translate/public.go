package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/LJTian/MarketEye/internal/collector"
)

const translateMaxResponseBytes = 256 * 1024

const (
	translateMaxLen        = 500
	translateClientTimeout = 20 * time.Second

	googleGTXURL = "https://translate.googleapis.com/translate_a/single"
	myMemoryURL  = "https://api.mymemory.translated.net/get"
)

// Public 逐条调用免密钥的公开翻译接口：Google Translate (client=gtx) → MyMemory。
// 单条失败时保留原文，不影响其他条目。
type Public struct {
	Target      string
	GoogleURL   string
	MyMemoryURL string
	HTTP        *http.Client
}

func NewPublic(target string) *Public {
	return &Public{
		Target:      normalizeTarget(target),
		GoogleURL:   googleGTXURL,
		MyMemoryURL: myMemoryURL,
		HTTP:        &http.Client{Timeout: translateClientTimeout},
	}
}

func (p *Public) Name() string { return "public" }

// TranslateBatch 逐条翻译；一条都没有翻译成功时返回错误
func (p *Public) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	var errs []error
	translated := 0
	for i, text := range texts {
		out[i] = text
		if alreadyInTarget(text, p.target()) {
			translated++
			continue
		}
		if s, err := p.translateOne(ctx, text); err == nil {
			out[i] = s
			translated++
		} else {
			errs = append(errs, err)
		}
	}
	if translated == 0 && len(texts) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// translateOne 依次尝试 Google Translate 直接 API → MyMemory
func (p *Public) translateOne(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if rs := []rune(text); len(rs) > translateMaxLen {
		text = string(rs[:translateMaxLen])
	}
	out, _, err := collector.FirstSuccess(ctx,
		collector.Provider[string]{Name: "google-gtx", Fetch: func(ctx context.Context) (string, error) {
			return p.viaGoogle(ctx, text)
		}},
		collector.Provider[string]{Name: "mymemory", Fetch: func(ctx context.Context) (string, error) {
			return p.viaMyMemory(ctx, text)
		}},
	)
	return out, err
}

// viaGoogle 使用 Google Translate 公开 API（client=gtx，无需 TKK/密钥）
func (p *Public) viaGoogle(ctx context.Context, text string) (string, error) {
	params := url.Values{
		"client": {"gtx"},
		"sl":     {"auto"},
		"tl":     {p.target()},
		"dt":     {"t"},
		"q":      {text},
	}
	body, err := p.get(ctx, p.GoogleURL+"?"+params.Encode())
	if err != nil {
		log.Printf("translate (google-gtx): %v", err)
		return "", err
	}

	// 响应格式: [[["译文","原文",...],...],...]
	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("%w: google-gtx decode: %w", collector.ErrDataShape, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: google-gtx empty response", collector.ErrDataShape)
	}
	outer, ok := raw[0].([]any)
	if !ok {
		return "", fmt.Errorf("%w: google-gtx unexpected shape", collector.ErrDataShape)
	}
	var result strings.Builder
	for _, seg := range outer {
		pair, ok := seg.([]any)
		if !ok || len(pair) < 1 {
			continue
		}
		if s, ok := pair[0].(string); ok {
			result.WriteString(s)
		}
	}
	s := strings.TrimSpace(result.String())
	if s == "" {
		return "", fmt.Errorf("%w: google-gtx empty translation", collector.ErrDataShape)
	}
	return s, nil
}

func (p *Public) viaMyMemory(ctx context.Context, text string) (string, error) {
	params := url.Values{
		"langpair": {sourceLangForMyMemory(text) + "|" + p.target()},
		"q":        {text},
	}
	body, err := p.get(ctx, p.MyMemoryURL+"?"+params.Encode())
	if err != nil {
		log.Printf("translate (mymemory): %v", err)
		return "", err
	}
	var out struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: mymemory decode: %w", collector.ErrDataShape, err)
	}
	s := strings.TrimSpace(out.ResponseData.TranslatedText)
	if s == "" {
		return "", fmt.Errorf("%w: mymemory empty translation", collector.ErrDataShape)
	}
	return s, nil
}

func (p *Public) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", collector.ErrNetwork, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	client := p.HTTP
	if client == nil {
		client = &http.Client{Timeout: translateClientTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", collector.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, translateMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", collector.ErrNetwork, err)
	}
	return body, nil
}

func (p *Public) target() string {
	if p.Target == "" {
		return DefaultTarget
	}
	return p.Target
}

// alreadyInTarget 判断文本是否已经主要由目标语言文字组成，是则无需翻译
func alreadyInTarget(s, target string) bool {
	switch target {
	case "ko":
		return isMostly(s, isHangul)
	case "zh", "zh-CN", "zh-TW":
		return isMostly(s, isCJK)
	default:
		return strings.TrimSpace(s) == ""
	}
}

func isMostly(s string, match func(rune) bool) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	var hit, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if match(r) {
			hit++
		}
	}
	if total == 0 {
		return true
	}
	return hit >= 1 && (hit*4 >= total || hit >= 2)
}

func isHangul(r rune) bool {
	return unicode.Is(unicode.Hangul, r)
}

func isCJK(r rune) bool {
	if r >= 0x4e00 && r <= 0x9fff {
		return true
	}
	if r >= 0x3400 && r <= 0x4dbf {
		return true
	}
	if r >= 0x3000 && r <= 0x303f {
		return true
	}
	return false
}

func sourceLangForMyMemory(s string) string {
	for _, r := range s {
		if r >= 0x3040 && r <= 0x309f || r >= 0x30a0 && r <= 0x30ff {
			return "ja"
		}
	}
	return "en"
}
