package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/LJTian/MarketEye/internal/collector"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/"
	DefaultGeminiModel = "gemini-2.0-flash"
	geminiTimeout      = 20 * time.Second
	insightJournalTail = 500
)

// Gemini 通过 genai SDK 调用 generateContent 批量翻译标题
type Gemini struct {
	APIKey string
	Model  string
	// BaseURL 为空时使用 SDK 默认地址
	BaseURL string
	Target  string
	// JSONMode 为 true 时要求接口直接返回 application/json
	JSONMode bool
	HTTP     *http.Client
}

func NewGemini(apiKey, model, target string, jsonMode bool) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		APIKey:   strings.TrimSpace(apiKey),
		Model:    model,
		BaseURL:  geminiBaseURL,
		Target:   normalizeTarget(target),
		JSONMode: jsonMode,
		HTTP:     &http.Client{Timeout: geminiTimeout},
	}
}

func (g *Gemini) Name() string {
	if g.JSONMode {
		return "gemini-json"
	}
	return "gemini-text"
}

func (g *Gemini) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	titles, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: encode titles: %w", collector.ErrDataShape, err)
	}
	prompt := fmt.Sprintf("Translate the following financial headlines to %s.\n"+
		"Summarize slightly. Keep the same order and the same number of items.\n"+
		"Return ONLY a raw JSON list of strings.\nInput: %s", targetName(g.Target), titles)

	var cfg *genai.GenerateContentConfig
	if g.JSONMode {
		cfg = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}
	text, err := g.generate(ctx, prompt, cfg)
	if err != nil {
		return nil, err
	}
	list, ok := ExtractStringList(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON string list in response", collector.ErrParse)
	}
	if len(list) != len(texts) {
		return nil, fmt.Errorf("%w: got %d items, want %d", collector.ErrDataShape, len(list), len(texts))
	}
	return list, nil
}

// Insight 根据泡菜溢价、汇率与投资日志生成一句话建议
func (g *Gemini) Insight(ctx context.Context, premium, fxRate float64, journal string) (string, error) {
	journal = strings.TrimSpace(journal)
	if utf8.RuneCountInString(journal) > insightJournalTail {
		rs := []rune(journal)
		journal = string(rs[len(rs)-insightJournalTail:])
	}
	if journal == "" {
		journal = "(없음)"
	}
	prompt := fmt.Sprintf("당신은 세계적인 투자 전략가입니다. 아래 정보를 바탕으로 간결하고 실행 가능한 한 줄 인사이트를 제공하세요.\n\n"+
		"**현재 시장 데이터:**\n- 김치프리미엄: %.2f%%\n- 원달러 환율: %.0f원\n\n"+
		"**사용자의 최근 투자 메모:**\n%s\n\n"+
		"**요청:**\n위 정보를 종합하여, 지금 시점에서 사용자가 주목해야 할 핵심 포인트를 이모지와 함께 한 줄(50자 이내)로 조언해 주세요.",
		premium, fxRate, journal)

	text, err := g.generate(ctx, prompt, &genai.GenerateContentConfig{
		MaxOutputTokens: 100,
		Temperature:     genai.Ptr[float32](0.7),
	})
	if err != nil {
		return "", err
	}
	return stripMarkdown(text), nil
}

func (g *Gemini) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	if g.APIKey == "" || g.APIKey == "None" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY not configured", collector.ErrAuth)
	}
	httpClient := g.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: geminiTimeout}
	}
	var opts genai.HTTPOptions
	if g.BaseURL != "" {
		opts.BaseURL = strings.TrimRight(g.BaseURL, "/") + "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: opts,
	})
	if err != nil {
		return "", fmt.Errorf("%w: init gemini client: %w", collector.ErrAuth, err)
	}
	model := g.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", geminiError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned empty text", collector.ErrDataShape)
	}
	return text, nil
}

// geminiError 按 HTTP 状态码归类 SDK 错误：401/403/429 视为鉴权或配额问题
func geminiError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	code := 0
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}
	if code != 0 {
		if se := statusError(code); se != nil {
			return fmt.Errorf("%w: %w", se, err)
		}
	}
	return fmt.Errorf("%w: gemini: %w", collector.ErrNetwork, err)
}

// stripMarkdown 去掉模型常见的代码块包裹
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
