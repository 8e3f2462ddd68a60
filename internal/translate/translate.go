package translate

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/LJTian/MarketEye/internal/collector"
)

// DefaultTarget 默认翻译成韩文
const DefaultTarget = "ko"

// Strategy 一种批量翻译方式；成功时返回的切片必须与输入一一对应
type Strategy interface {
	Name() string
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
}

// Translator 依次尝试各个 Strategy，第一个成功的结果生效。
// Translate 永远返回与输入等长、同序的切片，任何失败都退回原文。
type Translator struct {
	strategies []Strategy
}

func New(strategies ...Strategy) *Translator {
	return &Translator{strategies: strategies}
}

// NewDefault 按配置组装：有 Gemini 密钥时先走 JSON 模式，再走纯文本模式，最后逐条公开接口
func NewDefault(geminiKey, geminiModel, target string) *Translator {
	target = normalizeTarget(target)
	var s []Strategy
	if strings.TrimSpace(geminiKey) != "" {
		s = append(s,
			NewGemini(geminiKey, geminiModel, target, true),
			NewGemini(geminiKey, geminiModel, target, false),
		)
	}
	s = append(s, NewPublic(target))
	return New(s...)
}

func (t *Translator) Translate(ctx context.Context, texts []string) []string {
	out := make([]string, len(texts))
	copy(out, texts)
	if t == nil || len(t.strategies) == 0 || len(texts) == 0 {
		return out
	}

	providers := make([]collector.Provider[[]string], 0, len(t.strategies))
	for _, s := range t.strategies {
		strategy := s
		providers = append(providers, collector.Provider[[]string]{
			Name: strategy.Name(),
			Fetch: func(ctx context.Context) ([]string, error) {
				res, err := strategy.TranslateBatch(ctx, texts)
				if err != nil {
					return nil, err
				}
				if len(res) != len(texts) {
					return nil, fmt.Errorf("%w: got %d items, want %d", collector.ErrDataShape, len(res), len(texts))
				}
				return res, nil
			},
		})
	}

	res, name, err := collector.FirstSuccess(ctx, providers...)
	if err != nil {
		log.Printf("translate: all strategies failed, keeping original text: %v", err)
		return out
	}
	for i, s := range res {
		if s = strings.TrimSpace(s); s != "" {
			out[i] = s
		}
	}
	log.Printf("translate: %d items via %s", len(texts), name)
	return out
}

func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", collector.ErrAuth, code)
	case code != http.StatusOK:
		return fmt.Errorf("%w: status %d", collector.ErrNetwork, code)
	}
	return nil
}

func normalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return DefaultTarget
	}
	return target
}

var targetNames = map[string]string{
	"ko":    "Korean",
	"en":    "English",
	"ja":    "Japanese",
	"zh":    "Simplified Chinese",
	"zh-CN": "Simplified Chinese",
	"zh-TW": "Traditional Chinese",
}

func targetName(target string) string {
	if n, ok := targetNames[target]; ok {
		return n
	}
	return target
}
