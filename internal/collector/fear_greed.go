package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	alternativeFNGURL  = "https://api.alternative.me/fng/?limit=1"
	cnnFearGreedURL    = "https://production.dataviz.cnn.io/index/fearandgreed/graphdata"
	fearGreedTimeout   = 10 * time.Second
	extractorTimeout   = 30 * time.Second
	extractorMaxChars  = 20000
	cnnFearGreedPath   = "fear_and_greed"
	sentimentSourceCNN = "CNN"
	sentimentSourceFNG = "Crypto (Alternative.me)"
	sentimentUnknown   = "Unknown"
)

// SentimentScore 恐惧贪婪指数
type SentimentScore struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	Label          string `json:"label"`
	Source         string `json:"source"`
	Provider       string `json:"provider,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorKind      string `json:"errorKind,omitempty"`
}

// 展示用标签（韩文 + 表情）
var sentimentLabels = map[string]string{
	"extreme fear":  "극도의 공포 😱",
	"fear":          "공포 😨",
	"neutral":       "중립 😐",
	"greed":         "탐욕 🤑",
	"extreme greed": "극도의 탐욕 🚀",
}

// SentimentLabel 将英文分类映射为展示标签，未知分类原样返回
func SentimentLabel(classification string) string {
	if l, ok := sentimentLabels[strings.ToLower(strings.TrimSpace(classification))]; ok {
		return l
	}
	return classification
}

// FearGreedClient 拉取股票（CNN）与加密货币（Alternative.me）两个恐惧贪婪指数。
// CNN 接口经常拒绝非浏览器请求，ExtractorURL 非空时会退回到无头浏览器抽取服务。
type FearGreedClient struct {
	AlternativeURL string
	CNNURL         string
	ExtractorURL   string
	HTTP           *http.Client
	ExtractorHTTP  *http.Client
}

func NewFearGreedClient(extractorURL string) *FearGreedClient {
	return &FearGreedClient{
		AlternativeURL: alternativeFNGURL,
		CNNURL:         cnnFearGreedURL,
		ExtractorURL:   extractorURL,
		HTTP:           &http.Client{Timeout: fearGreedTimeout},
		ExtractorHTTP:  &http.Client{Timeout: extractorTimeout},
	}
}

// Crypto 加密货币恐惧贪婪指数
func (c *FearGreedClient) Crypto(ctx context.Context) SentimentScore {
	var resp struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := getJSON(ctx, c.client(), c.AlternativeURL, nil, &resp); err != nil {
		log.Printf("fear&greed: crypto: %v", err)
		return failedSentiment(sentimentSourceFNG, err)
	}
	if len(resp.Data) == 0 {
		return failedSentiment(sentimentSourceFNG, fmt.Errorf("%w: empty data", ErrDataShape))
	}
	item := resp.Data[0]
	v, err := strconv.Atoi(strings.TrimSpace(item.Value))
	if err != nil {
		return failedSentiment(sentimentSourceFNG, fmt.Errorf("%w: value %q", ErrDataShape, item.Value))
	}
	cls := item.ValueClassification
	if cls == "" {
		cls = sentimentUnknown
	}
	return SentimentScore{
		Value:          v,
		Classification: cls,
		Label:          SentimentLabel(cls),
		Source:         sentimentSourceFNG,
		Provider:       "alternative.me",
	}
}

type cnnFearGreed struct {
	Score  *float64 `json:"score"`
	Rating string   `json:"rating"`
}

type cnnGraphData struct {
	FearAndGreed *cnnFearGreed `json:"fear_and_greed"`
}

// Stock 股票市场恐惧贪婪指数：CNN 直连 → 浏览器抽取
func (c *FearGreedClient) Stock(ctx context.Context) SentimentScore {
	providers := []Provider[cnnGraphData]{
		{Name: "cnn", Fetch: c.cnnDirect},
	}
	if c.ExtractorURL != "" {
		providers = append(providers, Provider[cnnGraphData]{Name: "browser", Fetch: c.cnnViaBrowser})
	}

	data, provider, err := FirstSuccess(ctx, providers...)
	if err != nil {
		log.Printf("fear&greed: stock: %v", err)
		return failedSentiment(sentimentSourceCNN, err)
	}
	fg := data.FearAndGreed
	rating := fg.Rating
	if rating == "" {
		rating = sentimentUnknown
	}
	return SentimentScore{
		Value:          int(math.Round(*fg.Score)),
		Classification: rating,
		Label:          SentimentLabel(rating),
		Source:         sentimentSourceCNN,
		Provider:       provider,
	}
}

func (c *FearGreedClient) cnnDirect(ctx context.Context) (cnnGraphData, error) {
	var data cnnGraphData
	header := http.Header{"Referer": {"https://edition.cnn.com/"}}
	if err := getJSON(ctx, c.client(), c.CNNURL, header, &data); err != nil {
		return data, err
	}
	return data, validateCNN(data)
}

type extractRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars"`
	JSONPath string `json:"jsonPath,omitempty"`
}

type extractResponse struct {
	OK        bool   `json:"ok"`
	Text      string `json:"text,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// cnnViaBrowser 让无头浏览器打开 JSON 接口，只取回 fear_and_greed 子对象。
// 完整的 graphdata 远超抽取服务的长度上限。
func (c *FearGreedClient) cnnViaBrowser(ctx context.Context) (cnnGraphData, error) {
	var data cnnGraphData
	client := c.ExtractorHTTP
	if client == nil {
		client = &http.Client{Timeout: extractorTimeout}
	}
	endpoint := strings.TrimRight(c.ExtractorURL, "/") + "/extract"

	var out extractResponse
	req := extractRequest{URL: c.CNNURL, MaxChars: extractorMaxChars, JSONPath: cnnFearGreedPath}
	if err := postJSON(ctx, client, endpoint, req, &out); err != nil {
		return data, err
	}
	if !out.OK {
		return data, fmt.Errorf("%w: extractor: %s", ErrNetwork, out.Error)
	}
	if out.Truncated {
		return data, fmt.Errorf("%w: extractor text truncated", ErrDataShape)
	}
	text := strings.TrimSpace(out.Text)
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&raw); err != nil {
		return data, fmt.Errorf("%w: extractor text: %w", ErrDataShape, err)
	}
	// 抽取服务不支持 jsonPath 时返回的是整份 graphdata
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("%w: extractor text: %w", ErrDataShape, err)
	}
	if data.FearAndGreed == nil {
		var fg cnnFearGreed
		if err := json.Unmarshal(raw, &fg); err == nil && fg.Score != nil {
			data.FearAndGreed = &fg
		}
	}
	return data, validateCNN(data)
}

func validateCNN(data cnnGraphData) error {
	if data.FearAndGreed == nil || data.FearAndGreed.Score == nil || !isFinite(*data.FearAndGreed.Score) {
		return fmt.Errorf("%w: missing fear_and_greed.score", ErrDataShape)
	}
	return nil
}

func failedSentiment(source string, err error) SentimentScore {
	return SentimentScore{
		Classification: sentimentUnknown,
		Source:         source,
		Error:          errorMessage(err),
		ErrorKind:      ErrorKind(err),
	}
}

func (c *FearGreedClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: fearGreedTimeout}
}
