package collector

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/gocolly/colly/v2"
)

const (
	rssMaxItems      = 30
	rssClientTimeout = 10 * time.Second
	// UnknownHoursAgo 发布时间缺失时使用的哨兵值，排序时视为最旧
	UnknownHoursAgo = 999.0
	// RFC-822 日期只取前 25 个字符，时区一律按 UTC 处理
	pubDatePrefixLen = 25
)

var pubDateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05",
	"Mon, _2 Jan 2006 15:04:05",
}

// RSSFetcher 抓取一个 RSS 2.0 源
type RSSFetcher struct {
	URL      string
	Source   string
	MaxItems int
	Now      func() time.Time
}

func NewRSSFetcher(feedURL, source string) *RSSFetcher {
	return &RSSFetcher{URL: feedURL, Source: source, MaxItems: rssMaxItems, Now: time.Now}
}

func (r *RSSFetcher) Name() string {
	return "rss:" + r.Source
}

// ctxTransport 把调用方的 ctx 绑定到 colly 发出的每个请求上
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (r *RSSFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: rss %s: %w", ErrNetwork, r.Source, err)
	}
	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"),
	)
	c.SetRequestTimeout(rssClientTimeout)
	c.WithTransport(ctxTransport{ctx: ctx, base: http.DefaultTransport})
	c.OnRequest(func(req *colly.Request) {
		if ctx.Err() != nil {
			req.Abort()
		}
	})

	var body []byte
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
	})

	if err := c.Visit(r.URL); err != nil {
		return nil, fmt.Errorf("%w: rss %s: %w", ErrNetwork, r.Source, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: rss %s: %w", ErrNetwork, r.Source, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: rss %s: empty body", ErrDataShape, r.Source)
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	max := r.MaxItems
	if max <= 0 {
		max = rssMaxItems
	}
	items, err := ParseFeed(body, r.Source, now, max)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		log.Printf("rss %s: got 0 items", r.Source)
	}
	return items, nil
}

// ParseFeed 解析 RSS 文本中的 <item>，最多取 limit 条；标题为空的条目跳过。
// 严格解析失败时先修复实体再解析一次，避免一个坏字符丢掉整个源。
func ParseFeed(body []byte, source string, now time.Time, limit int) ([]NewsItem, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		var rerr error
		doc, rerr = xmlquery.Parse(bytes.NewReader(repairEntities(body)))
		if rerr != nil {
			return nil, fmt.Errorf("%w: rss %s: %w", ErrParse, source, err)
		}
		log.Printf("rss %s: recovered malformed feed: %v", source, err)
	}

	nodes := xmlquery.Find(doc, "//item")
	items := make([]NewsItem, 0, len(nodes))
	for _, n := range nodes {
		if limit > 0 && len(items) >= limit {
			break
		}
		title := CleanTitle(childText(n, "title"))
		if title == "" {
			continue
		}
		item := NewsItem{
			Title:    title,
			URL:      strings.TrimSpace(childText(n, "link")),
			Source:   source,
			HoursAgo: UnknownHoursAgo,
		}
		if pub, ok := ParsePubDate(childText(n, "pubDate")); ok {
			item.PublishedAt = pub
			item.HoursAgo = now.UTC().Sub(pub).Hours()
		}
		items = append(items, item)
	}
	return items, nil
}

// ParsePubDate 解析 RFC-822 风格日期的前 25 个字符，按 UTC 处理
func ParsePubDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) > pubDatePrefixLen {
		s = s[:pubDatePrefixLen]
	}
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var (
	cdataRe  = regexp.MustCompile(`(?s)<!\[CDATA\[.*?\]\]>`)
	entityRe = regexp.MustCompile(`&(#[0-9]+;|#[xX][0-9a-fA-F]+;|[A-Za-z][A-Za-z0-9]*;)?`)
)

// repairEntities 转义裸 &，并把 HTML 命名实体（如 &nbsp;）换成对应字符；CDATA 内容不动
func repairEntities(body []byte) []byte {
	var out bytes.Buffer
	last := 0
	for _, loc := range cdataRe.FindAllIndex(body, -1) {
		out.Write(fixEntities(body[last:loc[0]]))
		out.Write(body[loc[0]:loc[1]])
		last = loc[1]
	}
	out.Write(fixEntities(body[last:]))
	return out.Bytes()
}

func fixEntities(b []byte) []byte {
	return entityRe.ReplaceAllFunc(b, func(m []byte) []byte {
		ref := string(m)
		switch {
		case ref == "&":
			return []byte("&amp;")
		case ref == "&amp;", ref == "&lt;", ref == "&gt;", ref == "&quot;", ref == "&apos;",
			strings.HasPrefix(ref, "&#"):
			return m
		}
		if s := html.UnescapeString(ref); s != ref {
			return []byte(html.EscapeString(s))
		}
		return []byte("&amp;" + ref[1:])
	})
}

// CleanTitle 解码转义字符并去掉标题里的 HTML 标记
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func childText(n *xmlquery.Node, name string) string {
	child := n.SelectElement(name)
	if child == nil {
		return ""
	}
	return child.InnerText()
}
