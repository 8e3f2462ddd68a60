package news

import (
	"fmt"
	"strings"
)

const digestHeader = "### 📰 시장 뉴스 (실시간)"

// FormatDigest 生成 markdown 快讯
func FormatDigest(items []Item) string {
	lines := []string{digestHeader, ""}
	for i, it := range items {
		lines = append(lines,
			fmt.Sprintf("**%s [%s] %s** [🔗](%s)  \n&nbsp;&nbsp;&nbsp;&nbsp;%s", Badge(i, it), it.TimeLabel, it.Source, it.Link, it.DisplayTitle()),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// Badge 排名前两位且 3 小时内的为突发新闻
func Badge(rank int, it Item) string {
	if rank < 2 && it.HoursAgo < 3 {
		return "🔥"
	}
	return "📢"
}
