package news

import "strings"

// Category 新闻分类，数值即配额阶段的处理顺序
type Category int

const (
	CategoryMacro Category = 1
	CategoryIndex Category = 2
	CategoryStock Category = 3
)

var categoryOrder = []Category{CategoryMacro, CategoryIndex, CategoryStock}

func (c Category) String() string {
	switch c {
	case CategoryMacro:
		return "MACRO"
	case CategoryIndex:
		return "INDEX"
	case CategoryStock:
		return "STOCK"
	default:
		return "UNKNOWN"
	}
}

// 宏观关键词优先于指数关键词匹配
var (
	macroKeywords = []string{
		"fed", "rate", "inflation", "cpi", "gdp", "job", "economy", "recession",
		"policy", "treasury", "yield", "war", "oil", "gold", "금리", "물가", "연준",
	}
	indexKeywords = []string{
		"s&p", "nasdaq", "dow", "market", "stocks", "rally", "crash", "bull", "bear",
		"index", "kospi", "kosdaq", "지수", "증시", "상승", "하락", "futures",
	}
)

// Classify 按标题关键词（不区分大小写的子串匹配）归类，都不命中时归为 STOCK
func Classify(title string) Category {
	t := strings.ToLower(title)
	if containsAny(t, macroKeywords) {
		return CategoryMacro
	}
	if containsAny(t, indexKeywords) {
		return CategoryIndex
	}
	return CategoryStock
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
