package translate

import (
	"encoding/json"
	"strings"
)

// ExtractStringList 从模型返回的文本中找出第一个合法的字符串数组。
// 容忍 markdown 代码块和前后说明文字；找不到时返回 false。
func ExtractStringList(text string) ([]string, bool) {
	for i := 0; i < len(text); i++ {
		j := strings.IndexByte(text[i:], '[')
		if j < 0 {
			return nil, false
		}
		i += j
		var list []string
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&list); err == nil && list != nil {
			return list, true
		}
	}
	return nil, false
}
