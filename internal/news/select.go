package news

import "sort"

// Policy 选取规则：先取最新的 Breaking 条作为速报，再按分类配额选取，不足 Total 时用剩余条目补齐
type Policy struct {
	Total    int
	Breaking int
	Quotas   map[Category]int
}

// DefaultPolicy 速报 2、宏观 2、指数 3、个股 3，共 10 条
func DefaultPolicy() Policy {
	return Policy{
		Total:    10,
		Breaking: 2,
		Quotas: map[Category]int{
			CategoryMacro: 2,
			CategoryIndex: 3,
			CategoryStock: 3,
		},
	}
}

// Dedup 按标题完全匹配去重，保留第一次出现的条目
func Dedup(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Title]; ok {
			continue
		}
		seen[it.Title] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Select 从已去重的候选池中选出最终列表，结果按 HoursAgo 升序排列，长度不超过 Total
func Select(pool []Item, p Policy) []Item {
	if p.Total <= 0 {
		return nil
	}
	all := make([]Item, len(pool))
	copy(all, pool)
	sortByRecency(all)

	breaking := min(p.Breaking, len(all))
	if breaking < 0 {
		breaking = 0
	}
	final := make([]Item, 0, p.Total)
	final = append(final, all[:breaking]...)

	buckets := make(map[Category][]Item, len(categoryOrder))
	for _, it := range all[breaking:] {
		buckets[it.Category] = append(buckets[it.Category], it)
	}

	for _, c := range categoryOrder {
		n := min(p.Quotas[c], len(buckets[c]))
		if n <= 0 {
			continue
		}
		final = append(final, buckets[c][:n]...)
		buckets[c] = buckets[c][n:]
	}

	if len(final) < p.Total {
		var rem []Item
		for _, c := range categoryOrder {
			rem = append(rem, buckets[c]...)
		}
		sortByRecency(rem)
		final = append(final, rem[:min(p.Total-len(final), len(rem))]...)
	}

	sortByRecency(final)
	if len(final) > p.Total {
		final = final[:p.Total]
	}
	return final
}

func sortByRecency(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].HoursAgo < items[j].HoursAgo
	})
}
