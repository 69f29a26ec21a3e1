package matcher

import (
	"math"
	"sort"
)

// ScoredNeighbor 带匹配百分比的最近邻结果
type ScoredNeighbor struct {
	Position int
	Distance float64
	Percent  float64 // 全精度百分比，展示前再做舍入
}

// Score 将平方欧氏距离映射为 (0,100] 的匹配百分比。
// 距离0对应100%，距离越大百分比渐近趋向0但永不为0。
// 该映射是固定的归一化约定，并非对命中率的标定。
func Score(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 100 / (1 + distance)
}

// Round2 四舍五入到两位小数，用于展示和存储
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ScoreNeighbors 为一组最近邻计算匹配百分比，保持输入顺序
func ScoreNeighbors(neighbors []Neighbor) []ScoredNeighbor {
	scored := make([]ScoredNeighbor, len(neighbors))
	for i, n := range neighbors {
		scored[i] = ScoredNeighbor{
			Position: n.Position,
			Distance: n.Distance,
			Percent:  Score(n.Distance),
		}
	}
	return scored
}

// RankAndFilter 过滤低于minScore的结果并按百分比降序排列。
// 排序是稳定的：百分比相同的结果保持索引返回的相对顺序。
// 排序比较使用全精度百分比，舍入只发生在展示层。
func RankAndFilter(scored []ScoredNeighbor, minScore float64) []ScoredNeighbor {
	kept := make([]ScoredNeighbor, 0, len(scored))
	for _, s := range scored {
		if s.Percent < minScore {
			continue
		}
		kept = append(kept, s)
	}

	sort.SliceStable(kept, func(a, b int) bool {
		return kept[a].Percent > kept[b].Percent
	})
	return kept
}
