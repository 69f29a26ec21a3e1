package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestScoreAtZeroDistance 测试距离为0时得满分
func TestScoreAtZeroDistance(t *testing.T) {
	assert.Equal(t, float64(100), Score(0))
}

// TestScoreMonotonicDecreasing 测试得分随距离严格递减且恒为正
func TestScoreMonotonicDecreasing(t *testing.T) {
	distances := []float64{0, 0.1, 0.5, 1, 2, 10, 100, 10000}
	prev := 101.0
	for _, d := range distances {
		s := Score(d)
		assert.Less(t, s, prev, "距离 %v 的得分应低于更近的邻居", d)
		assert.Greater(t, s, float64(0), "得分必须保持为正, 距离 %v", d)
		prev = s
	}

	assert.InDelta(t, 50.0, Score(1), 1e-9)
	assert.InDelta(t, 100.0/3.0, Score(2), 1e-9)
}

// TestScoreNegativeDistanceClamped 测试负距离按0处理
func TestScoreNegativeDistanceClamped(t *testing.T) {
	assert.Equal(t, float64(100), Score(-0.5))
}

// TestRound2 测试百分比保留两位小数
func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, Round2(100.0/3.0))
	assert.Equal(t, 66.67, Round2(200.0/3.0))
	assert.Equal(t, 100.0, Round2(100.0))
}

// TestRankAndFilter 测试按得分降序排列并按阈值过滤
func TestRankAndFilter(t *testing.T) {
	scored := ScoreNeighbors([]Neighbor{
		{Position: 0, Distance: 4},   // 20%
		{Position: 1, Distance: 0},   // 100%
		{Position: 2, Distance: 1},   // 50%
		{Position: 3, Distance: 0.5}, // 66.67%
	})

	ranked := RankAndFilter(scored, 30)
	if assert.Len(t, ranked, 3) {
		assert.Equal(t, 1, ranked[0].Position)
		assert.Equal(t, 3, ranked[1].Position)
		assert.Equal(t, 2, ranked[2].Position)
	}
}

// TestRankAndFilterZeroThreshold 测试阈值为0时不过滤任何结果
func TestRankAndFilterZeroThreshold(t *testing.T) {
	scored := ScoreNeighbors([]Neighbor{
		{Position: 0, Distance: 100},
		{Position: 1, Distance: 1},
	})

	ranked := RankAndFilter(scored, 0)
	assert.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Position)
}

// TestRankAndFilterAllBelowThreshold 测试全部低于阈值时返回空切片
func TestRankAndFilterAllBelowThreshold(t *testing.T) {
	scored := ScoreNeighbors([]Neighbor{{Position: 0, Distance: 99}})
	ranked := RankAndFilter(scored, 50)
	assert.Empty(t, ranked)
}
