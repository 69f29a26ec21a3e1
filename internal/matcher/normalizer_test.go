package matcher

import (
	"strings"
	"testing"

	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeUsesSummaryVerbatim 测试摘要足够长时直接使用原文
func TestNormalizeUsesSummaryVerbatim(t *testing.T) {
	candidate := &types.CandidateRecord{
		CandidateID: "cand-1",
		Summary:     "  Senior backend engineer with ten years of Go experience.  ",
		Skills:      []string{"Go", "Kubernetes"},
	}

	text := Normalize(candidate)
	assert.Equal(t, "Senior backend engineer with ten years of Go experience.", text)
	assert.NotContains(t, text, "Skills:")
}

// TestNormalizeShortSummaryFallsBack 测试摘要过短时回退到结构化拼接
func TestNormalizeShortSummaryFallsBack(t *testing.T) {
	candidate := &types.CandidateRecord{
		CandidateID: "cand-2",
		Summary:     "n/a",
		Names:       []string{"Alice Zhang"},
		Skills:      []string{"Go", "Kubernetes"},
		Experience: []types.ExperienceEntry{
			{Position: "Platform Engineer", Company: "Acme"},
		},
		Education: []types.EducationEntry{
			{Institution: "MIT", DegreeType: "BSc"},
		},
	}

	text := Normalize(candidate)
	assert.Contains(t, text, "Name: Alice Zhang")
	assert.Contains(t, text, "Skills: Go, Kubernetes")
	assert.Contains(t, text, "Experience: Platform Engineer at Acme")
	assert.Contains(t, text, "Education: BSc, MIT")

	// 子句顺序固定: 姓名在前, 教育在后
	assert.Less(t, strings.Index(text, "Name:"), strings.Index(text, "Skills:"))
	assert.Less(t, strings.Index(text, "Skills:"), strings.Index(text, "Experience:"))
	assert.Less(t, strings.Index(text, "Experience:"), strings.Index(text, "Education:"))
}

// TestNormalizeCapsListFields 测试技能和经历的数量上限
func TestNormalizeCapsListFields(t *testing.T) {
	candidate := &types.CandidateRecord{
		CandidateID: "cand-3",
		Skills: []string{
			"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11", "s12",
		},
	}

	text := Normalize(candidate)
	assert.Contains(t, text, "s10")
	assert.NotContains(t, text, "s11")
}

// TestNormalizeEmptyRecordUsesPlaceholder 测试完全空记录返回占位文本
func TestNormalizeEmptyRecordUsesPlaceholder(t *testing.T) {
	candidate := &types.CandidateRecord{CandidateID: "cand-4"}

	text := Normalize(candidate)
	assert.Equal(t, "no information available", text)
	assert.NotEmpty(t, text)
}

// TestNormalizeDeterministic 测试同一记录两次归一化结果一致
func TestNormalizeDeterministic(t *testing.T) {
	candidate := &types.CandidateRecord{
		CandidateID: "cand-5",
		Names:       []string{"Bob"},
		Skills:      []string{"Python", "SQL"},
	}

	assert.Equal(t, Normalize(candidate), Normalize(candidate))
}
