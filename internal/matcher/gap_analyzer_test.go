package matcher

import (
	"strings"
	"testing"

	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
)

// TestMissingQualificationsBasic 测试出现在查询中但候选人不具备的技能被识别
func TestMissingQualificationsBasic(t *testing.T) {
	g := NewGapAnalyzer(nil)

	missing := g.MissingQualifications(
		"Looking for a Python engineer with Docker and Kubernetes experience",
		[]string{"Docker", "Java"},
	)

	assert.Contains(t, missing, "Python")
	assert.Contains(t, missing, "Kubernetes")
	assert.NotContains(t, missing, "Docker")
	assert.NotContains(t, missing, "Java")
}

// TestMissingQualificationsCaseInsensitive 测试比对大小写不敏感
func TestMissingQualificationsCaseInsensitive(t *testing.T) {
	g := NewGapAnalyzer([]string{"python", "rust"})

	missing := g.MissingQualifications("PYTHON and RUST wanted", []string{"pYtHoN"})
	assert.Equal(t, []string{"Rust"}, missing)
}

// TestMissingQualificationsCap 测试缺失技能最多返回5条
func TestMissingQualificationsCap(t *testing.T) {
	vocabulary := []string{"a1", "b2", "c3", "d4", "e5", "f6", "g7"}
	g := NewGapAnalyzer(vocabulary)

	missing := g.MissingQualifications("a1 b2 c3 d4 e5 f6 g7", nil)
	assert.Len(t, missing, 5)
	// 截断保留词汇表前5条, 顺序不变
	assert.Equal(t, []string{"A1", "B2", "C3", "D4", "E5"}, missing)
}

// TestMissingQualificationsVocabularyOnly 测试词汇表之外的词不会出现在结果中
func TestMissingQualificationsVocabularyOnly(t *testing.T) {
	g := NewGapAnalyzer([]string{"python"})

	missing := g.MissingQualifications("需要 blockchain 与 quantum 经验", []string{})
	assert.Empty(t, missing)
}

// TestMissingQualificationsEmptyQuery 测试空查询文本返回空结果
func TestMissingQualificationsEmptyQuery(t *testing.T) {
	g := NewGapAnalyzer(nil)
	assert.Empty(t, g.MissingQualifications("   ", []string{"Go"}))
}

// TestExplainVeryHighTier 测试高匹配度的说明分层与子句拼接
func TestExplainVeryHighTier(t *testing.T) {
	g := NewGapAnalyzer(nil)
	candidate := &types.CandidateRecord{
		Names:  []string{"Alice Zhang"},
		Skills: []string{"Go", "Kubernetes", "SQL", "Redis"},
		Experience: []types.ExperienceEntry{
			{Position: "Platform Engineer", Company: "Acme"},
			{Position: "SRE", Company: "Beta"},
			{Position: "Intern", Company: "Gamma"},
		},
	}

	explanation := g.Explain(92.5, []string{"Python", "Django", "Aws", "Terraform"}, candidate)

	assert.True(t, strings.HasPrefix(explanation, "very high fit (92.50%)"), explanation)
	assert.Contains(t, explanation, "Alice Zhang")
	// 技能最多3项
	assert.Contains(t, explanation, "skills: Go, Kubernetes, SQL")
	assert.NotContains(t, explanation, "Redis")
	// 经历最多2项
	assert.Contains(t, explanation, "recent roles: Platform Engineer, SRE")
	assert.NotContains(t, explanation, "Intern")
	// 缺失技能最多3项
	assert.Contains(t, explanation, "missing: Python, Django, Aws")
	assert.NotContains(t, explanation, "Terraform")
}

// TestExplainTierBoundaries 测试分层阈值的边界取值
func TestExplainTierBoundaries(t *testing.T) {
	g := NewGapAnalyzer(nil)

	assert.Contains(t, g.Explain(80, nil, nil), "very high fit")
	assert.NotContains(t, g.Explain(79.99, nil, nil), "very high fit")
	assert.Contains(t, g.Explain(79.99, nil, nil), "high fit")
	assert.Contains(t, g.Explain(60, nil, nil), "high fit")
	assert.Contains(t, g.Explain(40, nil, nil), "moderate fit")
	assert.Contains(t, g.Explain(39.99, nil, nil), "low fit")
}

// TestExplainSparseCandidate 测试字段残缺的候选人仍能生成说明
func TestExplainSparseCandidate(t *testing.T) {
	g := NewGapAnalyzer(nil)

	explanation := g.Explain(12.34, nil, &types.CandidateRecord{})
	assert.Equal(t, "low fit (12.34%)", explanation)
	assert.NotContains(t, explanation, "|")
}
