package matcher

import (
	"fmt"
	"strings"
	"unicode"

	"talent-match-go/internal/types"
)

const maxMissingSkills = 5

// 匹配度分层阈值
const (
	tierVeryHigh = 80
	tierHigh     = 60
	tierModerate = 40
)

// DefaultSkillVocabulary 是内置的技术词汇表，作为未配置词汇表时的默认值。
// 词汇表是封闭的枚举列表，遍历顺序即缺失技能的输出顺序。
var DefaultSkillVocabulary = []string{
	// 编程语言
	"python", "java", "javascript", "typescript", "c++", "c#", "php", "ruby",
	"go", "rust", "kotlin", "swift", "scala", "matlab",
	// Web技术
	"html", "css", "react", "angular", "vue", "node.js", "express", "django",
	"flask", "spring", "laravel",
	// 数据库
	"sql", "mysql", "postgresql", "mongodb", "oracle", "sqlite", "redis",
	"elasticsearch", "cassandra",
	// 云与DevOps
	"aws", "azure", "gcp", "docker", "kubernetes", "jenkins", "git",
	"terraform", "ansible",
	// 数据科学与AI
	"machine learning", "deep learning", "data science", "pandas", "numpy",
	"scikit-learn", "tensorflow", "pytorch", "nlp", "computer vision",
	// 方法论
	"agile", "scrum", "kanban", "devops", "ci/cd",
}

// GapAnalyzer 通过词法比对推导缺失技能，并生成人类可读的匹配说明。
// 词汇表在构造时固定；所有比对都是大小写不敏感的。
type GapAnalyzer struct {
	vocabulary []string // 原始词条，保持配置顺序
	folded     []string // 预先小写化的词条，与vocabulary一一对应
}

// NewGapAnalyzer 创建技能差距分析器。
// vocabulary 为空时使用 DefaultSkillVocabulary。
func NewGapAnalyzer(vocabulary []string) *GapAnalyzer {
	if len(vocabulary) == 0 {
		vocabulary = DefaultSkillVocabulary
	}
	folded := make([]string, len(vocabulary))
	for i, term := range vocabulary {
		folded[i] = strings.ToLower(strings.TrimSpace(term))
	}
	return &GapAnalyzer{vocabulary: vocabulary, folded: folded}
}

// MissingQualifications 返回出现在查询文本中、但候选人技能中没有的词汇表词条。
// 结果最多5条、已去重、首字母大写，顺序与词汇表遍历顺序一致。
func (g *GapAnalyzer) MissingQualifications(queryText string, candidateSkills []string) []string {
	query := strings.ToLower(queryText)
	if strings.TrimSpace(query) == "" {
		return nil
	}
	skills := strings.ToLower(strings.Join(candidateSkills, " "))

	missing := make([]string, 0, maxMissingSkills)
	seen := make(map[string]bool, maxMissingSkills)
	for i, term := range g.folded {
		if term == "" || seen[term] {
			continue
		}
		if !strings.Contains(query, term) {
			continue
		}
		if strings.Contains(skills, term) {
			continue
		}
		seen[term] = true
		missing = append(missing, titleCase(g.vocabulary[i]))
		if len(missing) == maxMissingSkills {
			break
		}
	}
	return missing
}

// Explain 生成一条以 " | " 分隔的匹配说明。
// 子句按固定顺序拼接，信息缺失的子句直接省略而不是留空；
// 对字段残缺的候选人档案，本函数总能产出结果而不会失败。
func (g *GapAnalyzer) Explain(matchPercentage float64, missingSkills []string, candidate *types.CandidateRecord) string {
	clauses := []string{tierLabel(matchPercentage)}

	if candidate != nil {
		if name := candidate.PrimaryName(); name != "" {
			clauses = append(clauses, name)
		}
		if skills := nonEmptyStrings(candidate.Skills, 3); len(skills) > 0 {
			clauses = append(clauses, "skills: "+strings.Join(skills, ", "))
		}
		if positions := recentPositions(candidate.Experience, 2); len(positions) > 0 {
			clauses = append(clauses, "recent roles: "+strings.Join(positions, ", "))
		}
	}

	if len(missingSkills) > 0 {
		limit := len(missingSkills)
		if limit > 3 {
			limit = 3
		}
		clauses = append(clauses, "missing: "+strings.Join(missingSkills[:limit], ", "))
	}

	return strings.Join(clauses, " | ")
}

// tierLabel 按固定阈值将匹配百分比映射为定性描述
func tierLabel(matchPercentage float64) string {
	switch {
	case matchPercentage >= tierVeryHigh:
		return fmt.Sprintf("very high fit (%.2f%%)", matchPercentage)
	case matchPercentage >= tierHigh:
		return fmt.Sprintf("high fit (%.2f%%)", matchPercentage)
	case matchPercentage >= tierModerate:
		return fmt.Sprintf("moderate fit (%.2f%%)", matchPercentage)
	default:
		return fmt.Sprintf("low fit (%.2f%%)", matchPercentage)
	}
}

// recentPositions 取前limit条经历的职位名，没有职位名的条目跳过
func recentPositions(entries []types.ExperienceEntry, limit int) []string {
	out := make([]string, 0, limit)
	for _, entry := range entries {
		position := strings.TrimSpace(entry.Position)
		if position == "" {
			continue
		}
		out = append(out, position)
		if len(out) == limit {
			break
		}
	}
	return out
}

// titleCase 将每个空格分隔的单词首字母大写，其余保持原样
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
