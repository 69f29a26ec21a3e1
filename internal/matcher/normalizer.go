package matcher

import (
	"strings"
	"unicode/utf8"

	"talent-match-go/internal/types"
)

const (
	// minSummaryLength 摘要文本的最小有效长度（字符数），低于该值时回退到结构化字段
	minSummaryLength = 10

	// placeholderText 候选人完全没有可用信息时的占位文本
	placeholderText = "no information available"

	maxFallbackSkills     = 10
	maxFallbackExperience = 3
	maxFallbackEducation  = 2
)

// Normalize 将候选人档案归一化为一段可向量化的描述文本。
// 优先使用自由文本摘要；摘要缺失或过短时，按固定顺序从结构化字段合成。
// 该函数永远不会失败：任何字段缺失只会导致对应子句被省略。
func Normalize(candidate *types.CandidateRecord) string {
	if candidate == nil {
		return placeholderText
	}

	summary := strings.TrimSpace(candidate.Summary)
	if utf8.RuneCountInString(summary) >= minSummaryLength {
		return summary
	}

	var clauses []string

	if name := candidate.PrimaryName(); name != "" {
		clauses = append(clauses, "Name: "+name)
	}

	if skills := nonEmptyStrings(candidate.Skills, maxFallbackSkills); len(skills) > 0 {
		clauses = append(clauses, "Skills: "+strings.Join(skills, ", "))
	}

	if exp := experienceClauses(candidate.Experience); len(exp) > 0 {
		clauses = append(clauses, "Experience: "+strings.Join(exp, ", "))
	}

	if edu := educationClauses(candidate.Education); len(edu) > 0 {
		clauses = append(clauses, "Education: "+strings.Join(edu, ", "))
	}

	if len(clauses) == 0 {
		return placeholderText
	}
	return strings.Join(clauses, "; ")
}

// nonEmptyStrings 过滤空白字符串并截断到limit个
func nonEmptyStrings(values []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

func experienceClauses(entries []types.ExperienceEntry) []string {
	out := make([]string, 0, maxFallbackExperience)
	for _, entry := range entries {
		position := strings.TrimSpace(entry.Position)
		company := strings.TrimSpace(entry.Company)
		switch {
		case position != "" && company != "":
			out = append(out, position+" at "+company)
		case position != "":
			out = append(out, position)
		case company != "":
			out = append(out, company)
		default:
			continue
		}
		if len(out) == maxFallbackExperience {
			break
		}
	}
	return out
}

func educationClauses(entries []types.EducationEntry) []string {
	out := make([]string, 0, maxFallbackEducation)
	for _, entry := range entries {
		institution := strings.TrimSpace(entry.Institution)
		degree := strings.TrimSpace(entry.DegreeType)
		switch {
		case institution != "" && degree != "":
			out = append(out, degree+", "+institution)
		case institution != "":
			out = append(out, institution)
		case degree != "":
			out = append(out, degree)
		default:
			continue
		}
		if len(out) == maxFallbackEducation {
			break
		}
	}
	return out
}
