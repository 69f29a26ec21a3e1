package types

// ExperienceEntry 候选人的单条工作经历
type ExperienceEntry struct {
	Position string `json:"position,omitempty"` // 职位名称
	Company  string `json:"company,omitempty"`  // 公司名称
}

// EducationEntry 候选人的单条教育经历
type EducationEntry struct {
	Institution string `json:"institution,omitempty"` // 院校名称
	DegreeType  string `json:"degree_type,omitempty"` // 学历类型
}

// CandidateRecord 表示一次匹配请求中传入的候选人档案。
// 引擎不持久化该结构，仅在一次索引构建的生命周期内持有。
type CandidateRecord struct {
	CandidateID string            `json:"candidate_id"`         // 唯一标识
	Summary     string            `json:"summary,omitempty"`    // 自由文本摘要（可能为空）
	Skills      []string          `json:"skills,omitempty"`     // 技能列表，匹配时大小写不敏感
	Experience  []ExperienceEntry `json:"experience,omitempty"` // 工作经历
	Education   []EducationEntry  `json:"education,omitempty"`  // 教育经历
	Names       []string          `json:"names,omitempty"`      // 姓名列表，第一个为主显示名
}

// PrimaryName 返回候选人的主显示名，没有则返回空字符串
func (c *CandidateRecord) PrimaryName() string {
	if len(c.Names) == 0 {
		return ""
	}
	return c.Names[0]
}

// MatchResult 表示一条岗位-候选人匹配结果。
// 创建后不再修改；结果集按 MatchPercentage 降序排列。
type MatchResult struct {
	CandidateID     string   `json:"candidate_id"`
	MatchPercentage float64  `json:"match_percentage"`         // [0,100]，保留两位小数
	MissingSkills   []string `json:"missing_skills"`           // 最多5条，已去重
	Explanation     string   `json:"explanation"`              // 人类可读的匹配说明
	Distance        float64  `json:"raw_distance,omitempty"`   // 原始L2²距离，仅用于诊断
}

// JobPosting 岗位信息（API层输入）
type JobPosting struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Requirements       []string `json:"requirements"`
	Location           string   `json:"location,omitempty"`
	Company            string   `json:"company,omitempty"`
	MatchingParameters *MatchParameters `json:"matching_parameters,omitempty"`
}

// MatchParameters 岗位的匹配参数
type MatchParameters struct {
	MinMatchPercentage float64  `json:"min_match_percentage"`       // 低于该分数的结果被过滤
	RequiredSkills     []string `json:"required_skills,omitempty"`  // 必备技能
	PreferredSkills    []string `json:"preferred_skills,omitempty"` // 加分技能
}

// RankedCandidate 保存搜索结果中候选人的最终排名分数
type RankedCandidate struct {
	CandidateID string
	Score       float64
}
