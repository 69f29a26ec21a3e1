package models

import (
	"encoding/json"

	"talent-match-go/internal/types"
)

// ToCandidateRecord 将数据库模型转换为匹配引擎使用的领域模型。
// JSON字段解析失败时按空值处理, 不中断转换。
func (c *Candidate) ToCandidateRecord() types.CandidateRecord {
	var names, skills []string
	var experience []types.ExperienceEntry
	var education []types.EducationEntry

	if len(c.NamesJSON) > 0 {
		_ = json.Unmarshal(c.NamesJSON, &names)
	}
	if len(c.SkillsJSON) > 0 {
		_ = json.Unmarshal(c.SkillsJSON, &skills)
	}
	if len(c.ExperienceJSON) > 0 {
		_ = json.Unmarshal(c.ExperienceJSON, &experience)
	}
	if len(c.EducationJSON) > 0 {
		_ = json.Unmarshal(c.EducationJSON, &education)
	}
	if len(names) == 0 && c.PrimaryName != "" {
		names = []string{c.PrimaryName}
	}

	return types.CandidateRecord{
		CandidateID: c.CandidateID,
		Summary:     c.ProfileSummary,
		Skills:      skills,
		Experience:  experience,
		Education:   education,
		Names:       names,
	}
}

// FromCandidateRecord 用领域模型填充数据库模型的档案字段
func (c *Candidate) FromCandidateRecord(record *types.CandidateRecord) error {
	c.CandidateID = record.CandidateID
	c.ProfileSummary = record.Summary
	c.PrimaryName = record.PrimaryName()

	var err error
	if c.NamesJSON, err = SliceToJSON(record.Names); err != nil {
		return err
	}
	if c.SkillsJSON, err = SliceToJSON(record.Skills); err != nil {
		return err
	}
	if c.ExperienceJSON, err = SliceToJSON(record.Experience); err != nil {
		return err
	}
	if c.EducationJSON, err = SliceToJSON(record.Education); err != nil {
		return err
	}
	return nil
}

// ToJobPosting 将数据库模型转换为领域模型
func (j *Job) ToJobPosting() types.JobPosting {
	var requirements []string
	var params *types.MatchParameters

	if len(j.RequirementsJSON) > 0 {
		_ = json.Unmarshal(j.RequirementsJSON, &requirements)
	}
	if len(j.MatchingParametersJSON) > 0 {
		params = &types.MatchParameters{}
		if err := json.Unmarshal(j.MatchingParametersJSON, params); err != nil {
			params = nil
		}
	}

	return types.JobPosting{
		Title:              j.JobTitle,
		Description:        j.JobDescriptionText,
		Requirements:       requirements,
		Location:           j.Location,
		Company:            j.Company,
		MatchingParameters: params,
	}
}
