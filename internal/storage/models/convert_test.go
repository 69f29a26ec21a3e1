package models

import (
	"testing"

	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCandidateRecordRoundTrip 验证领域模型与数据库模型的互转不丢字段
func TestCandidateRecordRoundTrip(t *testing.T) {
	record := types.CandidateRecord{
		CandidateID: "cand-1",
		Summary:     "资深后端工程师, 专注分布式系统",
		Skills:      []string{"Go", "MySQL", "Redis"},
		Experience: []types.ExperienceEntry{
			{Position: "Backend Engineer", Company: "Acme"},
		},
		Education: []types.EducationEntry{
			{Institution: "Tsinghua University", DegreeType: "Master"},
		},
		Names: []string{"张伟", "Wei Zhang"},
	}

	var model Candidate
	require.NoError(t, model.FromCandidateRecord(&record))
	assert.Equal(t, "cand-1", model.CandidateID)
	assert.Equal(t, "张伟", model.PrimaryName)

	got := model.ToCandidateRecord()
	assert.Equal(t, record.CandidateID, got.CandidateID)
	assert.Equal(t, record.Summary, got.Summary)
	assert.Equal(t, record.Skills, got.Skills)
	assert.Equal(t, record.Experience, got.Experience)
	assert.Equal(t, record.Education, got.Education)
	assert.Equal(t, record.Names, got.Names)
}

// TestToCandidateRecordFallsBackToPrimaryName 验证姓名JSON为空时回退到主显示名
func TestToCandidateRecordFallsBackToPrimaryName(t *testing.T) {
	model := Candidate{
		CandidateID: "cand-2",
		PrimaryName: "李娜",
	}

	got := model.ToCandidateRecord()
	assert.Equal(t, []string{"李娜"}, got.Names)
	assert.Equal(t, "李娜", got.PrimaryName())
}

// TestJobToJobPosting 验证岗位模型到领域模型的转换
func TestJobToJobPosting(t *testing.T) {
	job := Job{
		JobID:                  "job-1",
		JobTitle:               "Senior Backend Engineer",
		Company:                "Acme",
		Location:               "Shanghai",
		JobDescriptionText:     "Build distributed matching services",
		RequirementsJSON:       []byte(`["Go","Kubernetes"]`),
		MatchingParametersJSON: []byte(`{"min_match_percentage":60}`),
	}

	posting := job.ToJobPosting()
	assert.Equal(t, "Senior Backend Engineer", posting.Title)
	assert.Equal(t, "Build distributed matching services", posting.Description)
	assert.Equal(t, []string{"Go", "Kubernetes"}, posting.Requirements)
	require.NotNil(t, posting.MatchingParameters)
	assert.InDelta(t, 60.0, posting.MatchingParameters.MinMatchPercentage, 1e-9)
}

// TestJobToJobPostingBadParamsJSON 验证参数JSON非法时按未设置处理
func TestJobToJobPostingBadParamsJSON(t *testing.T) {
	job := Job{
		JobID:                  "job-2",
		JobTitle:               "数据工程师",
		JobDescriptionText:     "负责数据管道建设",
		MatchingParametersJSON: []byte(`{not-json`),
	}

	posting := job.ToJobPosting()
	assert.Nil(t, posting.MatchingParameters)
	assert.Empty(t, posting.Requirements)
}
