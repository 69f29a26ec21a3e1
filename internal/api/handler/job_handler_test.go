package handler

import (
	"testing"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
)

// 岗位向量缓存时长由配置的天数换算, 未配置时交由存储层默认
func TestJobVectorCacheTTL(t *testing.T) {
	assert.Equal(t, time.Duration(0), jobVectorCacheTTL(nil))

	cfg := &config.Config{}
	assert.Equal(t, time.Duration(0), jobVectorCacheTTL(cfg))

	cfg.Matcher.VectorCacheTTLDays = 7
	assert.Equal(t, 7*24*time.Hour, jobVectorCacheTTL(cfg))
}

func TestBuildJobQueryText(t *testing.T) {
	// 查询文本 = 标题 + 描述 + 要求列表
	posting := &types.JobPosting{
		Title:        "Senior Backend Engineer",
		Description:  "Build distributed matching services",
		Requirements: []string{"Go", "MySQL", "Redis"},
	}
	text := BuildJobQueryText(posting)
	assert.Equal(t, "Senior Backend Engineer Build distributed matching services Go MySQL Redis", text)
}

func TestBuildJobQueryTextSkipsEmptyRequirements(t *testing.T) {
	posting := &types.JobPosting{
		Title:        "数据工程师",
		Description:  "负责数据管道建设",
		Requirements: []string{"", "Python", ""},
	}
	text := BuildJobQueryText(posting)
	assert.Equal(t, "数据工程师 负责数据管道建设 Python", text)
}

func TestBuildJobQueryTextNoRequirements(t *testing.T) {
	posting := &types.JobPosting{
		Title:       "Engineer",
		Description: "desc",
	}
	assert.Equal(t, "Engineer desc", BuildJobQueryText(posting))
}
