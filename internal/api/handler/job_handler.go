package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/constants"
	"talent-match-go/internal/matcher"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobHandler 处理岗位的创建与匹配参数维护
type JobHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	engine  *matcher.Engine
	logger  *log.Logger
}

// NewJobHandler 创建岗位处理器
func NewJobHandler(cfg *config.Config, storage *storage.Storage, engine *matcher.Engine) *JobHandler {
	return &JobHandler{
		cfg:     cfg,
		storage: storage,
		engine:  engine,
		logger:  log.New(os.Stdout, "[JobHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// createJobRequest 创建岗位请求体
type createJobRequest struct {
	JobID string `json:"job_id,omitempty"` // 为空时服务端生成
	types.JobPosting
}

// HandleCreateJob 处理创建/更新岗位的请求。
// POST /api/v1/jobs
func (h *JobHandler) HandleCreateJob(ctx context.Context, c *app.RequestContext) {
	var req createJobRequest
	if err := json.Unmarshal(c.GetRawData(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体不是合法的JSON"})
		return
	}
	if req.Title == "" || req.Description == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "title 和 description 不能为空"})
		return
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	var paramsJSON []byte
	if req.MatchingParameters != nil {
		var err error
		paramsJSON, err = json.Marshal(req.MatchingParameters)
		if err != nil {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": "matching_parameters 序列化失败"})
			return
		}
	}
	requirementsJSON, err := json.Marshal(req.Requirements)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "requirements 序列化失败"})
		return
	}

	job := &models.Job{
		JobID:              jobID,
		JobTitle:           req.Title,
		Company:            req.Company,
		Location:           req.Location,
		JobDescriptionText: req.Description,
		RequirementsJSON:   requirementsJSON,
		Status:             "ACTIVE",
	}
	if paramsJSON != nil {
		job.MatchingParametersJSON = paramsJSON
	}

	if err := h.storage.MySQL.UpsertJob(ctx, job); err != nil {
		h.logger.Printf("保存岗位失败 for JobID %s: %v", jobID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "保存岗位失败"})
		return
	}

	// 覆盖更新时旧的岗位信息缓存失效
	if h.storage.Redis != nil {
		postingKey := fmt.Sprintf(constants.KeyJobPosting, jobID)
		if err := h.storage.Redis.Client.Del(ctx, postingKey).Err(); err != nil {
			h.logger.Printf("清理岗位信息缓存失败 for JobID %s: %v", jobID, err)
		}
	}

	// 预计算岗位查询向量并写入缓存, 失败不阻塞创建流程
	queryText := BuildJobQueryText(&req.JobPosting)
	vectorDim := 0
	if vector, err := h.engine.EmbedQueryText(ctx, queryText); err != nil {
		h.logger.Printf("预计算岗位向量失败 for JobID %s: %v", jobID, err)
	} else {
		vectorDim = len(vector)
		h.persistJobVector(ctx, jobID, vector)
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":     jobID,
		"status":     "ACTIVE",
		"vector_dim": vectorDim,
	})
}

// persistJobVector 将岗位向量写入MySQL与Redis缓存
func (h *JobHandler) persistJobVector(ctx context.Context, jobID string, vector []float64) {
	modelVersion := h.engine.ModelVersion()

	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		h.logger.Printf("序列化岗位向量失败 for JobID %s: %v", jobID, err)
		return
	}
	jv := &models.JobVector{
		JobID:                 jobID,
		VectorRepresentation:  vectorJSON,
		EmbeddingModelVersion: modelVersion,
	}
	if err := h.storage.MySQL.UpsertJobVector(ctx, jv); err != nil {
		h.logger.Printf("保存岗位向量失败 for JobID %s: %v", jobID, err)
	}

	if h.storage.Redis != nil {
		if err := h.storage.Redis.SetJobVector(ctx, jobID, vector, modelVersion, jobVectorCacheTTL(h.cfg)); err != nil {
			h.logger.Printf("缓存岗位向量失败 for JobID %s: %v", jobID, err)
		}
	}
}

// jobVectorCacheTTL 岗位向量缓存时长, 由matcher配置的天数换算, 未配置时由存储层取默认值
func jobVectorCacheTTL(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Matcher.VectorCacheTTLDays <= 0 {
		return 0
	}
	return time.Duration(cfg.Matcher.VectorCacheTTLDays) * 24 * time.Hour
}

// HandleGetJob 返回岗位详情。
// GET /api/v1/jobs/:job_id
func (h *JobHandler) HandleGetJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 不能为空"})
		return
	}

	// 岗位信息读多写少, 先查JSON缓存
	postingKey := fmt.Sprintf(constants.KeyJobPosting, jobID)
	if h.storage.Redis != nil {
		if cached, err := h.storage.Redis.Get(ctx, postingKey); err == nil && cached != "" {
			var posting types.JobPosting
			if err := json.Unmarshal([]byte(cached), &posting); err == nil {
				c.JSON(consts.StatusOK, map[string]interface{}{
					"job_id":  jobID,
					"status":  "ACTIVE",
					"posting": posting,
				})
				return
			}
		}
	}

	job, err := h.storage.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("未找到 JobID 为 %s 的岗位", jobID)})
		} else {
			h.logger.Printf("查询岗位失败 for JobID %s: %v", jobID, err)
			c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询岗位失败"})
		}
		return
	}

	posting := job.ToJobPosting()

	// 仅缓存ACTIVE状态的岗位
	if h.storage.Redis != nil && job.Status == "ACTIVE" {
		if data, err := json.Marshal(&posting); err == nil {
			if err := h.storage.Redis.Set(ctx, postingKey, string(data), constants.JobPostingCacheDuration); err != nil {
				h.logger.Printf("缓存岗位信息失败 for JobID %s: %v", jobID, err)
			}
		}
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":  job.JobID,
		"status":  job.Status,
		"posting": posting,
	})
}

// HandleUpdateJobParameters 更新岗位的匹配参数。
// PUT /api/v1/jobs/:job_id/parameters
func (h *JobHandler) HandleUpdateJobParameters(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 不能为空"})
		return
	}

	var params types.MatchParameters
	if err := json.Unmarshal(c.GetRawData(), &params); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体不是合法的JSON"})
		return
	}
	if params.MinMatchPercentage < 0 || params.MinMatchPercentage > 100 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "min_match_percentage 必须在 [0,100] 之间"})
		return
	}

	paramsJSON, err := json.Marshal(&params)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "参数序列化失败"})
		return
	}

	if err := h.storage.MySQL.UpdateJobMatchingParameters(ctx, jobID, paramsJSON); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("未找到 JobID 为 %s 的岗位", jobID)})
		} else {
			h.logger.Printf("更新岗位匹配参数失败 for JobID %s: %v", jobID, err)
			c.JSON(consts.StatusInternalServerError, map[string]string{"error": "更新岗位匹配参数失败"})
		}
		return
	}

	// 参数变化后之前缓存的匹配结果与岗位信息不再有效
	if h.storage.Redis != nil {
		sessionKey := fmt.Sprintf(constants.KeyMatchSession, jobID)
		postingKey := fmt.Sprintf(constants.KeyJobPosting, jobID)
		if err := h.storage.Redis.Client.Del(ctx, sessionKey, postingKey).Err(); err != nil {
			h.logger.Printf("清理岗位相关缓存失败 for JobID %s: %v", jobID, err)
		}
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"message": "匹配参数已更新",
	})
}

// BuildJobQueryText 拼接岗位查询文本: 标题 + 描述 + 要求列表
func BuildJobQueryText(posting *types.JobPosting) string {
	text := posting.Title + " " + posting.Description
	for _, req := range posting.Requirements {
		if req != "" {
			text += " " + req
		}
	}
	return text
}
