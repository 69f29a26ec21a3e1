package handler

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// CandidateHandler 候选人档案写入口。
// 字段级解析由外部解析方完成, 解析结果通过这里回灌到候选人主表。
type CandidateHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	logger  *log.Logger
}

// NewCandidateHandler 创建候选人档案处理器
func NewCandidateHandler(cfg *config.Config, storage *storage.Storage) *CandidateHandler {
	return &CandidateHandler{
		cfg:     cfg,
		storage: storage,
		logger:  log.New(os.Stdout, "[CandidateHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// upsertProfileRequest 外部解析方提交的候选人档案
type upsertProfileRequest struct {
	UploadUUID string `json:"upload_uuid,omitempty"` // 可选, 关联的简历上传记录
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`

	Summary    string                  `json:"summary,omitempty"`
	Skills     []string                `json:"skills,omitempty"`
	Experience []types.ExperienceEntry `json:"experience,omitempty"`
	Education  []types.EducationEntry  `json:"education,omitempty"`
	Names      []string                `json:"names,omitempty"`
}

// HandleUpsertProfile 按邮箱/电话定位或创建候选人, 并用解析出的档案覆盖其记录。
// PUT /api/v1/candidates/profile (管理接口)
func (h *CandidateHandler) HandleUpsertProfile(ctx context.Context, c *app.RequestContext) {
	var req upsertProfileRequest
	if err := json.Unmarshal(c.GetRawData(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体不是合法的JSON"})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Email == "" && req.Phone == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "email 和 phone 至少需要一个"})
		return
	}

	record := types.CandidateRecord{
		Summary:    req.Summary,
		Skills:     req.Skills,
		Experience: req.Experience,
		Education:  req.Education,
		Names:      req.Names,
	}

	candidate, err := h.storage.MySQL.FindOrCreateCandidate(ctx, nil, req.Email, req.Phone, record.PrimaryName())
	if err != nil {
		h.logger.Printf("定位候选人失败 (email: %s): %v", req.Email, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "定位候选人失败"})
		return
	}

	record.CandidateID = candidate.CandidateID
	profile := models.Candidate{
		PrimaryEmail: candidate.PrimaryEmail,
		PrimaryPhone: candidate.PrimaryPhone,
		Status:       "ACTIVE",
	}
	if err := profile.FromCandidateRecord(&record); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "档案字段序列化失败: " + err.Error()})
		return
	}
	if profile.PrimaryName == "" {
		profile.PrimaryName = candidate.PrimaryName
	}

	if err := h.storage.MySQL.UpsertCandidateProfile(ctx, &profile); err != nil {
		h.logger.Printf("写入候选人档案失败 (CandidateID: %s): %v", candidate.CandidateID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "写入候选人档案失败"})
		return
	}

	// 档案来自某次上传时, 将上传记录关联到候选人
	if req.UploadUUID != "" {
		updates := map[string]interface{}{
			"candidate_id":      candidate.CandidateID,
			"processing_status": "PROFILE_COMPLETED",
		}
		if err := h.storage.MySQL.UpdateCVUploadFields(ctx, req.UploadUUID, updates); err != nil {
			h.logger.Printf("关联上传记录失败 (UploadUUID: %s): %v", req.UploadUUID, err)
		}
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"candidate_id": candidate.CandidateID,
		"status":       "ACTIVE",
	})
}
